// Package ckkswrapper bundles the lattigo CKKS primitives behind a small
// context type: parameter setup, key generation, and evaluator kits for
// the encrypted inference path.
package ckkswrapper

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// HeContext owns the CKKS parameters and the key material. It lives on the
// data-owner side; evaluation parties only ever see a ServerKit.
type HeContext struct {
	Params    ckks.Parameters
	Encoder   *ckks.Encoder
	Encryptor *rlwe.Encryptor
	Decryptor *rlwe.Decryptor

	sk   *rlwe.SecretKey
	kgen *rlwe.KeyGenerator
	rlk  *rlwe.RelinearizationKey
}

// ServerKit is the public evaluation bundle: parameters, an encoder, and an
// evaluator loaded with the relinearization and rotation keys it needs.
type ServerKit struct {
	Params    ckks.Parameters
	Encoder   *ckks.Encoder
	Evaluator *ckks.Evaluator
}

// NewHeContext builds a context with the default ring degree (LogN 13),
// enough for the multiplicative depth of masked-affine inference.
func NewHeContext() *HeContext {
	return NewHeContextWithLogN(13)
}

// NewHeContextWithLogN builds a context with an explicit ring degree.
// Smaller LogN values (12) keep tests fast at reduced security.
func NewHeContextWithLogN(logN int) *HeContext {
	params, err := ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
		LogN:            logN,
		LogQ:            []int{55, 45, 45, 45, 45},
		LogP:            []int{61},
		LogDefaultScale: 45,
	})
	if err != nil {
		panic(fmt.Sprintf("ckkswrapper: parameter setup: %v", err))
	}

	kgen := rlwe.NewKeyGenerator(params)
	sk := kgen.GenSecretKeyNew()
	pk := kgen.GenPublicKeyNew(sk)

	return &HeContext{
		Params:    params,
		Encoder:   ckks.NewEncoder(params),
		Encryptor: rlwe.NewEncryptor(params, pk),
		Decryptor: rlwe.NewDecryptor(params, sk),
		sk:        sk,
		kgen:      kgen,
		rlk:       kgen.GenRelinearizationKeyNew(sk),
	}
}

// GenServerKit produces an evaluation kit holding Galois keys for the given
// rotation offsets (negative offsets rotate right). Duplicates are collapsed.
func (h *HeContext) GenServerKit(rotations []int) *ServerKit {
	seen := make(map[int]bool, len(rotations))
	galEls := make([]uint64, 0, len(rotations))
	for _, r := range rotations {
		if r == 0 || seen[r] {
			continue
		}
		seen[r] = true
		galEls = append(galEls, h.Params.GaloisElement(r))
	}
	gks := h.kgen.GenGaloisKeysNew(galEls, h.sk)
	evk := rlwe.NewMemEvaluationKeySet(h.rlk, gks...)
	return &ServerKit{
		Params:    h.Params,
		Encoder:   ckks.NewEncoder(h.Params),
		Evaluator: ckks.NewEvaluator(h.Params, evk),
	}
}

// GetWorkerEvaluator returns a shallow copy safe for concurrent use.
func (k *ServerKit) GetWorkerEvaluator() *ckks.Evaluator {
	return k.Evaluator.ShallowCopy()
}
