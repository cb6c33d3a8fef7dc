package ckkswrapper

import (
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// DecryptFloats decrypts ct and returns the real parts of its first n slots.
// Test and tooling helper; requires the secret key held by this context.
func (h *HeContext) DecryptFloats(ct *rlwe.Ciphertext, n int) ([]float64, error) {
	pt := h.Decryptor.DecryptNew(ct)
	decoded := make([]complex128, h.Params.MaxSlots())
	if err := h.Encoder.Decode(pt, decoded); err != nil {
		return nil, err
	}
	if n > len(decoded) {
		n = len(decoded)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = real(decoded[i])
	}
	return out, nil
}

// EncryptFloats encodes vals at the maximum level and encrypts them.
func (h *HeContext) EncryptFloats(vals []float64) (*rlwe.Ciphertext, error) {
	pt := ckks.NewPlaintext(h.Params, h.Params.MaxLevel())
	if err := h.Encoder.Encode(vals, pt); err != nil {
		return nil, err
	}
	return h.Encryptor.EncryptNew(pt)
}
