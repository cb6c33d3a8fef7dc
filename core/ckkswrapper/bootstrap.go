package ckkswrapper

import (
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// CheatBootstrap restores a ciphertext to the maximum level and default
// scale by decrypting and re-encrypting. It needs the secret key, so it is
// a development and testing stand-in for real bootstrapping.
func (h *HeContext) CheatBootstrap(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	pt := h.Decryptor.DecryptNew(ct)

	values := make([]complex128, h.Params.MaxSlots())
	if err := h.Encoder.Decode(pt, values); err != nil {
		return nil, err
	}

	newPt := ckks.NewPlaintext(h.Params, h.Params.MaxLevel())
	if err := h.Encoder.Encode(values, newPt); err != nil {
		return nil, err
	}
	return h.Encryptor.EncryptNew(newPt)
}

// CheatBootstrapInPlace refreshes a ciphertext in place.
func (h *HeContext) CheatBootstrapInPlace(ct *rlwe.Ciphertext) error {
	refreshed, err := h.CheatBootstrap(ct)
	if err != nil {
		return err
	}
	*ct = *refreshed
	return nil
}

// Refresh is CheatBootstrap for call sites that cannot propagate an error.
func (h *HeContext) Refresh(ct *rlwe.Ciphertext) *rlwe.Ciphertext {
	refreshed, err := h.CheatBootstrap(ct)
	if err != nil {
		panic(err)
	}
	return refreshed
}

// NeedsBootstrap returns true if the ciphertext level is at or below the threshold.
// Default threshold is 1 level remaining.
func NeedsBootstrap(ct *rlwe.Ciphertext, threshold int) bool {
	if threshold <= 0 {
		threshold = 1
	}
	return ct.Level() <= threshold
}
