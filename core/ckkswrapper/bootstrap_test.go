package ckkswrapper

import (
	"math"
	"testing"
)

func TestCheatBootstrapRestoresLevel(t *testing.T) {
	h := NewHeContextWithLogN(12)
	kit := h.GenServerKit(nil)

	vals := make([]float64, 64)
	for i := range vals {
		vals[i] = 0.5
	}
	ct, err := h.EncryptFloats(vals)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	// Burn levels with repeated squarings.
	for i := 0; i < 3; i++ {
		if err := kit.Evaluator.MulRelin(ct, ct, ct); err != nil {
			t.Fatalf("mul %d: %v", i, err)
		}
		if err := kit.Evaluator.Rescale(ct, ct); err != nil {
			t.Fatalf("rescale %d: %v", i, err)
		}
	}
	t.Logf("level after squarings: %d", ct.Level())
	if !NeedsBootstrap(ct, 1) {
		t.Fatalf("expected depleted ciphertext, level %d", ct.Level())
	}

	refreshed, err := h.CheatBootstrap(ct)
	if err != nil {
		t.Fatalf("CheatBootstrap: %v", err)
	}
	if refreshed.Level() != h.Params.MaxLevel() {
		t.Errorf("level = %d, want %d", refreshed.Level(), h.Params.MaxLevel())
	}

	// 0.5^8 after three squarings.
	got, err := h.DecryptFloats(refreshed, 8)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}
	want := math.Pow(0.5, 8)
	for i := range got {
		if math.Abs(got[i]-want) > 1e-4 {
			t.Errorf("slot %d: got %v, want %v", i, got[i], want)
		}
	}
}

func TestCheatBootstrapInPlace(t *testing.T) {
	h := NewHeContextWithLogN(12)

	vals := []float64{0.05, 0.1, 0.15, 0.2}
	ct, err := h.EncryptFloats(vals)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	if err := h.CheatBootstrapInPlace(ct); err != nil {
		t.Fatalf("CheatBootstrapInPlace: %v", err)
	}
	if ct.Level() != h.Params.MaxLevel() {
		t.Errorf("level = %d, want %d", ct.Level(), h.Params.MaxLevel())
	}
	got, err := h.DecryptFloats(ct, len(vals))
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}
	for i, want := range vals {
		if math.Abs(got[i]-want) > 1e-6 {
			t.Errorf("slot %d: got %v, want %v", i, got[i], want)
		}
	}
}

func TestNeedsBootstrap(t *testing.T) {
	h := NewHeContextWithLogN(12)
	ct, err := h.EncryptFloats([]float64{1})
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	if NeedsBootstrap(ct, 1) {
		t.Error("fresh ciphertext should not need a refresh")
	}
	if !NeedsBootstrap(ct, h.Params.MaxLevel()+1) {
		t.Error("threshold above the level should trigger a refresh")
	}
	// Threshold 0 falls back to 1.
	if NeedsBootstrap(ct, 0) != (ct.Level() <= 1) {
		t.Error("default threshold mishandled")
	}
}
