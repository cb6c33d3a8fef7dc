package ckkswrapper

import (
	"math"
	"testing"
)

func TestHeContextRoundTrip(t *testing.T) {
	h := NewHeContextWithLogN(12)
	vals := []float64{3.1415926535, -0.25, 1.5}

	ct, err := h.EncryptFloats(vals)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	got, err := h.DecryptFloats(ct, len(vals))
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}
	for i, want := range vals {
		if math.Abs(got[i]-want) > 1e-8 {
			t.Fatalf("slot %d: got %v, want %v", i, got[i], want)
		}
	}
}

func TestServerKitRotation(t *testing.T) {
	h := NewHeContextWithLogN(12)
	kit := h.GenServerKit([]int{1, 2, -1})

	vals := []float64{10, 20, 30, 40}
	ct, err := h.EncryptFloats(vals)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	rot, err := kit.Evaluator.RotateNew(ct, 1)
	if err != nil {
		t.Fatalf("rotate error: %v", err)
	}
	got, err := h.DecryptFloats(rot, 3)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}
	for i, want := range []float64{20, 30, 40} {
		if math.Abs(got[i]-want) > 1e-6 {
			t.Errorf("rotated slot %d: got %v, want %v", i, got[i], want)
		}
	}

	// Squaring via the kit consumes a level but must stay decryptable.
	sq, err := kit.Evaluator.MulRelinNew(ct, ct)
	if err != nil {
		t.Fatalf("mul error: %v", err)
	}
	if err := kit.Evaluator.Rescale(sq, sq); err != nil {
		t.Fatalf("rescale error: %v", err)
	}
	got, err = h.DecryptFloats(sq, 1)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}
	if math.Abs(got[0]-100) > 1e-3 {
		t.Errorf("square: got %v, want 100", got[0])
	}
}

func TestWorkerEvaluatorIsIndependent(t *testing.T) {
	h := NewHeContextWithLogN(12)
	kit := h.GenServerKit([]int{1})
	worker := kit.GetWorkerEvaluator()
	if worker == kit.Evaluator {
		t.Fatal("worker evaluator shares the kit's instance")
	}
}
