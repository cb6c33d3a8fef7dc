// Package functions implements standalone network operations with explicit
// forward and backward passes. Each operation retains the state produced by
// Forward (the realized mask, the inputs) for exactly one paired Backward
// call; a fresh operation instance samples fresh randomness.
package functions

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"dropnet/tensor"
)

// ErrInvalidRatio reports a drop ratio outside [0, 1).
var ErrInvalidRatio = errors.New("dropconnect ratio must be in [0, 1)")

var maskRand = rand.New(rand.NewSource(1))

// SetMaskSeed reseeds the mask sampler. Useful for reproducible tests.
func SetMaskSeed(seed int64) {
	maskRand = rand.New(rand.NewSource(seed))
}

// SimplifiedDropconnect computes y = x·(mask ⊙ W)ᵀ + b where mask zeroes
// individual weight connections with probability Ratio and scales kept
// entries by 1/(1-Ratio) (inverted-dropout convention, scale folded into
// the mask values).
//
// The mask is sampled on the first Forward call and reused by the same
// instance afterwards, so finite-difference probing of a single instance
// sees a fixed mask. A pre-built mask may be supplied instead.
type SimplifiedDropconnect struct {
	Ratio float64
	// Mask holds the realized mask after Forward: shape (N, M, K) when
	// BatchwiseMask, (M, K) otherwise. Supplying it up front skips
	// sampling.
	Mask          *tensor.Tensor
	BatchwiseMask bool
	// Train false degenerates to the plain affine transform.
	Train bool

	x, w, b *tensor.Tensor
}

// NewSimplifiedDropconnect builds a train-mode op. mask may be nil.
func NewSimplifiedDropconnect(ratio float64, mask *tensor.Tensor, batchwiseMask bool) *SimplifiedDropconnect {
	return &SimplifiedDropconnect{Ratio: ratio, Mask: mask, BatchwiseMask: batchwiseMask, Train: true}
}

// Dropconnect applies simplified dropconnect with a freshly sampled mask.
// Repeated calls re-sample, so train-mode outputs at the same inputs vary
// between calls. b may be nil.
func Dropconnect(x, w, b *tensor.Tensor, ratio float64, train, batchwiseMask bool) (*tensor.Tensor, error) {
	op := NewSimplifiedDropconnect(ratio, nil, batchwiseMask)
	op.Train = train
	if b == nil {
		return op.Forward(x, w)
	}
	return op.Forward(x, w, b)
}

// Forward takes (x, W) or (x, W, b) and returns y with x's dtype.
// x: (N, K), W: (M, K), b: (M,). Accumulation runs in float64 and the
// output is cast to x's dtype regardless of the W/b dtypes.
func (op *SimplifiedDropconnect) Forward(inputs ...*tensor.Tensor) (*tensor.Tensor, error) {
	if op.Ratio < 0 || op.Ratio >= 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRatio, op.Ratio)
	}
	if len(inputs) != 2 && len(inputs) != 3 {
		return nil, fmt.Errorf("dropconnect: want 2 or 3 inputs, got %d", len(inputs))
	}
	x, w := inputs[0], inputs[1]
	var b *tensor.Tensor
	if len(inputs) == 3 {
		b = inputs[2]
	}
	if len(x.Shape) != 2 || len(w.Shape) != 2 {
		return nil, fmt.Errorf("%w: x and W must be 2-D, got %v and %v", tensor.ErrShapeMismatch, x.Shape, w.Shape)
	}
	n, k := x.Shape[0], x.Shape[1]
	m := w.Shape[0]
	if w.Shape[1] != k {
		return nil, fmt.Errorf("%w: x features %d vs W features %d", tensor.ErrShapeMismatch, k, w.Shape[1])
	}
	if b != nil && (len(b.Shape) != 1 || b.Shape[0] != m) {
		return nil, fmt.Errorf("%w: bias shape %v for %d outputs", tensor.ErrShapeMismatch, b.Shape, m)
	}

	if op.Mask == nil {
		op.Mask = op.sampleMask(n, m, k)
	} else if err := op.checkMaskShape(n, m, k); err != nil {
		return nil, err
	}

	y := tensor.NewOf(x.DType, n, m)
	if op.BatchwiseMask {
		for i := 0; i < n; i++ {
			for j := 0; j < m; j++ {
				sum := 0.0
				for c := 0; c < k; c++ {
					sum += x.Data[i*k+c] * op.Mask.Data[(i*m+j)*k+c] * w.Data[j*k+c]
				}
				if b != nil {
					sum += b.Data[j]
				}
				y.Data[i*m+j] = sum
			}
		}
	} else {
		weffT := mat.NewDense(k, m, nil)
		for j := 0; j < m; j++ {
			for c := 0; c < k; c++ {
				weffT.Set(c, j, op.Mask.Data[j*k+c]*w.Data[j*k+c])
			}
		}
		var prod mat.Dense
		prod.Mul(mat.NewDense(n, k, x.Data), weffT)
		for i := 0; i < n; i++ {
			for j := 0; j < m; j++ {
				sum := prod.At(i, j)
				if b != nil {
					sum += b.Data[j]
				}
				y.Data[i*m+j] = sum
			}
		}
	}
	y.Quantize()

	op.x, op.w, op.b = x, w, b
	return y, nil
}

// Backward consumes the mask retained by the preceding Forward and returns
// gradients in input order: (gx, gW) or (gx, gW, gb). Each gradient is
// cast to the dtype of the input it corresponds to.
func (op *SimplifiedDropconnect) Backward(gy *tensor.Tensor) ([]*tensor.Tensor, error) {
	if op.x == nil {
		return nil, errors.New("dropconnect: Backward called before Forward")
	}
	n, k := op.x.Shape[0], op.x.Shape[1]
	m := op.w.Shape[0]
	if len(gy.Shape) != 2 || gy.Shape[0] != n || gy.Shape[1] != m {
		return nil, fmt.Errorf("%w: output gradient shape %v, want [%d %d]", tensor.ErrShapeMismatch, gy.Shape, n, m)
	}

	gx := tensor.NewOf(op.x.DType, n, k)
	gw := tensor.NewOf(op.w.DType, m, k)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			g := gy.Data[i*m+j]
			for c := 0; c < k; c++ {
				mv := op.maskAt(i, j, c)
				gx.Data[i*k+c] += g * mv * op.w.Data[j*k+c]
				gw.Data[j*k+c] += g * mv * op.x.Data[i*k+c]
			}
		}
	}
	gx.Quantize()
	gw.Quantize()

	if op.b == nil {
		return []*tensor.Tensor{gx, gw}, nil
	}
	gb := tensor.NewOf(op.b.DType, m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			gb.Data[j] += gy.Data[i*m+j]
		}
	}
	gb.Quantize()
	return []*tensor.Tensor{gx, gw, gb}, nil
}

func (op *SimplifiedDropconnect) sampleMask(n, m, k int) *tensor.Tensor {
	shape := []int{m, k}
	if op.BatchwiseMask {
		shape = []int{n, m, k}
	}
	mask := tensor.New(shape...)
	if !op.Train || op.Ratio == 0 {
		for i := range mask.Data {
			mask.Data[i] = 1
		}
		return mask
	}
	scale := 1 / (1 - op.Ratio)
	for i := range mask.Data {
		if maskRand.Float64() >= op.Ratio {
			mask.Data[i] = scale
		}
	}
	return mask
}

func (op *SimplifiedDropconnect) checkMaskShape(n, m, k int) error {
	s := op.Mask.Shape
	if op.BatchwiseMask {
		if len(s) == 3 && s[0] == n && s[1] == m && s[2] == k {
			return nil
		}
		return fmt.Errorf("%w: mask shape %v, want [%d %d %d]", tensor.ErrShapeMismatch, s, n, m, k)
	}
	if len(s) == 2 && s[0] == m && s[1] == k {
		return nil
	}
	return fmt.Errorf("%w: mask shape %v, want [%d %d]", tensor.ErrShapeMismatch, s, m, k)
}

// maskAt reads the mask entry for sample i, output j, feature c.
func (op *SimplifiedDropconnect) maskAt(i, j, c int) float64 {
	k := op.w.Shape[1]
	if op.BatchwiseMask {
		return op.Mask.Data[(i*op.w.Shape[0]+j)*k+c]
	}
	return op.Mask.Data[j*k+c]
}
