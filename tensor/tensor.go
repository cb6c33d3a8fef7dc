// Package tensor provides a simple n-D array with explicit numeric dtypes.
//
// Elements are stored widened as float64 regardless of dtype, so half and
// single precision operands accumulate in a wider type; every value is
// rounded to the declared dtype when written, keeping the observable
// contents exactly representable in that precision.
package tensor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrShapeMismatch reports incompatible operand shapes.
var ErrShapeMismatch = errors.New("shape mismatch")

// Tensor is a simple n-D array backed by a flat []float64.
type Tensor struct {
	Data  []float64
	Shape []int
	DType DType
}

// New allocates a float64 Tensor of given shape (product of dims = len(Data)).
func New(shape ...int) *Tensor {
	return NewOf(Float64, shape...)
}

// NewOf allocates a zeroed Tensor of the given dtype and shape.
func NewOf(dt DType, shape ...int) *Tensor {
	total := 1
	for _, d := range shape {
		total *= d
	}
	return &Tensor{
		Data:  make([]float64, total),
		Shape: append([]int(nil), shape...),
		DType: dt,
	}
}

// NewWithData creates a 1-D float64 tensor from existing data.
func NewWithData(data []float64) *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: []int{len(data)},
		DType: Float64,
	}
}

// FromData creates a tensor of the given dtype and shape, quantizing the
// supplied values to that dtype.
func FromData(dt DType, data []float64, shape ...int) (*Tensor, error) {
	t := NewOf(dt, shape...)
	if len(data) != len(t.Data) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}
	for i, v := range data {
		t.Data[i] = dt.quantize(v)
	}
	return t, nil
}

// Size returns the number of elements.
func (t *Tensor) Size() int {
	return len(t.Data)
}

// Clone returns a deep copy, dtype included.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), t.Data...),
		Shape: append([]int(nil), t.Shape...),
		DType: t.DType,
	}
}

// Cast returns a copy of t with values re-quantized to dt. Casting to a
// wider dtype preserves values exactly.
func (t *Tensor) Cast(dt DType) *Tensor {
	out := NewOf(dt, t.Shape...)
	for i, v := range t.Data {
		out.Data[i] = dt.quantize(v)
	}
	return out
}

// Quantize rounds every element to the tensor's declared dtype in place
// and returns t. Callers that fill Data directly use it to restore the
// dtype invariant.
func (t *Tensor) Quantize() *Tensor {
	for i, v := range t.Data {
		t.Data[i] = t.DType.quantize(v)
	}
	return t
}

// Uniform fills t with i.i.d. samples from U[min, max), quantized to the
// tensor's dtype, and returns t.
func (t *Tensor) Uniform(min, max float64) *Tensor {
	dist := distuv.Uniform{Min: min, Max: max}
	for i := range t.Data {
		t.Data[i] = t.DType.quantize(dist.Rand())
	}
	return t
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// Add returns a+b. The result follows a's dtype.
func Add(a, b *Tensor) (*Tensor, error) {
	if !SameShape(a, b) {
		return nil, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, a.Shape, b.Shape)
	}
	out := NewOf(a.DType, a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.DType.quantize(a.Data[i] + b.Data[i])
	}
	return out, nil
}

// MatMul returns a×b (2-D only). The product is computed in float64 and
// the result follows a's dtype.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("%w: MatMul requires 2-D tensors, got %v and %v", ErrShapeMismatch, a.Shape, b.Shape)
	}
	r, k := a.Shape[0], a.Shape[1]
	k2, c := b.Shape[0], b.Shape[1]
	if k != k2 {
		return nil, fmt.Errorf("%w: inner dimensions %d vs %d", ErrShapeMismatch, k, k2)
	}
	am := mat.NewDense(r, k, a.Data)
	bm := mat.NewDense(k2, c, b.Data)
	var prod mat.Dense
	prod.Mul(am, bm)

	out := NewOf(a.DType, r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Data[i*c+j] = a.DType.quantize(prod.At(i, j))
		}
	}
	return out, nil
}

// At returns the element at the given indices.
func (t *Tensor) At(indices ...int) float64 {
	return t.Data[t.index("At", indices)]
}

// Set stores value at the given indices, quantized to the tensor's dtype.
func (t *Tensor) Set(value float64, indices ...int) {
	t.Data[t.index("Set", indices)] = t.DType.quantize(value)
}

func (t *Tensor) index(op string, indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("%s: expected %d indices, got %d", op, len(t.Shape), len(indices)))
	}
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("%s: index %d out of bounds for dimension %d (shape: %v)", op, indices[i], i, t.Shape))
		}
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}
