package gradcheck_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dropnet/gradcheck"
	"dropnet/tensor"
)

// linearOp is a plain affine op y = x·Wᵀ + b with hand-derived gradients,
// used to validate the checker itself.
type linearOp struct {
	x, w, b *tensor.Tensor

	// breakGradW deliberately corrupts the weight gradient.
	breakGradW bool
}

func (l *linearOp) Forward(inputs ...*tensor.Tensor) (*tensor.Tensor, error) {
	l.x, l.w, l.b = inputs[0], inputs[1], inputs[2]
	n, k := l.x.Shape[0], l.x.Shape[1]
	m := l.w.Shape[0]
	y := tensor.NewOf(l.x.DType, n, m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			sum := l.b.Data[j]
			for c := 0; c < k; c++ {
				sum += l.x.Data[i*k+c] * l.w.Data[j*k+c]
			}
			y.Data[i*m+j] = sum
		}
	}
	return y.Quantize(), nil
}

func (l *linearOp) Backward(gy *tensor.Tensor) ([]*tensor.Tensor, error) {
	n, k := l.x.Shape[0], l.x.Shape[1]
	m := l.w.Shape[0]
	gx := tensor.NewOf(l.x.DType, n, k)
	gw := tensor.NewOf(l.w.DType, m, k)
	gb := tensor.NewOf(l.b.DType, m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			g := gy.Data[i*m+j]
			gb.Data[j] += g
			for c := 0; c < k; c++ {
				gx.Data[i*k+c] += g * l.w.Data[j*k+c]
				gw.Data[j*k+c] += g * l.x.Data[i*k+c]
			}
		}
	}
	if l.breakGradW {
		gw.Data[0] += 1
	}
	return []*tensor.Tensor{gx, gw, gb}, nil
}

func fixtures(dt tensor.DType) (x, w, b, gy *tensor.Tensor) {
	x = tensor.NewOf(dt, 4, 3).Uniform(-1, 1)
	w = tensor.NewOf(dt, 2, 3).Uniform(-1, 1)
	b = tensor.NewOf(dt, 2).Uniform(-1, 1)
	gy = tensor.NewOf(dt, 4, 2).Uniform(-1, 1)
	return
}

func TestCheckBackwardLinear(t *testing.T) {
	x, w, b, gy := fixtures(tensor.Float64)
	err := gradcheck.CheckBackward(&linearOp{}, []*tensor.Tensor{x, w, b}, gy, gradcheck.Options{Eps: 1e-3})
	require.NoError(t, err)
}

func TestCheckBackwardLinearFloat32(t *testing.T) {
	x, w, b, gy := fixtures(tensor.Float32)
	err := gradcheck.CheckBackward(&linearOp{}, []*tensor.Tensor{x, w, b}, gy,
		gradcheck.Options{Eps: 1e-2, Atol: 1e-4, Rtol: 1e-3})
	require.NoError(t, err)
}

func TestCheckBackwardLinearFloat16Widened(t *testing.T) {
	x, w, b, gy := fixtures(tensor.Float16)
	err := gradcheck.CheckBackward(&linearOp{}, []*tensor.Tensor{x, w, b}, gy,
		gradcheck.Options{Eps: 1e-2, Atol: 5e-4, Rtol: 5e-3, WideDType: true})
	require.NoError(t, err)
}

func TestCheckBackwardDetectsWrongGradient(t *testing.T) {
	x, w, b, gy := fixtures(tensor.Float64)
	err := gradcheck.CheckBackward(&linearOp{breakGradW: true}, []*tensor.Tensor{x, w, b}, gy,
		gradcheck.Options{Eps: 1e-3})
	require.Error(t, err)
	require.Contains(t, err.Error(), "numerical")
}

func TestCheckBackwardInputsUntouched(t *testing.T) {
	x, w, b, gy := fixtures(tensor.Float64)
	before := append([]float64(nil), x.Data...)
	err := gradcheck.CheckBackward(&linearOp{}, []*tensor.Tensor{x, w, b}, gy, gradcheck.Options{})
	require.NoError(t, err)
	require.Equal(t, before, x.Data)
}
