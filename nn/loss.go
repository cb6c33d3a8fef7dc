package nn

import (
	"dropnet/tensor"
)

// MSELoss is mean squared error over all elements.
type MSELoss struct{}

// Forward returns the loss value.
func (MSELoss) Forward(y, target *tensor.Tensor) (float64, error) {
	if !tensor.SameShape(y, target) {
		return 0, tensor.ErrShapeMismatch
	}
	loss := 0.0
	for i := range y.Data {
		d := y.Data[i] - target.Data[i]
		loss += d * d
	}
	return loss / float64(len(y.Data)), nil
}

// Backward computes the gradient of the loss with respect to y:
// grad = 2 (y - target) / n
func (MSELoss) Backward(y, target *tensor.Tensor) (*tensor.Tensor, error) {
	if !tensor.SameShape(y, target) {
		return nil, tensor.ErrShapeMismatch
	}
	grad := tensor.New(y.Shape...)
	n := float64(len(y.Data))
	for i := range y.Data {
		grad.Data[i] = 2 * (y.Data[i] - target.Data[i]) / n
	}
	return grad, nil
}
