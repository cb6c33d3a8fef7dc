// Package gradcheck verifies analytic gradients against central-difference
// numerical estimates.
package gradcheck

import (
	"fmt"

	"gonum.org/v1/gonum/floats/scalar"

	"dropnet/tensor"
)

// Func is a differentiable operation with explicit passes. Backward must
// return one gradient per Forward input, in input order, and may rely on
// state retained by the preceding Forward. Repeated Forward calls on one
// instance must be deterministic (any internal randomness fixed after the
// first call) so that finite differences are well defined.
type Func interface {
	Forward(inputs ...*tensor.Tensor) (*tensor.Tensor, error)
	Backward(gy *tensor.Tensor) ([]*tensor.Tensor, error)
}

// Options configures a gradient check.
type Options struct {
	// Eps is the finite-difference step. Default 1e-3.
	Eps float64
	// Atol/Rtol bound the numeric-vs-analytic divergence. Defaults
	// 1e-5 and 1e-4.
	Atol float64
	Rtol float64
	// WideDType promotes all inputs and the output gradient to float64
	// before checking. Required for half precision operands, whose
	// quantization noise swamps the finite-difference signal.
	WideDType bool
}

func (o Options) withDefaults() Options {
	if o.Eps == 0 {
		o.Eps = 1e-3
	}
	if o.Atol == 0 {
		o.Atol = 1e-5
	}
	if o.Rtol == 0 {
		o.Rtol = 1e-4
	}
	return o
}

// CheckBackward runs f.Forward(inputs...), f.Backward(gy), then perturbs
// every input element by ±Eps and compares the resulting directional
// derivative ⟨(y⁺−y⁻)/2ε, gy⟩ against the analytic gradient entry within
// Atol/Rtol. Returns a descriptive error on the first divergence.
func CheckBackward(f Func, inputs []*tensor.Tensor, gy *tensor.Tensor, opts Options) error {
	o := opts.withDefaults()

	ins := make([]*tensor.Tensor, len(inputs))
	for i, in := range inputs {
		if o.WideDType {
			ins[i] = in.Cast(tensor.Float64)
		} else {
			ins[i] = in.Clone()
		}
	}
	g := gy.Clone()
	if o.WideDType {
		g = gy.Cast(tensor.Float64)
	}

	if _, err := f.Forward(ins...); err != nil {
		return fmt.Errorf("gradcheck: forward: %w", err)
	}
	grads, err := f.Backward(g)
	if err != nil {
		return fmt.Errorf("gradcheck: backward: %w", err)
	}
	if len(grads) != len(ins) {
		return fmt.Errorf("gradcheck: %d gradients for %d inputs", len(grads), len(ins))
	}
	for i, gr := range grads {
		if !tensor.SameShape(gr, ins[i]) {
			return fmt.Errorf("gradcheck: gradient %d shape %v, input shape %v", i, gr.Shape, ins[i].Shape)
		}
	}

	for i, in := range ins {
		for j := range in.Data {
			orig := in.Data[j]

			in.Data[j] = orig + o.Eps
			yp, err := f.Forward(ins...)
			if err != nil {
				in.Data[j] = orig
				return fmt.Errorf("gradcheck: forward at +eps: %w", err)
			}
			in.Data[j] = orig - o.Eps
			ym, err := f.Forward(ins...)
			in.Data[j] = orig
			if err != nil {
				return fmt.Errorf("gradcheck: forward at -eps: %w", err)
			}

			num := 0.0
			for e := range yp.Data {
				num += (yp.Data[e] - ym.Data[e]) / (2 * o.Eps) * g.Data[e]
			}
			ana := grads[i].Data[j]
			if !scalar.EqualWithinAbsOrRel(num, ana, o.Atol, o.Rtol) {
				return fmt.Errorf("gradcheck: input %d element %d: numerical %v vs analytic %v (atol=%v rtol=%v)",
					i, j, num, ana, o.Atol, o.Rtol)
			}
		}
	}
	return nil
}
