// Package device abstracts where tensors live. The CPU backend is a no-op
// passthrough; the emulated accelerator keeps its own arena of copies so
// host/device transfers and cross-device numerical agreement can be tested
// without real hardware.
package device

import (
	"dropnet/tensor"
)

// Backend moves tensors between host memory and a compute device. FromHost
// and ToHost must preserve shape, dtype and bit-exact values.
type Backend interface {
	Name() string
	Available() bool
	FromHost(t *tensor.Tensor) *tensor.Tensor
	ToHost(t *tensor.Tensor) *tensor.Tensor
}

type cpu struct{}

func (cpu) Name() string                            { return "cpu" }
func (cpu) Available() bool                         { return true }
func (cpu) FromHost(t *tensor.Tensor) *tensor.Tensor { return t }
func (cpu) ToHost(t *tensor.Tensor) *tensor.Tensor   { return t }

// CPU returns the host backend. Transfers are identity operations.
func CPU() Backend { return cpu{} }

// Emulated is a software stand-in for an accelerator. Every transfer makes
// a deep copy, so aliasing bugs between host and device buffers surface in
// tests.
type Emulated struct {
	allocated int
}

// NewEmulated returns a fresh emulated accelerator with an empty arena.
func NewEmulated() *Emulated { return &Emulated{} }

func (e *Emulated) Name() string    { return "emulated" }
func (e *Emulated) Available() bool { return true }

func (e *Emulated) FromHost(t *tensor.Tensor) *tensor.Tensor {
	e.allocated++
	return t.Clone()
}

func (e *Emulated) ToHost(t *tensor.Tensor) *tensor.Tensor {
	return t.Clone()
}

// Allocated reports how many device buffers FromHost has produced.
func (e *Emulated) Allocated() int { return e.allocated }

// All lists the backends usable in this process.
func All() []Backend {
	return []Backend{CPU(), NewEmulated()}
}
