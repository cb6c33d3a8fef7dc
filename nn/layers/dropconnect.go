package layers

import (
	"fmt"
	"math"

	"dropnet/core/ckkswrapper"
	"dropnet/nn/functions"
	"dropnet/tensor"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// DropConnect is a fully-connected layer that drops individual weight
// connections during training: y = x·(mask ⊙ W)ᵀ + B. It supports a
// plaintext path (train and eval) and an HE-masked inference path where the
// realized mask is folded into the encrypted weight rows.
type DropConnect struct {
	// plaintext params
	W, B *tensor.Tensor

	Ratio         float64
	BatchwiseMask bool

	// HE params
	heCtx     *ckkswrapper.HeContext
	serverKit *ckkswrapper.ServerKit

	// mask-folded encrypted weight rows, refreshed by SyncHE
	weightCTs []*rlwe.Ciphertext
	// heMask is the shared (outDim, inDim) mask baked into weightCTs
	heMask *tensor.Tensor

	encrypted bool
	train     bool

	lastOp       *functions.SimplifiedDropconnect
	gradW, gradB *tensor.Tensor
}

// NewDropConnect sets up W (outDim, inDim) and B (outDim) with uniform
// ±1/√inDim initialization. When encrypted, the HE context supplies the
// rotation keys for the masked forward pass.
func NewDropConnect(inDim, outDim int, ratio float64, encrypted bool, heCtx *ckkswrapper.HeContext) *DropConnect {
	bound := 1 / math.Sqrt(float64(inDim))
	l := &DropConnect{
		W:         tensor.New(outDim, inDim).Uniform(-bound, bound),
		B:         tensor.New(outDim).Uniform(-bound, bound),
		Ratio:     ratio,
		train:     true,
		encrypted: encrypted,
		heCtx:     heCtx,
	}
	if encrypted {
		// Rotations: powers of two for the dot-product tree sum, one
		// negative rotation per output slot for assembly.
		rots := []int{}
		for step := 1; step < inDim; step *= 2 {
			rots = append(rots, step)
		}
		for j := 1; j < outDim; j++ {
			rots = append(rots, -j)
		}
		l.serverKit = heCtx.GenServerKit(rots)
	}
	return l
}

// SetTrain switches between train mode (mask sampling) and eval mode
// (plain affine). Encrypted layers must SyncHE afterwards so the folded
// mask matches the mode.
func (l *DropConnect) SetTrain(train bool) { l.train = train }

// Train reports whether the layer samples masks on forward.
func (l *DropConnect) Train() bool { return l.train }

// HEMask returns the shared mask folded into the encrypted weights by the
// last SyncHE, nil before the first sync.
func (l *DropConnect) HEMask() *tensor.Tensor { return l.heMask }

// HeContext exposes the layer's HE context.
func (l *DropConnect) HeContext() *ckkswrapper.HeContext { return l.heCtx }

// SyncHE samples a shared mask (ones in eval mode), folds it into W, and
// encrypts the masked rows zero-padded to the slot count. Must be called
// after every weight update and after SetTrain.
func (l *DropConnect) SyncHE() error {
	if !l.encrypted {
		return nil
	}
	outDim, inDim := l.W.Shape[0], l.W.Shape[1]

	l.heMask = tensor.New(outDim, inDim)
	if l.train && l.Ratio > 0 {
		u := tensor.New(outDim, inDim).Uniform(0, 1)
		scale := 1 / (1 - l.Ratio)
		for i, v := range u.Data {
			if v >= l.Ratio {
				l.heMask.Data[i] = scale
			}
		}
	} else {
		for i := range l.heMask.Data {
			l.heMask.Data[i] = 1
		}
	}

	slots := l.heCtx.Params.MaxSlots()
	l.weightCTs = make([]*rlwe.Ciphertext, outDim)
	for j := 0; j < outDim; j++ {
		// Slots beyond inDim stay zero so the tree sum never pulls in
		// garbage from neighbouring rows.
		wrow := make([]complex128, slots)
		for c := 0; c < inDim; c++ {
			wrow[c] = complex(l.heMask.Data[j*inDim+c]*l.W.Data[j*inDim+c], 0)
		}
		pt := ckks.NewPlaintext(l.heCtx.Params, l.heCtx.Params.MaxLevel())
		pt.Scale = l.heCtx.Params.DefaultScale()
		if err := l.serverKit.Encoder.Encode(wrow, pt); err != nil {
			return fmt.Errorf("dropconnect: encode weight row %d: %w", j, err)
		}
		ct, err := l.heCtx.Encryptor.EncryptNew(pt)
		if err != nil {
			return fmt.Errorf("dropconnect: encrypt weight row %d: %w", j, err)
		}
		l.weightCTs[j] = ct
	}
	return nil
}

// treeSum multiplies ctX by ctW and folds the product into slot 0 with
// power-of-two rotations.
func (l *DropConnect) treeSum(ctX, ctW *rlwe.Ciphertext, eval *ckks.Evaluator) (*rlwe.Ciphertext, error) {
	tmp, err := eval.MulNew(ctX, ctW)
	if err != nil {
		return nil, err
	}
	if tmp, err = eval.RelinearizeNew(tmp); err != nil {
		return nil, err
	}
	out := rlwe.NewCiphertext(l.serverKit.Params, tmp.Degree(), tmp.Level()-1)
	if err := eval.Rescale(tmp, out); err != nil {
		return nil, err
	}
	tmp = out

	inDim := l.W.Shape[1]
	for step := 1; step < inDim; step *= 2 {
		rot, err := eval.RotateNew(tmp, step)
		if err != nil {
			return nil, err
		}
		if tmp, err = eval.AddNew(tmp, rot); err != nil {
			return nil, err
		}
	}
	return tmp, nil
}

// ForwardCipherMasked computes y = (mask ⊙ W)·x + B on an encrypted input
// vector without ever decrypting: per output row, a ciphertext dot product
// is rotated into its slot, isolated with a one-hot plaintext, and the row
// results are accumulated into a single ciphertext.
func (l *DropConnect) ForwardCipherMasked(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	if !l.encrypted {
		return nil, fmt.Errorf("ForwardCipherMasked on plaintext layer")
	}
	if l.weightCTs == nil {
		return nil, fmt.Errorf("ForwardCipherMasked before SyncHE")
	}

	outDim := l.W.Shape[0]
	slots := l.heCtx.Params.MaxSlots()
	eval := l.serverKit.GetWorkerEvaluator()

	var acc *rlwe.Ciphertext
	for j := 0; j < outDim; j++ {
		dot, err := l.treeSum(ct, l.weightCTs[j], eval)
		if err != nil {
			return nil, fmt.Errorf("dropconnect: dot row %d: %w", j, err)
		}

		// Move slot 0 into slot j.
		if j > 0 {
			if dot, err = eval.RotateNew(dot, -j); err != nil {
				return nil, fmt.Errorf("dropconnect: rotate row %d: %w", j, err)
			}
		}

		// One-hot isolation keeps only slot j. Plaintext mul keeps the
		// ciphertext at degree 1, so the rows stay level-aligned.
		oneHot := make([]complex128, slots)
		oneHot[j] = 1
		maskPT := ckks.NewPlaintext(l.heCtx.Params, dot.Level())
		maskPT.Scale = l.heCtx.Params.DefaultScale()
		if err := l.serverKit.Encoder.Encode(oneHot, maskPT); err != nil {
			return nil, fmt.Errorf("dropconnect: encode one-hot %d: %w", j, err)
		}
		masked, err := eval.MulNew(dot, maskPT)
		if err != nil {
			return nil, fmt.Errorf("dropconnect: isolate row %d: %w", j, err)
		}

		if acc == nil {
			acc = masked
		} else if err := eval.Add(acc, masked, acc); err != nil {
			return nil, fmt.Errorf("dropconnect: accumulate row %d: %w", j, err)
		}
	}

	if err := eval.Rescale(acc, acc); err != nil {
		return nil, fmt.Errorf("dropconnect: rescale output: %w", err)
	}

	// Bias joins as a plaintext at the accumulator's level and scale.
	bvec := make([]complex128, slots)
	for j := 0; j < outDim; j++ {
		bvec[j] = complex(l.B.Data[j], 0)
	}
	biasPT := ckks.NewPlaintext(l.heCtx.Params, acc.Level())
	biasPT.Scale = acc.Scale
	if err := l.serverKit.Encoder.Encode(bvec, biasPT); err != nil {
		return nil, fmt.Errorf("dropconnect: encode bias: %w", err)
	}
	out, err := eval.AddNew(acc, biasPT)
	if err != nil {
		return nil, fmt.Errorf("dropconnect: add bias: %w", err)
	}
	return out, nil
}

// Forward accepts a *tensor.Tensor (plaintext path, batched (N, inDim)) or
// an *rlwe.Ciphertext (encrypted path, single packed input vector).
func (l *DropConnect) Forward(input interface{}) (interface{}, error) {
	if l.encrypted {
		ct, ok := input.(*rlwe.Ciphertext)
		if !ok {
			return nil, fmt.Errorf("encrypted layer expects *rlwe.Ciphertext input")
		}
		return l.ForwardCipherMasked(ct)
	}
	x, ok := input.(*tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("plaintext layer expects *tensor.Tensor input")
	}

	op := functions.NewSimplifiedDropconnect(l.Ratio, nil, l.BatchwiseMask)
	op.Train = l.train
	y, err := op.Forward(x, l.W, l.B)
	if err != nil {
		return nil, err
	}
	l.lastOp = op
	return y, nil
}

// Backward propagates the output gradient through the mask realized by the
// last Forward and caches the weight and bias gradients for Update.
func (l *DropConnect) Backward(gradOut interface{}) (interface{}, error) {
	if l.encrypted {
		return nil, fmt.Errorf("encrypted dropconnect is inference-only")
	}
	gy, ok := gradOut.(*tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("expected *tensor.Tensor for gradOut")
	}
	if l.lastOp == nil {
		return nil, fmt.Errorf("no cached forward pass")
	}
	grads, err := l.lastOp.Backward(gy)
	if err != nil {
		return nil, err
	}
	l.gradW, l.gradB = grads[1], grads[2]
	return grads[0], nil
}

// Update applies one SGD step from the gradients cached by Backward.
func (l *DropConnect) Update(learningRate float64) error {
	if l.gradW == nil {
		return fmt.Errorf("no gradients to update")
	}
	for i := range l.W.Data {
		l.W.Data[i] -= learningRate * l.gradW.Data[i]
	}
	for j := range l.B.Data {
		l.B.Data[j] -= learningRate * l.gradB.Data[j]
	}
	return nil
}

func (l *DropConnect) Encrypted() bool { return l.encrypted }

// Levels reports the multiplicative depth of the encrypted forward pass.
func (l *DropConnect) Levels() int {
	if l.encrypted {
		return 2
	}
	return 0
}

func (l *DropConnect) Tag() string {
	return fmt.Sprintf("DropConnect_%d_%d_r%v", l.W.Shape[1], l.W.Shape[0], l.Ratio)
}
