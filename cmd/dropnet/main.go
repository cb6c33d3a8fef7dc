// dropnet-train: standalone trainer demonstrating dropconnect regularization
// on a synthetic regression task, with optional encrypted inference at the
// end of training.
//
// Usage:
//
//	dropnet-train --arch="8 4" --ratio=0.5 --epochs=20 --lr=0.05
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"dropnet/core/ckkswrapper"
	"dropnet/nn"
	"dropnet/nn/layers"
	"dropnet/tensor"
	"dropnet/utils"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

var (
	archStr      = flag.String("arch", "8 4", "Layer sizes, space separated")
	ratio        = flag.Float64("ratio", 0.5, "Connection drop ratio in [0, 1)")
	batchwise    = flag.Bool("batchwise", true, "Sample a mask per batch element")
	epochs       = flag.Int("epochs", 20, "Number of training epochs")
	learningRate = flag.Float64("lr", 0.05, "Learning rate")
	batchSize    = flag.Int("batch", 16, "Batch size")
	batches      = flag.Int("batches", 8, "Batches per epoch")
	heMode       = flag.String("he", "none", "HE mode: none, inference")
	logN         = flag.Int("logN", 12, "Ring dimension log2 for HE inference")
	verbose      = flag.Bool("verbose", true, "Verbose output")
	seed         = flag.Int64("seed", 42, "Random seed")
	outputFile   = flag.String("output", "", "Output weights file (JSON)")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose
	rand.Seed(*seed)

	arch, err := utils.ParseArchitecture(*archStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bad architecture %q: %v\n", *archStr, err)
		os.Exit(1)
	}
	cfg := &utils.Config{
		Architecture: arch,
		BatchSize:    *batchSize,
		Steps:        *epochs,
		Ratio:        *ratio,
		Batchwise:    *batchwise,
		HEMode:       *heMode,
	}
	if err := utils.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== dropnet trainer ===")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Architecture:  %v\n", cfg.Architecture)
	fmt.Printf("  Drop ratio:    %.2f (batchwise=%v)\n", cfg.Ratio, cfg.Batchwise)
	fmt.Printf("  Epochs:        %d\n", *epochs)
	fmt.Printf("  Learning rate: %.4f\n", *learningRate)
	fmt.Printf("  Batch size:    %d\n", cfg.BatchSize)
	fmt.Printf("  HE mode:       %s\n", cfg.HEMode)
	fmt.Println()

	stats := &utils.TimingStats{}
	totalStart := time.Now()

	start := time.Now()
	model := buildModel(cfg)
	stats.ModelInitTime = time.Since(start)

	inDim := arch[0]
	outDim := arch[len(arch)-1]
	trueW := tensor.New(outDim, inDim).Uniform(-1, 1)

	fmt.Println("Starting training...")
	for epoch := 0; epoch < *epochs; epoch++ {
		epochLoss := 0.0
		for b := 0; b < *batches; b++ {
			x, target := makeBatch(trueW, cfg.BatchSize)
			loss, err := trainStep(model, x, target, *learningRate, stats)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error at epoch %d batch %d: %v\n", epoch, b, err)
				os.Exit(1)
			}
			epochLoss += loss
		}
		fmt.Printf("Epoch %d/%d | MSE: %.6f\n", epoch+1, *epochs, epochLoss/float64(*batches))
	}

	// Eval-mode loss: masks off, plain affine forward.
	model.SetTrain(false)
	x, target := makeBatch(trueW, cfg.BatchSize)
	out, err := model.Forward(x)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Eval forward failed: %v\n", err)
		os.Exit(1)
	}
	evalLoss, err := nn.MSELoss{}.Forward(out.(*tensor.Tensor), target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Eval loss failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nEval MSE: %.6f\n", evalLoss)

	if cfg.HEMode == "inference" {
		if err := runEncryptedInference(model, inDim, stats); err != nil {
			fmt.Fprintf(os.Stderr, "Encrypted inference failed: %v\n", err)
			os.Exit(1)
		}
	}

	stats.TotalTime = time.Since(totalStart)
	utils.PrintTimingStats(stats, *epochs * *batches)

	if *outputFile != "" {
		fmt.Printf("\nSaving weights to %s...\n", *outputFile)
		if err := saveWeights(model, *outputFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Done!")
	}
}

func buildModel(cfg *utils.Config) *nn.Sequential {
	layerList := make([]nn.Module, 0, len(cfg.Architecture)-1)
	for i := 0; i+1 < len(cfg.Architecture); i++ {
		l := layers.NewDropConnect(cfg.Architecture[i], cfg.Architecture[i+1], cfg.Ratio, false, nil)
		l.BatchwiseMask = cfg.Batchwise
		layerList = append(layerList, l)
	}
	return &nn.Sequential{Layers: layerList}
}

// makeBatch draws inputs from U[-1,1) and labels from a fixed affine map
// plus a little noise.
func makeBatch(trueW *tensor.Tensor, batchSize int) (*tensor.Tensor, *tensor.Tensor) {
	outDim, inDim := trueW.Shape[0], trueW.Shape[1]
	x := tensor.New(batchSize, inDim).Uniform(-1, 1)
	target := tensor.New(batchSize, outDim)
	for i := 0; i < batchSize; i++ {
		for j := 0; j < outDim; j++ {
			sum := 0.0
			for c := 0; c < inDim; c++ {
				sum += x.Data[i*inDim+c] * trueW.Data[j*inDim+c]
			}
			target.Data[i*outDim+j] = sum + 0.01*rand.NormFloat64()
		}
	}
	return x, target
}

func trainStep(model *nn.Sequential, x, target *tensor.Tensor, lr float64, stats *utils.TimingStats) (float64, error) {
	start := time.Now()
	out, err := model.Forward(x)
	if err != nil {
		return 0, err
	}
	stats.ForwardPassTime += time.Since(start)

	y := out.(*tensor.Tensor)
	var criterion nn.MSELoss
	loss, err := criterion.Forward(y, target)
	if err != nil {
		return 0, err
	}
	grad, err := criterion.Backward(y, target)
	if err != nil {
		return 0, err
	}

	start = time.Now()
	if _, err := model.Backward(grad); err != nil {
		return 0, err
	}
	stats.BackwardPassTime += time.Since(start)

	start = time.Now()
	for _, layer := range model.Layers {
		if dc, ok := layer.(*layers.DropConnect); ok {
			if err := dc.Update(lr); err != nil {
				return 0, err
			}
		}
	}
	stats.UpdateTime += time.Since(start)

	return loss, nil
}

// runEncryptedInference copies the first layer's trained weights into an
// encrypted layer and checks the HE output against the plaintext forward
// for one sample.
func runEncryptedInference(model *nn.Sequential, inDim int, stats *utils.TimingStats) error {
	trained, ok := model.Layers[0].(*layers.DropConnect)
	if !ok {
		return fmt.Errorf("first layer is not dropconnect")
	}
	outDim := trained.W.Shape[0]

	fmt.Println("\nInitializing HE context...")
	start := time.Now()
	heCtx := ckkswrapper.NewHeContextWithLogN(*logN)
	enc := layers.NewDropConnect(inDim, outDim, trained.Ratio, true, heCtx)
	copy(enc.W.Data, trained.W.Data)
	copy(enc.B.Data, trained.B.Data)
	enc.SetTrain(false)
	if err := enc.SyncHE(); err != nil {
		return err
	}
	stats.HEInitTime = time.Since(start)

	sample := tensor.New(1, inDim).Uniform(-1, 1)

	start = time.Now()
	ct, err := heCtx.EncryptFloats(sample.Data)
	if err != nil {
		return err
	}
	stats.EncryptionTime = time.Since(start)

	start = time.Now()
	outAny, err := enc.Forward(ct)
	if err != nil {
		return err
	}
	heForward := time.Since(start)
	stats.ForwardPassTime += heForward

	start = time.Now()
	heOut, err := heCtx.DecryptFloats(outAny.(*rlwe.Ciphertext), outDim)
	if err != nil {
		return err
	}
	stats.DecryptionTime = time.Since(start)

	plainAny, err := trained.Forward(sample)
	if err != nil {
		return err
	}
	plain := plainAny.(*tensor.Tensor)

	maxDiff := 0.0
	for j := 0; j < outDim; j++ {
		d := heOut[j] - plain.Data[j]
		if d < 0 {
			d = -d
		}
		if d > maxDiff {
			maxDiff = d
		}
	}
	fmt.Printf("Encrypted inference: forward %.2fms, max |HE - plain| = %.2e\n",
		float64(heForward.Milliseconds()), maxDiff)
	return nil
}

func saveWeights(model *nn.Sequential, filepath string) error {
	weights := &utils.ModelWeights{
		Version: "1.0",
		Layers:  make(map[string]utils.LayerWeight),
	}
	for i, layer := range model.Layers {
		if dc, ok := layer.(*layers.DropConnect); ok {
			weights.Layers[fmt.Sprintf("dropconnect_%d", i)] = utils.LayerWeight{
				Weight: utils.TensorToWeightData("weight", dc.W),
				Bias:   utils.TensorToWeightData("bias", dc.B),
			}
		}
	}
	return utils.SaveWeights(filepath, weights)
}
