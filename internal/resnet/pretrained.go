package resnet

import (
	"fmt"

	"github.com/born-ml/resnet/internal/tensor"
	"github.com/born-ml/resnet/internal/weights"
)

// LoadPretrained loads a SafeTensors state dict from path into n.
//
// The file is typically a torchvision checkpoint converted with
// safetensors.torch.save_file; see Architecture.URL for the source weights.
// Integer tensors such as num_batches_tracked are ignored.
func LoadPretrained[B tensor.Backend](n *Network[B], path string) error {
	f, err := weights.ReadFile(path)
	if err != nil {
		return fmt.Errorf("resnet: load pretrained: %w", err)
	}
	stateDict, _, err := f.StateDict()
	if err != nil {
		return fmt.Errorf("resnet: load pretrained: %w", err)
	}
	return n.LoadStateDict(stateDict)
}

// SaveWeights writes the state dict of n to path in SafeTensors format,
// recording the architecture in the metadata.
func SaveWeights[B tensor.Backend](n *Network[B], path string) error {
	cfg := n.Config()
	metadata := map[string]string{
		"format":      "pt",
		"arch":        n.Name(),
		"block":       cfg.Block.String(),
		"layers":      fmt.Sprint(cfg.Layers),
		"num_classes": fmt.Sprint(cfg.NumClasses),
		"include_top": fmt.Sprint(cfg.IncludeTop),
	}
	if err := weights.WriteFile(path, n.StateDict(), metadata); err != nil {
		return fmt.Errorf("resnet: save weights: %w", err)
	}
	return nil
}
