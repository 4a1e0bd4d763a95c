package resnet

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultNumClasses is the ImageNet class count.
const DefaultNumClasses = 1000

// NumStages is the number of residual stages in every ResNet.
const NumStages = 4

// Stage widths and strides shared by the whole family.
var (
	StageWidths  = [NumStages]int{64, 128, 256, 512}
	StageStrides = [NumStages]int{1, 2, 2, 2}
)

// Config describes a network.
//
// In YAML either depth names a preset, or block and layers are given
// explicitly (they override the preset when both are present):
//
//	depth: 50
//	num_classes: 10
//	include_top: true
//
//	block: basic
//	layers: [2, 2, 2, 2]
type Config struct {
	Depth      int       `yaml:"depth,omitempty"`
	Block      BlockKind `yaml:"block,omitempty"`
	Layers     []int     `yaml:"layers,omitempty,flow"`
	NumClasses int       `yaml:"num_classes"`
	IncludeTop bool      `yaml:"include_top"`
}

// DefaultConfig returns a head-on, 1000-class config with no architecture set.
func DefaultConfig() Config {
	return Config{
		NumClasses: DefaultNumClasses,
		IncludeTop: true,
	}
}

// Resolve fills Block and Layers from the preset named by Depth when they are unset.
func (c Config) Resolve() (Config, error) {
	if c.Depth == 0 {
		return c, nil
	}
	arch, err := Preset(c.Depth)
	if err != nil {
		return c, err
	}
	if c.Block == 0 {
		c.Block = arch.Block
	}
	if len(c.Layers) == 0 {
		c.Layers = append([]int(nil), arch.Layers[:]...)
	}
	return c, nil
}

// Validate checks the block kind, the four block counts and the class count.
func (c Config) Validate() error {
	var errs []error
	if c.Block != Basic && c.Block != Bottleneck {
		errs = append(errs, fmt.Errorf("block must be basic or bottleneck, got %v", c.Block))
	}
	if len(c.Layers) != NumStages {
		errs = append(errs, fmt.Errorf("layers must have %d entries, got %d", NumStages, len(c.Layers)))
	}
	for i, n := range c.Layers {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("layers[%d] must be positive, got %d", i, n))
		}
	}
	if c.IncludeTop && c.NumClasses <= 0 {
		errs = append(errs, fmt.Errorf("num_classes must be positive, got %d", c.NumClasses))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NetworkDepth returns the number of weighted layers: the stem convolution, every
// block convolution on the main branch and the classifier.
//
// This is the number in a preset's name (34 for Basic [3,4,6,3]).
func (c Config) NetworkDepth() int {
	total := 0
	for _, n := range c.Layers {
		total += n
	}
	return total*c.Block.LayersPerBlock() + 2
}

// ParseConfig decodes YAML on top of DefaultConfig, resolves a preset depth
// and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg, err := cfg.Resolve()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	//nolint:gosec // G304: config path comes from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Marshal encodes the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
