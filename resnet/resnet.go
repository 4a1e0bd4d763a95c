// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package resnet provides the ResNet family of image classifiers.
//
// ResNet-18 and ResNet-34 stack basic blocks (two 3x3 convolutions);
// ResNet-50, ResNet-101 and ResNet-152 stack bottleneck blocks
// (1x1 reduce, 3x3, 1x1 expand by 4). Every network has a 7x7 stem, four
// stages of widths 64/128/256/512 and an optional global-pool plus linear
// classification head.
//
// Example:
//
//	backend := cpu.New()
//	net := resnet.ResNet50(1000, true, backend)
//	if err := resnet.LoadPretrained(net, "resnet50.safetensors"); err != nil {
//	    log.Fatal(err)
//	}
//	net.Eval()
//	logits := net.Forward(images) // [N, 1000]
//
// Custom layouts are described by a Config, in Go or YAML:
//
//	cfg, err := resnet.ParseConfig([]byte("block: basic\nlayers: [1, 1, 1, 1]\nnum_classes: 10\n"))
//	net, err := resnet.New(cfg, backend)
package resnet

import (
	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/optim"
	"github.com/born-ml/resnet/internal/resnet"
	"github.com/born-ml/resnet/internal/tensor"
)

// DefaultNumClasses is the ImageNet class count.
const DefaultNumClasses = resnet.DefaultNumClasses

// BlockKind selects the residual block variant.
type BlockKind = resnet.BlockKind

// Block variants.
const (
	Basic      BlockKind = resnet.Basic
	Bottleneck BlockKind = resnet.Bottleneck
)

// ParseBlockKind parses "basic" or "bottleneck".
func ParseBlockKind(s string) (BlockKind, error) {
	return resnet.ParseBlockKind(s)
}

// Block is a residual block.
type Block[B tensor.Backend] = resnet.Block[B]

// Stage is a run of blocks at one width.
type Stage[B tensor.Backend] = resnet.Stage[B]

// Network is a complete ResNet.
type Network[B tensor.Backend] = resnet.Network[B]

// Config describes a network layout.
type Config = resnet.Config

// Architecture is a named preset.
type Architecture = resnet.Architecture

// Summary is a structural overview of a network.
type Summary = resnet.Summary

// Trainer runs cross-entropy SGD steps.
type Trainer[B autodiff.BackwardCapable] = resnet.Trainer[B]

// StepResult reports one training step.
type StepResult = resnet.StepResult

// New builds a network from a config.
func New[B tensor.Backend](cfg Config, backend B) (*Network[B], error) {
	return resnet.New(cfg, backend)
}

// ParseConfig decodes and validates a YAML config.
func ParseConfig(data []byte) (Config, error) {
	return resnet.ParseConfig(data)
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	return resnet.LoadConfig(path)
}

// Preset returns the architecture for a standard depth.
func Preset(depth int) (Architecture, error) {
	return resnet.Preset(depth)
}

// Depths returns the available preset depths.
func Depths() []int {
	return resnet.Depths()
}

// FromPreset builds the network for a preset depth.
func FromPreset[B tensor.Backend](depth, numClasses int, includeTop bool, backend B) (*Network[B], error) {
	return resnet.FromPreset(depth, numClasses, includeTop, backend)
}

// ResNet18 builds ResNet-18: basic blocks [2, 2, 2, 2].
func ResNet18[B tensor.Backend](numClasses int, includeTop bool, backend B) *Network[B] {
	return resnet.ResNet18(numClasses, includeTop, backend)
}

// ResNet34 builds ResNet-34: basic blocks [3, 4, 6, 3].
func ResNet34[B tensor.Backend](numClasses int, includeTop bool, backend B) *Network[B] {
	return resnet.ResNet34(numClasses, includeTop, backend)
}

// ResNet50 builds ResNet-50: bottleneck blocks [3, 4, 6, 3].
func ResNet50[B tensor.Backend](numClasses int, includeTop bool, backend B) *Network[B] {
	return resnet.ResNet50(numClasses, includeTop, backend)
}

// ResNet101 builds ResNet-101: bottleneck blocks [3, 4, 23, 3].
func ResNet101[B tensor.Backend](numClasses int, includeTop bool, backend B) *Network[B] {
	return resnet.ResNet101(numClasses, includeTop, backend)
}

// ResNet152 builds ResNet-152: bottleneck blocks [3, 8, 36, 3].
func ResNet152[B tensor.Backend](numClasses int, includeTop bool, backend B) *Network[B] {
	return resnet.ResNet152(numClasses, includeTop, backend)
}

// Summarize reports parameter counts and convolution weight statistics.
func Summarize[B tensor.Backend](n *Network[B]) Summary {
	return resnet.Summarize(n)
}

// LoadPretrained loads SafeTensors weights into n.
func LoadPretrained[B tensor.Backend](n *Network[B], path string) error {
	return resnet.LoadPretrained(n, path)
}

// SaveWeights writes the state dict of n as SafeTensors.
func SaveWeights[B tensor.Backend](n *Network[B], path string) error {
	return resnet.SaveWeights(n, path)
}

// NewTrainer creates a trainer over every parameter of net.
func NewTrainer[B autodiff.BackwardCapable](net *Network[B], config optim.SGDConfig, backend B) *Trainer[B] {
	return resnet.NewTrainer(net, config, backend)
}
