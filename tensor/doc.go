// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor API used by the ResNet models.
//
// # Overview
//
// Tensor[T, B] is a generic single-precision tensor bound to a compute
// backend. Every operation dispatches to the backend, so the same model code
// runs on the plain CPU backend for inference and on an autodiff-wrapped
// backend for training.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/resnet/backend/cpu"
//	    "github.com/born-ml/resnet/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    images := tensor.Randn[float32](tensor.Shape{2, 3, 224, 224}, backend)
//	    flat := images.Flatten(1) // [2, 150528]
//	}
//
// # Layout
//
// Image batches are NCHW: [batch, channels, height, width], row-major.
// Shapes follow NumPy broadcasting rules for element-wise operations.
package tensor
