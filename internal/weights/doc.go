// Package weights reads and writes state dicts in the SafeTensors layout.
//
// Layout:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw little-endian bytes]
//
// The header maps each tensor name to its dtype, shape and byte range within
// the data section, plus an optional "__metadata__" string map.
//
// Torchvision checkpoints converted with safetensors.torch.save_file load
// directly. F64, F16 and BF16 tensors are widened or narrowed to float32 on
// read; integer tensors (BatchNorm's num_batches_tracked) are skipped by
// StateDict.
package weights
