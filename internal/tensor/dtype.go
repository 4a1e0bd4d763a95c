// Package tensor provides the core tensor types and operations used by the ResNet models.
package tensor

import "fmt"

// DType constrains the element type of a Tensor. Networks, checkpoints and
// every backend kernel work in single precision, so float32 is the only
// member.
type DType interface {
	~float32
}

// DataType tags the element type of a RawTensor at run time.
type DataType int

// Float32 is the only element type a RawTensor stores.
const Float32 DataType = 0

// Size returns the element width in bytes.
func (dt DataType) Size() int {
	if dt != Float32 {
		panic(fmt.Sprintf("tensor: unsupported data type %d", int(dt)))
	}
	return 4
}

// String returns "float32", the name SafeTensors and torch use for it.
func (dt DataType) String() string {
	if dt == Float32 {
		return "float32"
	}
	return fmt.Sprintf("DataType(%d)", int(dt))
}
