package weights

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"
	"sort"

	"github.com/born-ml/resnet/internal/tensor"
)

// File is a parsed SafeTensors file held in memory.
type File struct {
	metadata map[string]string
	tensors  map[string]TensorInfo
	data     []byte // data section
}

// ReadFile parses the SafeTensors file at path.
func ReadFile(path string) (*File, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	file, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Read parses a SafeTensors stream.
//
// The header is validated: every tensor's byte range must lie inside the
// data section, match its shape and dtype, and not overlap another tensor.
// If the metadata carries a "sha256" entry the data section is verified
// against it.
func Read(r io.Reader) (*File, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var h header
	if err := json.Unmarshal(headerBytes, &h); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	if err := validate(h.Tensors, int64(len(data))); err != nil {
		return nil, err
	}
	if sum, ok := h.Metadata[ChecksumKey]; ok {
		computed := sha256.Sum256(data)
		if hex.EncodeToString(computed[:]) != sum {
			return nil, ErrChecksumMismatch
		}
	}

	return &File{metadata: h.Metadata, tensors: h.Tensors, data: data}, nil
}

// validate checks byte ranges against shapes and the data section.
func validate(tensors map[string]TensorInfo, dataSize int64) error {
	type span struct {
		name       string
		start, end int64
	}
	spans := make([]span, 0, len(tensors))

	for name, info := range tensors {
		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start {
			return &TensorError{Tensor: name, Err: ErrOutOfBounds, Detail: fmt.Sprintf("offsets [%d, %d]", start, end)}
		}
		if end > dataSize {
			return &TensorError{Tensor: name, Err: ErrTruncated, Detail: fmt.Sprintf("end %d > data size %d", end, dataSize)}
		}
		if size := info.DType.Size(); size > 0 {
			want, ok := byteSize(info.Shape, size)
			if !ok {
				return &TensorError{Tensor: name, Err: ErrSizeMismatch, Detail: fmt.Sprintf("invalid shape %v", info.Shape)}
			}
			if end-start != want {
				return &TensorError{Tensor: name, Err: ErrSizeMismatch, Detail: fmt.Sprintf("%d bytes for %s%v", end-start, info.DType, info.Shape)}
			}
		}
		spans = append(spans, span{name, start, end})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i-1].end > spans[i].start {
			return &TensorError{Tensor: spans[i-1].name, Err: ErrOffsetOverlap, Detail: "overlaps " + spans[i].name}
		}
	}
	return nil
}

// byteSize returns the byte length of a tensor of the given shape, or false
// if a dimension is negative or the product overflows int64.
func byteSize(shape []int, elemSize int) (int64, bool) {
	n := uint64(elemSize)
	for _, d := range shape {
		if d < 0 {
			return 0, false
		}
		hi, lo := bits.Mul64(n, uint64(d))
		if hi != 0 || lo > math.MaxInt64 {
			return 0, false
		}
		n = lo
	}
	return int64(n), true
}

// Metadata returns the "__metadata__" map (nil if absent).
func (f *File) Metadata() map[string]string {
	return f.metadata
}

// Names returns all tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.tensors))
	for name := range f.tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns the header entry of a tensor.
func (f *File) Info(name string) (TensorInfo, error) {
	info, ok := f.tensors[name]
	if !ok {
		return TensorInfo{}, &TensorError{Tensor: name, Err: ErrNotFound}
	}
	return info, nil
}

// Tensor decodes a floating-point tensor into a float32 RawTensor.
func (f *File) Tensor(name string) (*tensor.RawTensor, error) {
	info, err := f.Info(name)
	if err != nil {
		return nil, err
	}
	if !info.DType.IsFloat() {
		return nil, &TensorError{Tensor: name, Err: ErrUnsupportedDType, Detail: string(info.DType)}
	}

	raw, err := tensor.NewRaw(tensor.Shape(info.Shape), tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}

	src := f.data[info.DataOffsets[0]:info.DataOffsets[1]]
	dst := raw.AsFloat32()
	switch info.DType {
	case F32:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
		}
	case F64:
		for i := range dst {
			dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(src[8*i:])))
		}
	case F16:
		for i := range dst {
			dst[i] = halfToFloat32(binary.LittleEndian.Uint16(src[2*i:]))
		}
	case BF16:
		for i := range dst {
			dst[i] = bfloat16ToFloat32(binary.LittleEndian.Uint16(src[2*i:]))
		}
	}
	return raw, nil
}

// StateDict decodes every floating-point tensor.
//
// Non-float tensors are skipped and their names returned in skipped.
func (f *File) StateDict() (stateDict map[string]*tensor.RawTensor, skipped []string, err error) {
	stateDict = make(map[string]*tensor.RawTensor, len(f.tensors))
	for _, name := range f.Names() {
		if !f.tensors[name].DType.IsFloat() {
			skipped = append(skipped, name)
			continue
		}
		raw, err := f.Tensor(name)
		if err != nil {
			return nil, nil, err
		}
		stateDict[name] = raw
	}
	return stateDict, skipped, nil
}
