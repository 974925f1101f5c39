package fusion

import (
	"fmt"
)

// DType identifies the element type of a stored dataset.
type DType string

const (
	// DTypeFloat64 marks 64-bit floating point elements.
	DTypeFloat64 DType = "float64"
	// DTypeInt64 marks 64-bit signed integer elements.
	DTypeInt64 DType = "int64"
	// DTypeUint32 marks 32-bit unsigned integer elements.
	DTypeUint32 DType = "uint32"
	// DTypeString marks variable-length string elements.
	DTypeString DType = "string"
	// DTypeBool marks boolean elements.
	DTypeBool DType = "bool"
)

// Array is an in-memory slab of dataset elements together with its shape.
// Data holds a slice whose element type corresponds to DType.
type Array struct {
	// DType is the element type.
	DType DType
	// Dims is the shape; fused datasets are one-dimensional.
	Dims []int
	// Data is the backing slice.
	Data any
}

// Rows returns the extent of the first dimension, zero for an empty shape.
func (a Array) Rows() int {
	if len(a.Dims) == 0 {
		return 0
	}
	return a.Dims[0]
}

// Reader is a read-only handle on one file of the fragment store. Dataset
// paths are slash-separated, relative to the file root, e.g.
// "objects/cells/features/area".
type Reader interface {
	// Exists reports whether a dataset or group exists at the path.
	Exists(path string) bool
	// ListGroups returns the names of the immediate child groups of a
	// group, sorted.
	ListGroups(path string) ([]string, error)
	// ListDatasets returns the names of the immediate child datasets of a
	// group, sorted.
	ListDatasets(path string) ([]string, error)
	// Dimensions returns the shape of a dataset.
	Dimensions(path string) ([]int, error)
	// DType returns the element type of a dataset.
	DType(path string) (DType, error)
	// Read loads a whole dataset into memory.
	Read(path string) (Array, error)
	// Close releases the handle.
	Close() error
}

// Writer is a write handle on one file of the fragment store.
type Writer interface {
	// Exists reports whether a dataset exists at the path.
	Exists(path string) bool
	// Preallocate creates a one-dimensional dataset of the given element
	// type and extent, replacing any previous dataset at the path.
	Preallocate(path string, dtype DType, rows int) error
	// WriteAt copies a one-dimensional array into the dataset starting at
	// the given row offset.
	WriteAt(path string, offset int, data Array) error
	// Close flushes and releases the handle.
	Close() error
}

// Opener creates store handles by file path and removes files.
type Opener interface {
	// OpenReader opens an existing file for reading.
	OpenReader(name string) (Reader, error)
	// OpenWriter opens a file for writing, creating it if absent.
	OpenWriter(name string) (Writer, error)
	// Remove deletes a file.
	Remove(name string) error
}

// newSlice allocates a backing slice for a dataset.
func newSlice(dtype DType, n int) (any, error) {
	switch dtype {
	case DTypeFloat64:
		return make([]float64, n), nil
	case DTypeInt64:
		return make([]int64, n), nil
	case DTypeUint32:
		return make([]uint32, n), nil
	case DTypeString:
		return make([]string, n), nil
	case DTypeBool:
		return make([]bool, n), nil
	}
	return nil, fmt.Errorf("unsupported element type %q", dtype)
}

// sliceLen returns the length of a backing slice.
func sliceLen(data any) int {
	switch s := data.(type) {
	case []float64:
		return len(s)
	case []int64:
		return len(s)
	case []uint32:
		return len(s)
	case []string:
		return len(s)
	case []bool:
		return len(s)
	}
	return 0
}

// copyInto copies src into dst at the given element offset. Both slices must
// share an element type and src must fit.
func copyInto(dst, src any, offset int) error {
	switch d := dst.(type) {
	case []float64:
		s, ok := src.([]float64)
		if !ok || offset+len(s) > len(d) {
			return copyError(dst, src, offset)
		}
		copy(d[offset:], s)
	case []int64:
		s, ok := src.([]int64)
		if !ok || offset+len(s) > len(d) {
			return copyError(dst, src, offset)
		}
		copy(d[offset:], s)
	case []uint32:
		s, ok := src.([]uint32)
		if !ok || offset+len(s) > len(d) {
			return copyError(dst, src, offset)
		}
		copy(d[offset:], s)
	case []string:
		s, ok := src.([]string)
		if !ok || offset+len(s) > len(d) {
			return copyError(dst, src, offset)
		}
		copy(d[offset:], s)
	case []bool:
		s, ok := src.([]bool)
		if !ok || offset+len(s) > len(d) {
			return copyError(dst, src, offset)
		}
		copy(d[offset:], s)
	default:
		return copyError(dst, src, offset)
	}
	return nil
}

func copyError(dst, src any, offset int) error {
	return fmt.Errorf("cannot copy %T (%d elements) into %T (%d elements) at offset %d",
		src, sliceLen(src), dst, sliceLen(dst), offset)
}
