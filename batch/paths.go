package batch

import (
	"bytes"
	"encoding/json"

	"github.com/plateflow/plateflow/types"
)

// Shape identifies which of the three path collection shapes a PathValue
// carries.
type Shape int

const (
	// ShapeNone marks the zero PathValue.
	ShapeNone Shape = iota
	// ShapeList is a flat sequence of paths.
	ShapeList
	// ShapeNestedList is a one-level-nested sequence of path sequences.
	ShapeNestedList
	// ShapeMap is a mapping from names to path sequences.
	ShapeMap
)

// PathValue is one entry of a batch's inputs or outputs mapping. Every entry
// uses exactly one of the three shapes, consistently for its key; anything
// else is rejected with MALFORMED_SHAPE when decoding.
type PathValue struct {
	shape  Shape
	list   []string
	nested [][]string
	groups map[string][]string
}

// List creates a flat path value.
func List(paths ...string) PathValue {
	return PathValue{shape: ShapeList, list: paths}
}

// NestedList creates a one-level-nested path value.
func NestedList(groups ...[]string) PathValue {
	return PathValue{shape: ShapeNestedList, nested: groups}
}

// MapOfLists creates a mapping path value.
func MapOfLists(groups map[string][]string) PathValue {
	return PathValue{shape: ShapeMap, groups: groups}
}

// Shape returns the shape of the value.
func (v PathValue) Shape() Shape {
	return v.shape
}

// Flatten returns every path of the value as a flat list.
func (v PathValue) Flatten() []string {
	switch v.shape {
	case ShapeList:
		return append([]string(nil), v.list...)
	case ShapeNestedList:
		var out []string
		for _, group := range v.nested {
			out = append(out, group...)
		}
		return out
	case ShapeMap:
		var out []string
		for _, group := range v.groups {
			out = append(out, group...)
		}
		return out
	}
	return nil
}

// mapPaths applies f to every path, preserving the shape.
func (v PathValue) mapPaths(f func(string) (string, error)) (PathValue, error) {
	switch v.shape {
	case ShapeList:
		out := make([]string, len(v.list))
		for i, p := range v.list {
			mapped, err := f(p)
			if err != nil {
				return PathValue{}, err
			}
			out[i] = mapped
		}
		return PathValue{shape: ShapeList, list: out}, nil
	case ShapeNestedList:
		out := make([][]string, len(v.nested))
		for i, group := range v.nested {
			out[i] = make([]string, len(group))
			for j, p := range group {
				mapped, err := f(p)
				if err != nil {
					return PathValue{}, err
				}
				out[i][j] = mapped
			}
		}
		return PathValue{shape: ShapeNestedList, nested: out}, nil
	case ShapeMap:
		out := make(map[string][]string, len(v.groups))
		for name, group := range v.groups {
			mapped := make([]string, len(group))
			for j, p := range group {
				m, err := f(p)
				if err != nil {
					return PathValue{}, err
				}
				mapped[j] = m
			}
			out[name] = mapped
		}
		return PathValue{shape: ShapeMap, groups: out}, nil
	}
	return PathValue{}, types.NewError(types.ErrMalformedShape, "path value has no shape")
}

// MarshalJSON implements json.Marshaler.
func (v PathValue) MarshalJSON() ([]byte, error) {
	switch v.shape {
	case ShapeList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case ShapeNestedList:
		return json.Marshal(v.nested)
	case ShapeMap:
		return json.Marshal(v.groups)
	}
	return nil, types.NewError(types.ErrMalformedShape, "path value has no shape")
}

// UnmarshalJSON implements json.Unmarshaler. A JSON array of strings decodes
// as a flat list, an array of string arrays as a nested list, and an object
// with string-array values as a mapping. Mixed or deeper nesting fails with
// MALFORMED_SHAPE.
func (v *PathValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return types.NewError(types.ErrMalformedShape, "empty path value")
	}
	switch trimmed[0] {
	case '{':
		var groups map[string][]string
		if err := json.Unmarshal(trimmed, &groups); err != nil {
			return types.NewError(
				types.ErrMalformedShape,
				"path mapping values must be sequences of strings",
			).WithCause(err)
		}
		*v = PathValue{shape: ShapeMap, groups: groups}
		return nil
	case '[':
		var list []string
		if err := json.Unmarshal(trimmed, &list); err == nil {
			*v = PathValue{shape: ShapeList, list: list}
			return nil
		}
		var nested [][]string
		if err := json.Unmarshal(trimmed, &nested); err == nil {
			*v = PathValue{shape: ShapeNestedList, nested: nested}
			return nil
		}
		return types.NewError(
			types.ErrMalformedShape,
			"path sequence must contain strings or one level of string sequences",
		)
	}
	return types.NewError(
		types.ErrMalformedShape,
		"path value must be a sequence or a mapping",
	)
}
