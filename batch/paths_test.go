package batch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateflow/plateflow/types"
)

func TestPathValue_DecodeShapes(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantShape Shape
		wantFlat  []string
	}{
		{
			name:      "flat list",
			raw:       `["a.png", "b.png"]`,
			wantShape: ShapeList,
			wantFlat:  []string{"a.png", "b.png"},
		},
		{
			name:      "nested list",
			raw:       `[["a.png"], ["b.png", "c.png"]]`,
			wantShape: ShapeNestedList,
			wantFlat:  []string{"a.png", "b.png", "c.png"},
		},
		{
			name:      "mapping",
			raw:       `{"site1": ["a.png"], "site2": ["b.png"]}`,
			wantShape: ShapeMap,
		},
		{
			name:      "empty list",
			raw:       `[]`,
			wantShape: ShapeList,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v PathValue
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &v))
			assert.Equal(t, tt.wantShape, v.Shape())
			if tt.wantFlat != nil {
				assert.Equal(t, tt.wantFlat, v.Flatten())
			}
		})
	}
}

func TestPathValue_DecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "scalar", raw: `"a.png"`},
		{name: "number", raw: `17`},
		{name: "too deep", raw: `[[["a.png"]]]`},
		{name: "mixed list", raw: `["a.png", ["b.png"]]`},
		{name: "mapping to scalar", raw: `{"site1": "a.png"}`},
		{name: "mapping to mapping", raw: `{"site1": {"x": ["a.png"]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v PathValue
			err := json.Unmarshal([]byte(tt.raw), &v)
			require.Error(t, err)
			assert.Equal(t, types.ErrMalformedShape, types.GetErrorCode(err))
		})
	}
}

func TestPathValue_EncodeRoundTrip(t *testing.T) {
	values := []PathValue{
		List("a.png", "b.png"),
		NestedList([]string{"a.png"}, []string{"b.png", "c.png"}),
		MapOfLists(map[string][]string{"site1": {"a.png"}}),
	}

	for _, v := range values {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		var decoded PathValue
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, v, decoded)
	}
}
