package converters

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToInt(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int
		ok   bool
	}{
		{"json number", float64(100), 100, true},
		{"fraction truncated", 12.9, 12, true},
		{"int", 7, 7, true},
		{"int64", int64(8), 8, true},
		{"json.Number", json.Number("42"), 42, true},
		{"string", "100", 100, true},
		{"padded string", " 64 ", 64, true},
		{"zero decimal string", "100.0", 100, true},
		{"word", "many", 0, false},
		{"nan", math.NaN(), 0, false},
		{"infinity", math.Inf(1), 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
		{"list", []any{1}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toInt(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"json number", 0.7, 0.7, true},
		{"int", 1, 1, true},
		{"json.Number", json.Number("0.25"), 0.25, true},
		{"string", "0.5", 0.5, true},
		{"padded string", " 1.5\n", 1.5, true},
		{"nan string", "NaN", 0, false},
		{"nan", math.NaN(), 0, false},
		{"word", "hot", 0, false},
		{"bool", false, 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toFloat(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestIntField(t *testing.T) {
	assert.Equal(t, 3, intField(map[string]any{"n": float64(3)}, "n"))
	assert.Zero(t, intField(map[string]any{"n": "x"}, "n"))
	assert.Zero(t, intField(nil, "n"))
}
