package converters

import (
	"math"
	"strings"

	"github.com/spf13/cast"
)

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// coercible rejects values cast would quietly turn into numbers: nil and
// booleans become 0 or 1 there. Strings are trimmed.
func coercible(v any) (any, bool) {
	switch n := v.(type) {
	case nil, bool:
		return nil, false
	case float64:
		return n, finite(n)
	case float32:
		return n, finite(float64(n))
	case string:
		return strings.TrimSpace(n), true
	default:
		return v, true
	}
}

// toInt accepts JSON numbers, Go integers and integer strings. Fractional
// numbers are truncated.
func toInt(v any) (int, bool) {
	v, ok := coercible(v)
	if !ok {
		return 0, false
	}

	n, err := cast.ToIntE(v)

	return n, err == nil
}

// toFloat accepts JSON numbers, Go numerics and numeric strings.
func toFloat(v any) (float64, bool) {
	v, ok := coercible(v)
	if !ok {
		return 0, false
	}

	f, err := cast.ToFloat64E(v)
	if err != nil || !finite(f) {
		return 0, false
	}

	return f, true
}

// intField reads a token counter; missing or malformed values count as zero.
func intField(m map[string]any, key string) int {
	if m == nil {
		return 0
	}

	n, _ := toInt(m[key])

	return n
}
