package core

import (
	"encoding/json"
	"math"
)

// NormalizeArgs maps JSON-decoded call arguments back to Go numbers:
// integral values become int, all other numbers float64. Nested slices and
// maps are converted too. The inputs are not modified.
func NormalizeArgs(args []any, kwargs map[string]any) ([]any, map[string]any) {
	var outArgs []any
	if args != nil {
		outArgs = normalizeSlice(args)
	}
	var outKwargs map[string]any
	if kwargs != nil {
		outKwargs = normalizeMap(kwargs)
	}
	return outArgs, outKwargs
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil && int64(int(i)) == i {
			return int(i)
		}
		if f, err := x.Float64(); err == nil {
			return normalizeValue(f)
		}
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= 1<<53 {
			return int(x)
		}
		return x
	case []any:
		return normalizeSlice(x)
	case map[string]any:
		return normalizeMap(x)
	}
	return v
}

func normalizeSlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = normalizeValue(v)
	}
	return out
}

func normalizeMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}
