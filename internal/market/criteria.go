package market

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
)

// Criteria keys the engine reads or rewrites. Everything else is passed through untouched.
const (
	KeyMinBid    = "minBid"
	KeyMaxBid    = "maxBid"
	KeyMinBuy    = "minBuy"
	KeyMaxBuy    = "maxBuy"
	KeySellPrice = "sellPrice"
)

// Criteria is a host search-parameter record. Values follow JSON typing.
type Criteria map[string]any

// Clone returns a deep copy so request-scoped rewrites never leak into a saved filter.
func (c Criteria) Clone() Criteria {
	if c == nil {
		return Criteria{}
	}
	out := make(Criteria, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

// Int reads a numeric field, returning 0 when it is absent or not a number.
func (c Criteria) Int(key string) int {
	v, ok := c[key]
	if !ok {
		return 0
	}
	f, ok := Number(v)
	if !ok {
		return 0
	}
	return int(math.Round(f))
}

// Set writes a field in place.
func (c Criteria) Set(key string, value any) {
	c[key] = value
}

// Merge overlays other onto a copy of c.
func (c Criteria) Merge(other Criteria) Criteria {
	out := c.Clone()
	for k, v := range other {
		out[k] = cloneValue(v)
	}
	return out
}

// Number normalises the numeric shapes a criteria value can take after JSON,
// YAML or Go literal construction.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Equal compares two criteria values, treating numbers of different Go types as equal
// when they hold the same value and comparing slices element-wise.
func Equal(a, b any) bool {
	if as, ok := asSlice(a); ok {
		bs, ok := asSlice(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !Equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	if _, isStr := a.(string); !isStr {
		if af, ok := Number(a); ok {
			if _, bStr := b.(string); bStr {
				return false
			}
			bf, ok := Number(b)
			return ok && af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// Len reports the length of a slice-valued field, or 0.
func Len(v any) int {
	s, ok := asSlice(v)
	if !ok {
		return 0
	}
	return len(s)
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []int:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []int64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	default:
		return nil, false
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Criteria(t).Clone())
	case Criteria:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	case []int:
		return append([]int(nil), t...)
	case []int64:
		return append([]int64(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
