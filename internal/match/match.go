// Package match narrows topic-matched registry entries down to the handlers
// that should receive a particular event.
package match

import (
	"math"
	"reflect"

	"github.com/casualjim/crier/internal/registry"
)

// Select returns the values of the entries that should receive an event.
//
// For a plain event every entry is selected. For an attributed event only
// attributed entries are considered, and of those only the ones whose required
// attributes are all present in attrs with equal values.
func Select[T comparable](entries []registry.Entry[T], attributed bool, attrs map[string]any) []T {
	if len(entries) == 0 {
		return nil
	}

	out := make([]T, 0, len(entries))
	for _, e := range entries {
		if !attributed {
			out = append(out, e.Value)
			continue
		}
		if e.Kind != registry.Attributed {
			continue
		}
		if Contains(attrs, e.Required) {
			out = append(out, e.Value)
		}
	}
	return out
}

// Contains reports whether every key of want is present in have with an equal
// value. An empty want is always contained.
func Contains(have, want map[string]any) bool {
	for k, wv := range want {
		hv, ok := have[k]
		if !ok || !Equal(hv, wv) {
			return false
		}
	}
	return true
}

// Equal compares two attribute values. Numbers of different Go kinds compare
// by value, so int(1) equals float64(1). Two integers compare exactly; an
// integer equals a float only when the float is integral and converts back to
// the same integer.
func Equal(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}

	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	ak, bk := numberKind(av), numberKind(bv)
	if ak == notNumber || bk == notNumber {
		return false
	}
	if ak > bk {
		av, bv, ak, bk = bv, av, bk, ak
	}

	switch {
	case ak == signed && bk == signed:
		return av.Int() == bv.Int()
	case ak == signed && bk == unsigned:
		i := av.Int()
		return i >= 0 && uint64(i) == bv.Uint()
	case ak == unsigned && bk == unsigned:
		return av.Uint() == bv.Uint()
	case ak == floating:
		return av.Float() == bv.Float()
	case ak == signed:
		f := bv.Float()
		return f == math.Trunc(f) && f >= -(1<<63) && f < 1<<63 && int64(f) == av.Int()
	default:
		f := bv.Float()
		return f == math.Trunc(f) && f >= 0 && f < 1<<64 && uint64(f) == av.Uint()
	}
}

type kind uint8

const (
	notNumber kind = iota
	signed
	unsigned
	floating
)

func numberKind(v reflect.Value) kind {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return signed
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return unsigned
	case reflect.Float32, reflect.Float64:
		return floating
	default:
		return notNumber
	}
}
