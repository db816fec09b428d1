package fowl

import (
	"cmp"
	"encoding/json"
	"strings"
	"time"
)

// compareValues orders two leaf values of the same kind. Integers compare
// exactly; an integer and a decimal compare as float64. ok is false when the
// values are of different kinds or composite.
func compareValues(a, b any) (c int, ok bool) {
	switch a := a.(type) {
	case nil:
		if b == nil {
			return 0, true
		}
		return 0, false
	case string:
		if b, ok := b.(string); ok {
			return strings.Compare(a, b), true
		}
		return 0, false
	case bool:
		if b, ok := b.(bool); ok {
			return cmp.Compare(boolInt(a), boolInt(b)), true
		}
		return 0, false
	case time.Time:
		switch b := b.(type) {
		case time.Time:
			return a.Compare(b), true
		case *time.Time:
			if b != nil {
				return a.Compare(*b), true
			}
		}
		return 0, false
	}
	if ai, ok := toInt(a); ok {
		if bi, ok := toInt(b); ok {
			return cmp.Compare(ai, bi), true
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return cmp.Compare(af, bf), true
		}
	}
	return 0, false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toInt(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// equalValues is like compareValues == 0, but also compares maps and lists
// element by element.
func equalValues(a, b any) bool {
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	switch a := a.(type) {
	case map[string]any:
		b, ok := b.(map[string]any)
		if !ok || len(a) != len(b) {
			return false
		}
		for k, av := range a {
			bv, ok := b[k]
			if !ok || !equalValues(av, bv) {
				return false
			}
		}
		return true
	case []any:
		b, ok := b.([]any)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !equalValues(a[i], b[i]) {
				return false
			}
		}
		return true
	case []byte:
		b, ok := b.([]byte)
		return ok && string(a) == string(b)
	}
	return false
}

// match applies op to a document's field value; present is false when the
// document lacks the field.
func (op Operator) match(v any, present bool, want any) bool {
	switch op {
	case OpEq:
		return present && equalValues(v, want)
	case OpNe:
		return !present || !equalValues(v, want)
	case OpGt, OpGte, OpLt, OpLte:
		if !present {
			return false
		}
		c, ok := compareValues(v, want)
		if !ok {
			return false
		}
		switch op {
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		default:
			return c <= 0
		}
	}
	return false
}
