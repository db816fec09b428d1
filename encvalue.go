package fowl

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/andreyvit/fowl/tuple"
)

const (
	tagString  = 0
	tagInt     = 1
	tagDecimal = 2
	tagBool    = 3
	tagDate    = 4
	tagNested  = 5
	tagNull    = 6
)

// EncodeValue encodes a single leaf value as a tuple of a type tag and its
// payload. Maps, slices and structs are encoded as an opaque msgpack blob.
func EncodeValue(v any) ([]byte, error) {
	switch v := v.(type) {
	case nil:
		return tuple.Pack(tagNull), nil
	case string:
		return tuple.Pack(tagString, []byte(v)), nil
	case int:
		return tuple.Pack(tagInt, int64(v)), nil
	case int8:
		return tuple.Pack(tagInt, int64(v)), nil
	case int16:
		return tuple.Pack(tagInt, int64(v)), nil
	case int32:
		return tuple.Pack(tagInt, int64(v)), nil
	case int64:
		return tuple.Pack(tagInt, v), nil
	case uint:
		return encodeUint(uint64(v))
	case uint8:
		return tuple.Pack(tagInt, int64(v)), nil
	case uint16:
		return tuple.Pack(tagInt, int64(v)), nil
	case uint32:
		return tuple.Pack(tagInt, int64(v)), nil
	case uint64:
		return encodeUint(v)
	case float32:
		return encodeDecimal(float64(v))
	case float64:
		return encodeDecimal(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return tuple.Pack(tagInt, n), nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, codecErrf(nil, v, ErrUnsupportedType, "invalid number %q", v.String())
		}
		return encodeDecimal(f)
	case bool:
		if v {
			return tuple.Pack(tagBool, int64(1)), nil
		}
		return tuple.Pack(tagBool, int64(0)), nil
	case time.Time:
		return tuple.Pack(append(tuple.Tuple{tagDate}, dateComponents(v)...)...), nil
	case *time.Time:
		if v == nil {
			return tuple.Pack(tagNull), nil
		}
		return EncodeValue(*v)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		blob, err := encodeBlob(v)
		if err != nil {
			return nil, codecErrf(nil, v, err, "nested value")
		}
		return tuple.Pack(tagNested, blob), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return tuple.Pack(tagNull), nil
		}
		return EncodeValue(rv.Elem().Interface())
	case reflect.String:
		return EncodeValue(rv.String())
	case reflect.Bool:
		return EncodeValue(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return EncodeValue(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return encodeUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return encodeDecimal(rv.Float())
	}
	return nil, codecErrf(nil, v, ErrUnsupportedType, "cannot encode %T", v)
}

func encodeUint(v uint64) ([]byte, error) {
	if v > math.MaxInt64 {
		return nil, codecErrf(nil, v, ErrUnsupportedType, "integer %d overflows int64", v)
	}
	return tuple.Pack(tagInt, int64(v)), nil
}

func encodeDecimal(f float64) ([]byte, error) {
	if math.IsNaN(f) {
		return nil, codecErrf(nil, f, ErrUnsupportedType, "NaN")
	}
	return tuple.Pack(tagDecimal, []byte(strconv.FormatFloat(f, 'g', -1, 64))), nil
}

func dateComponents(t time.Time) tuple.Tuple {
	t = t.UTC()
	return tuple.Tuple{
		int64(t.Year()),
		int64(t.Month()),
		int64(t.Day()),
		int64(t.Hour()),
		int64(t.Minute()),
		int64(t.Second()),
		int64(t.Nanosecond() / int(time.Millisecond)),
	}
}

// DecodeValue is the inverse of EncodeValue. Integers decode as int64,
// decimals as float64, dates as UTC time.Time with millisecond precision,
// nested values as map[string]any / []any.
func DecodeValue(data []byte) (any, error) {
	t, err := tuple.Unpack(data)
	if err != nil {
		return nil, codecErrf(data, nil, err, "malformed value")
	}
	if len(t) == 0 {
		return nil, codecErrf(data, nil, nil, "empty value")
	}
	tag, ok := t[0].(int64)
	if !ok {
		return nil, codecErrf(data, nil, ErrUnknownTag, "type tag is %T", t[0])
	}
	payload := t[1:]

	switch tag {
	case tagString:
		if len(payload) != 1 {
			break
		}
		switch p := payload[0].(type) {
		case []byte:
			return string(p), nil
		case string:
			return p, nil
		}
	case tagInt:
		if len(payload) == 1 {
			if n, ok := payload[0].(int64); ok {
				return n, nil
			}
		}
	case tagDecimal:
		if len(payload) == 1 {
			if p, ok := payload[0].([]byte); ok {
				f, err := strconv.ParseFloat(string(p), 64)
				if err != nil {
					return nil, codecErrf(data, nil, err, "invalid decimal")
				}
				return f, nil
			}
		}
	case tagBool:
		if len(payload) == 1 {
			if n, ok := payload[0].(int64); ok {
				return n == 1, nil
			}
		}
	case tagDate:
		if len(payload) == 7 {
			var c [7]int
			for i, el := range payload {
				n, ok := el.(int64)
				if !ok {
					return nil, codecErrf(data, nil, nil, "date component %d is %T", i, el)
				}
				c[i] = int(n)
			}
			return time.Date(c[0], time.Month(c[1]), c[2], c[3], c[4], c[5], c[6]*int(time.Millisecond), time.UTC), nil
		}
	case tagNested:
		if len(payload) == 1 {
			if p, ok := payload[0].([]byte); ok {
				v, err := decodeBlob(p)
				if err != nil {
					return nil, codecErrf(data, nil, err, "invalid nested value")
				}
				return v, nil
			}
		}
	case tagNull:
		return nil, nil
	default:
		return nil, codecErrf(data, nil, ErrUnknownTag, "type tag %d", tag)
	}
	return nil, codecErrf(data, nil, nil, "invalid payload for type tag %d", tag)
}

// indexElement maps a leaf value to the tuple element stored inside index
// keys. All numbers become float64 so that integers and decimals share one
// ordering; composite values become their msgpack bytes and are only
// usable for equality.
func indexElement(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case bool:
		return v, nil
	case time.Time:
		return dateComponents(v), nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return dateComponents(*v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, codecErrf(nil, v, ErrUnsupportedType, "invalid number %q", v.String())
		}
		return f, nil
	}
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return encodeBlob(v)
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	}
	return nil, codecErrf(nil, v, ErrUnsupportedType, "cannot index %T", v)
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func isComposite(v any) bool {
	switch v.(type) {
	case nil, string, bool, time.Time, json.Number, []byte:
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	}
	return false
}
