package fowl

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// encodeBlob serializes a composite value with msgpack. Map keys are sorted
// so that equal values always produce equal bytes, which is what lets opaque
// index entries match on equality.
func encodeBlob(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T using MsgPack: %w", v, err)
	}
	return buf.Bytes(), nil
}

func decodeBlob(data []byte) (any, error) {
	var r bytes.Reader
	r.Reset(data)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	dec.UseLooseInterfaceDecoding(true)
	v, err := dec.DecodeInterface()
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, err
	}
	return normalizeDecoded(v), nil
}

// normalizeDecoded brings msgpack output to the value kinds documents use:
// integers become int64 and maps become map[string]any.
func normalizeDecoded(v any) any {
	switch v := v.(type) {
	case uint64:
		if v <= 1<<63-1 {
			return int64(v)
		}
		return float64(v)
	case float32:
		return float64(v)
	case []any:
		for i, el := range v {
			v[i] = normalizeDecoded(el)
		}
		return v
	case map[string]any:
		for k, el := range v {
			v[k] = normalizeDecoded(el)
		}
		return v
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, el := range v {
			m[fmt.Sprint(k)] = normalizeDecoded(el)
		}
		return m
	default:
		rv := reflect.ValueOf(v)
		if rv.IsValid() && rv.CanInt() {
			return rv.Int()
		}
		return v
	}
}
