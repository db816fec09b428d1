package tuple

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

func appendElement(buf []byte, el any, nested bool) ([]byte, error) {
	switch v := el.(type) {
	case nil:
		if nested {
			return append(buf, codeNil, escape), nil
		}
		return append(buf, codeNil), nil
	case []byte:
		return appendEscaped(append(buf, codeBytes), v), nil
	case string:
		buf = append(buf, codeString)
		return appendEscaped(buf, []byte(v)), nil
	case Tuple:
		buf = append(buf, codeNested)
		var err error
		for i, sub := range v {
			buf, err = appendElement(buf, sub, true)
			if err != nil {
				return nil, fmt.Errorf("nested element %d: %w", i, err)
			}
		}
		return append(buf, codeNil), nil
	case []any:
		return appendElement(buf, Tuple(v), nested)
	case int:
		return appendInt(buf, int64(v)), nil
	case int8:
		return appendInt(buf, int64(v)), nil
	case int16:
		return appendInt(buf, int64(v)), nil
	case int32:
		return appendInt(buf, int64(v)), nil
	case int64:
		return appendInt(buf, v), nil
	case uint:
		return appendUint(buf, uint64(v))
	case uint8:
		return appendInt(buf, int64(v)), nil
	case uint16:
		return appendInt(buf, int64(v)), nil
	case uint32:
		return appendInt(buf, int64(v)), nil
	case uint64:
		return appendUint(buf, v)
	case float32:
		return appendDouble(buf, float64(v)), nil
	case float64:
		return appendDouble(buf, v), nil
	case bool:
		if v {
			return append(buf, codeTrue), nil
		}
		return append(buf, codeFalse), nil
	case uuid.UUID:
		buf = append(buf, codeUUID)
		return append(buf, v[:]...), nil
	default:
		return nil, &Error{Msg: fmt.Sprintf("unsupported element type %T", el)}
	}
}

// appendEscaped writes b with every 0x00 byte followed by 0xFF, then the
// 0x00 terminator.
func appendEscaped(buf []byte, b []byte) []byte {
	for _, c := range b {
		buf = append(buf, c)
		if c == 0x00 {
			buf = append(buf, escape)
		}
	}
	return append(buf, 0x00)
}

func byteLen(u uint64) int {
	n := 0
	for u != 0 {
		n++
		u >>= 8
	}
	return n
}

func appendInt(buf []byte, v int64) []byte {
	if v >= 0 {
		u := uint64(v)
		n := byteLen(u)
		buf = append(buf, byte(codeIntZero+n))
		return appendBigEndian(buf, u, n)
	}
	// uint64(-v) is correct for math.MinInt64 as well
	u := uint64(-v)
	n := byteLen(u)
	buf = append(buf, byte(codeIntZero-n))
	return appendBigEndian(buf, ^u, n)
}

func appendUint(buf []byte, v uint64) ([]byte, error) {
	if v > math.MaxInt64 {
		return nil, &Error{Msg: fmt.Sprintf("unsigned integer %d overflows int64", v)}
	}
	return appendInt(buf, int64(v)), nil
}

func appendBigEndian(buf []byte, u uint64, n int) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], u)
	return append(buf, b[8-n:]...)
}

func appendDouble(buf []byte, v float64) []byte {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	buf = append(buf, codeDouble)
	return binary.BigEndian.AppendUint64(buf, bits)
}
