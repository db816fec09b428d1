package tuple

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Error describes malformed tuple data or an unsupported element.
type Error struct {
	Data []byte
	Off  int
	Msg  string
}

func (e *Error) Error() string {
	if e.Data == nil {
		return "tuple: " + e.Msg
	}
	return fmt.Sprintf("tuple: %s at offset %d in %s", e.Msg, e.Off, hex.EncodeToString(e.Data))
}

// Unpack decodes a packed tuple. Integers decode as int64, floats as float64,
// byte strings as []byte, nested tuples as Tuple.
func Unpack(data []byte) (Tuple, error) {
	d := decoder{orig: data, buf: data}
	var t Tuple
	for len(d.buf) > 0 {
		el, err := d.element(false)
		if err != nil {
			return nil, err
		}
		t = append(t, el)
	}
	return t, nil
}

type decoder struct {
	orig []byte
	buf  []byte
}

func (d *decoder) errf(format string, args ...any) error {
	return &Error{Data: d.orig, Off: len(d.orig) - len(d.buf), Msg: fmt.Sprintf(format, args...)}
}

func (d *decoder) element(nested bool) (any, error) {
	code := d.buf[0]
	switch {
	case code == codeNil:
		if nested {
			if len(d.buf) < 2 || d.buf[1] != escape {
				return nil, d.errf("unescaped nil inside nested tuple")
			}
			d.buf = d.buf[2:]
		} else {
			d.buf = d.buf[1:]
		}
		return nil, nil
	case code == codeBytes:
		d.buf = d.buf[1:]
		return d.escaped()
	case code == codeString:
		d.buf = d.buf[1:]
		b, err := d.escaped()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case code == codeNested:
		d.buf = d.buf[1:]
		t := Tuple{}
		for {
			if len(d.buf) == 0 {
				return nil, d.errf("unterminated nested tuple")
			}
			if d.buf[0] == codeNil && (len(d.buf) < 2 || d.buf[1] != escape) {
				d.buf = d.buf[1:]
				return t, nil
			}
			el, err := d.element(true)
			if err != nil {
				return nil, err
			}
			t = append(t, el)
		}
	case code >= codeNegIntMin && code <= codePosIntMax:
		return d.integer(int(code) - codeIntZero)
	case code == codeDouble:
		if len(d.buf) < 9 {
			return nil, d.errf("truncated float64")
		}
		bits := binary.BigEndian.Uint64(d.buf[1:9])
		if bits&(1<<63) != 0 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		d.buf = d.buf[9:]
		return math.Float64frombits(bits), nil
	case code == codeFalse:
		d.buf = d.buf[1:]
		return false, nil
	case code == codeTrue:
		d.buf = d.buf[1:]
		return true, nil
	case code == codeUUID:
		if len(d.buf) < 17 {
			return nil, d.errf("truncated UUID")
		}
		var u uuid.UUID
		copy(u[:], d.buf[1:17])
		d.buf = d.buf[17:]
		return u, nil
	default:
		return nil, d.errf("unknown type code 0x%02x", code)
	}
}

func (d *decoder) escaped() ([]byte, error) {
	var out []byte
	for i := 0; i < len(d.buf); i++ {
		c := d.buf[i]
		if c != 0x00 {
			out = append(out, c)
			continue
		}
		if i+1 < len(d.buf) && d.buf[i+1] == escape {
			out = append(out, 0x00)
			i++
			continue
		}
		d.buf = d.buf[i+1:]
		if out == nil {
			out = []byte{}
		}
		return out, nil
	}
	return nil, d.errf("unterminated byte string")
}

func (d *decoder) integer(n int) (int64, error) {
	neg := n < 0
	if neg {
		n = -n
	}
	if len(d.buf) < 1+n {
		return 0, d.errf("truncated integer")
	}
	var b [8]byte
	copy(b[8-n:], d.buf[1:1+n])
	u := binary.BigEndian.Uint64(b[:])
	d.buf = d.buf[1+n:]
	if !neg {
		if u > math.MaxInt64 {
			return 0, d.errf("integer overflows int64")
		}
		return int64(u), nil
	}
	mask := ^uint64(0)
	if n < 8 {
		mask = uint64(1)<<(8*n) - 1
	}
	mag := mask ^ u
	if mag > 1<<63 {
		return 0, d.errf("integer overflows int64")
	}
	return -int64(mag), nil
}
