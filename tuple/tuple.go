// Package tuple implements an order-preserving encoding of heterogeneous
// tuples into byte strings, compatible with the FoundationDB tuple layer.
//
// Byte-wise comparison of two packed tuples yields the same result as
// element-wise comparison of the tuples themselves, as long as corresponding
// elements are of the same kind. Elements of different kinds order by their
// type code:
//
//	nil < []byte < string < Tuple < integers < float64 < false < true < UUID
//
// Supported element types: nil, []byte, string, Tuple (nested), all Go
// integer types (encoded as int64), float32/float64, bool and uuid.UUID.
package tuple

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	codeNil       = 0x00
	codeBytes     = 0x01
	codeString    = 0x02
	codeNested    = 0x05
	codeIntZero   = 0x14
	codeNegIntMin = 0x0c
	codePosIntMax = 0x1c
	codeDouble    = 0x21
	codeFalse     = 0x26
	codeTrue      = 0x27
	codeUUID      = 0x30

	escape = 0xff
)

// Tuple is an ordered list of elements.
type Tuple []any

// Append returns a new tuple with the given elements appended; t is never
// modified.
func (t Tuple) Append(els ...any) Tuple {
	out := make(Tuple, 0, len(t)+len(els))
	out = append(out, t...)
	return append(out, els...)
}

// Pack encodes the tuple.
func (t Tuple) Pack() []byte {
	buf, err := t.AppendPacked(nil)
	if err != nil {
		panic(err)
	}
	return buf
}

// TryPack is like Pack, but returns an error for unsupported element types.
func (t Tuple) TryPack() ([]byte, error) {
	return t.AppendPacked(nil)
}

// AppendPacked appends the encoding of t to buf.
func (t Tuple) AppendPacked(buf []byte) ([]byte, error) {
	var err error
	for i, el := range t {
		buf, err = appendElement(buf, el, false)
		if err != nil {
			return nil, fmt.Errorf("tuple element %d: %w", i, err)
		}
	}
	return buf, nil
}

func (t Tuple) String() string {
	var buf strings.Builder
	buf.WriteByte('(')
	for i, el := range t {
		if i > 0 {
			buf.WriteString(", ")
		}
		switch v := el.(type) {
		case nil:
			buf.WriteString("nil")
		case string:
			fmt.Fprintf(&buf, "%q", v)
		case []byte:
			buf.WriteString("0x")
			buf.WriteString(hex.EncodeToString(v))
		default:
			fmt.Fprint(&buf, v)
		}
	}
	buf.WriteByte(')')
	return buf.String()
}

// Equal reports whether both tuples pack to the same bytes.
func (t Tuple) Equal(another Tuple) bool {
	a, err1 := t.TryPack()
	b, err2 := another.TryPack()
	return err1 == nil && err2 == nil && bytes.Equal(a, b)
}

// Pack is a shortcut for Tuple(els).Pack().
func Pack(els ...any) []byte {
	return Tuple(els).Pack()
}

// Range returns the [begin, end) boundaries covering every key that strictly
// extends the packed prefix t.
func Range(t Tuple) (begin, end []byte) {
	p := t.Pack()
	return append(clone(p), 0x00), append(p, 0xff)
}

// PrefixRange is like Range, but for an already packed prefix.
func PrefixRange(prefix []byte) (begin, end []byte) {
	return append(clone(prefix), 0x00), append(clone(prefix), 0xff)
}

// Strinc returns the first key that sorts after every key having the given
// prefix. Trailing 0xFF bytes are dropped before incrementing. Returns an
// error if the prefix consists entirely of 0xFF bytes.
func Strinc(prefix []byte) ([]byte, error) {
	n := len(prefix)
	for n > 0 && prefix[n-1] == 0xff {
		n--
	}
	if n == 0 {
		return nil, fmt.Errorf("key must contain at least one byte not equal to 0xFF")
	}
	out := clone(prefix[:n])
	out[n-1]++
	return out, nil
}

// HasPrefix reports whether packed key k starts with the packed tuple t.
func HasPrefix(k []byte, t Tuple) bool {
	return bytes.HasPrefix(k, t.Pack())
}

func clone(b []byte) []byte {
	out := make([]byte, len(b), len(b)+1)
	copy(out, b)
	return out
}

// Must panics if err is not nil; used with Unpack in places where the input
// was produced by Pack.
func Must(t Tuple, err error) Tuple {
	if err != nil {
		panic(err)
	}
	return t
}
