package fowl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/andreyvit/fowl/tuple"
)

// KeyPath addresses a collection, a document or a field within a document.
// Segments are strings or int64 values; Path normalizes other integer types.
type KeyPath []any

const (
	indexPrefix = "__ind"
	metaSegment = "__meta"
)

// Path builds a KeyPath from segments. Integers are stored as int64; other
// tuple element types are kept as is. Anything else panics.
func Path(segs ...any) KeyPath {
	p := make(KeyPath, len(segs))
	for i, s := range segs {
		p[i] = normalizeSegment(s)
	}
	return p
}

// ParsePath splits a slash-separated path; segments consisting of decimal
// digits become integers.
func ParsePath(s string) KeyPath {
	s = strings.Trim(s, "/")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "/")
	p := make(KeyPath, len(parts))
	for i, part := range parts {
		if n, err := strconv.ParseInt(part, 10, 64); err == nil && isDigits(part) {
			p[i] = n
		} else {
			p[i] = part
		}
	}
	return p
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

func normalizeSegment(s any) any {
	switch v := s.(type) {
	case string:
		return v
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case nil, []byte, bool, float64, uuid.UUID, tuple.Tuple:
		// ids read back from keys
		return v
	default:
		panic(fmt.Errorf("fowl: invalid key path segment %T %v", s, s))
	}
}

// Append returns a new path; p itself is never modified.
func (p KeyPath) Append(segs ...any) KeyPath {
	out := make(KeyPath, 0, len(p)+len(segs))
	out = append(out, p...)
	for _, s := range segs {
		out = append(out, normalizeSegment(s))
	}
	return out
}

func (p KeyPath) Concat(another KeyPath) KeyPath {
	out := make(KeyPath, 0, len(p)+len(another))
	out = append(out, p...)
	return append(out, another...)
}

func (p KeyPath) Last() any {
	return p[len(p)-1]
}

func (p KeyPath) Parent() KeyPath {
	return p[:len(p)-1:len(p)-1]
}

func (p KeyPath) Tuple() tuple.Tuple {
	return tuple.Tuple(p)
}

func (p KeyPath) Pack() []byte {
	return tuple.Tuple(p).Pack()
}

func (p KeyPath) String() string {
	var buf strings.Builder
	for i, s := range p {
		if i > 0 {
			buf.WriteByte('/')
		}
		fmt.Fprint(&buf, s)
	}
	return buf.String()
}

// segmentString is the map key used for a path segment when it lands in a
// map container.
func segmentString(s any) string {
	switch v := s.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

// FieldPath is a path inside a document, parsed from dotted notation
// ("address.city", "tags.0").
type FieldPath = KeyPath

func ParseField(field string) FieldPath {
	if field == "" {
		return nil
	}
	parts := strings.Split(field, ".")
	p := make(FieldPath, len(parts))
	for i, part := range parts {
		if isDigits(part) {
			if n, err := strconv.ParseInt(part, 10, 64); err == nil {
				p[i] = n
				continue
			}
		}
		p[i] = part
	}
	return p
}

// Dotted renders p the way ParseField reads it.
func (p KeyPath) Dotted() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = segmentString(seg)
	}
	return strings.Join(parts, ".")
}

func indexPath(collection, field KeyPath) KeyPath {
	return KeyPath{indexPrefix}.Concat(collection).Concat(field)
}

func metaPath(collection, field KeyPath) KeyPath {
	return KeyPath{indexPrefix, metaSegment}.Concat(collection).Concat(field)
}
