package fowl

import (
	"bytes"
	"fmt"
)

// KeySelector describes a position in the keyspace relative to a reference
// key, without requiring the key to exist. It resolves to the last key less
// than Key (less than or equal when OrEqual is set), then moves Offset keys
// forward.
type KeySelector struct {
	Key     []byte
	OrEqual bool
	Offset  int
}

func LastLessThan(key []byte) KeySelector {
	return KeySelector{key, false, 0}
}

func LastLessOrEqual(key []byte) KeySelector {
	return KeySelector{key, true, 0}
}

func FirstGreaterThan(key []byte) KeySelector {
	return KeySelector{key, true, 1}
}

func FirstGreaterOrEqual(key []byte) KeySelector {
	return KeySelector{key, false, 1}
}

func (ks KeySelector) Next() KeySelector {
	return ks.Add(1)
}

func (ks KeySelector) Prev() KeySelector {
	return ks.Add(-1)
}

func (ks KeySelector) Add(n int) KeySelector {
	ks.Offset += n
	return ks
}

func (ks KeySelector) String() string {
	var name string
	switch {
	case ks.OrEqual && ks.Offset >= 1:
		name, ks.Offset = "firstGreaterThan", ks.Offset-1
	case !ks.OrEqual && ks.Offset >= 1:
		name, ks.Offset = "firstGreaterOrEqual", ks.Offset-1
	case ks.OrEqual:
		name = "lastLessOrEqual"
	default:
		name = "lastLessThan"
	}
	if ks.Offset != 0 {
		return fmt.Sprintf("%s(%s)%+d", name, hexstr(ks.Key), ks.Offset)
	}
	return fmt.Sprintf("%s(%s)", name, hexstr(ks.Key))
}

type posState int

const (
	atKey posState = iota
	beforeFirst
	pastEnd
)

// position is a resolved key selector. key is only set for atKey and is
// owned by the position.
type position struct {
	state posState
	key   []byte
}

func (p position) String() string {
	switch p.state {
	case beforeFirst:
		return "<begin>"
	case pastEnd:
		return "<end>"
	default:
		return hexstr(p.key)
	}
}

// resolve positions c on the key ks selects and returns that position.
func (ks KeySelector) resolve(c Cursor) position {
	k, _ := c.Seek(ks.Key)
	if ks.OrEqual && k != nil && bytes.Equal(k, ks.Key) {
		k, _ = c.Next()
	}
	// k is now the first key after everything the reference selects
	if ks.Offset >= 1 {
		for i := 1; i < ks.Offset && k != nil; i++ {
			k, _ = c.Next()
		}
		if k == nil {
			return position{state: pastEnd}
		}
		return position{state: atKey, key: cloneBytes(k)}
	}
	for i := ks.Offset; i <= 0; i++ {
		if k == nil {
			k, _ = c.Last()
		} else {
			k, _ = c.Prev()
		}
		if k == nil {
			return position{state: beforeFirst}
		}
	}
	return position{state: atKey, key: cloneBytes(k)}
}
