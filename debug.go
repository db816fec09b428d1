package fowl

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/andreyvit/fowl/tuple"
)

type DumpFlags uint64

const (
	DumpData = DumpFlags(1 << iota)
	DumpIndexes
	DumpMeta
	DumpRaw

	DumpAll = DumpData | DumpIndexes | DumpMeta
)

// DumpKind tells which part of the keyspace a dumped key belongs to.
type DumpKind int

const (
	DumpKindData DumpKind = iota
	DumpKindIndex
	DumpKindMeta
)

func (k DumpKind) String() string {
	switch k {
	case DumpKindData:
		return "data"
	case DumpKindIndex:
		return "index"
	case DumpKindMeta:
		return "meta"
	default:
		return fmt.Sprintf("DumpKind(%d)", int(k))
	}
}

var dumpSep = strings.Repeat("-", 60)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

func classifyKey(t tuple.Tuple) DumpKind {
	if len(t) > 0 && t[0] == indexPrefix {
		if len(t) > 1 && t[1] == metaSegment {
			return DumpKindMeta
		}
		return DumpKindIndex
	}
	return DumpKindData
}

// DumpFunc calls fn for every key selected by flags, in key order, with the
// unpacked key and the decoded value. Undecodable keys and values are passed
// as raw bytes.
func (db *DB) DumpFunc(ctx context.Context, flags DumpFlags, fn func(kind DumpKind, key tuple.Tuple, value any) error) error {
	return db.engine.View(ctx, func(etx EngineTx) error {
		c := getRange(etx, FirstGreaterOrEqual(nil), FirstGreaterOrEqual([]byte{0xFF}), db.logger)
		defer c.Close()
		for c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := tuple.Unpack(c.Key())
			if err != nil {
				t = tuple.Tuple{c.Key()}
			}
			kind := classifyKey(t)
			switch kind {
			case DumpKindData:
				if !flags.Contains(DumpData) {
					continue
				}
			case DumpKindIndex:
				if !flags.Contains(DumpIndexes) {
					continue
				}
			case DumpKindMeta:
				if !flags.Contains(DumpMeta) {
					continue
				}
			}
			var v any
			if flags.Contains(DumpRaw) {
				v = cloneBytes(c.Value())
			} else if v, err = DecodeValue(c.Value()); err != nil {
				v = cloneBytes(c.Value())
			}
			if err := fn(kind, t, v); err != nil {
				return err
			}
		}
		return c.Close()
	})
}

// Dump writes a human-readable listing of the keyspace to w.
func (db *DB) Dump(ctx context.Context, w io.Writer, flags DumpFlags) error {
	last := DumpKind(-1)
	return db.DumpFunc(ctx, flags, func(kind DumpKind, key tuple.Tuple, value any) error {
		if kind != last {
			if last >= 0 {
				fmt.Fprintln(w, dumpSep)
			}
			last = kind
		}
		var vs string
		if raw, ok := value.([]byte); ok {
			vs = hexstr(raw)
		} else {
			vs = loggableVal(value)
		}
		_, err := fmt.Fprintf(w, "%s %s = %s\n", rpad(kind.String(), 5, ' '), key.String(), vs)
		return err
	})
}
