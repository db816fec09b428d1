package fowl

import (
	"bytes"
	"context"
	"fmt"
	"reflect"

	"github.com/hashicorp/go-multierror"

	"github.com/andreyvit/fowl/tuple"
)

// Operator is a comparison used by index range reads and query conditions.
type Operator int

const (
	OpEq Operator = iota
	OpGt
	OpGte
	OpLt
	OpLte
	OpNe
	OpNin
	OpOr
)

var operatorNames = [...]string{"eq", "gt", "gte", "lt", "lte", "ne", "nin", "or"}

func (op Operator) String() string {
	if int(op) < len(operatorNames) {
		return operatorNames[op]
	}
	return fmt.Sprintf("Operator(%d)", int(op))
}

// indexable reports whether op has an index range read.
func (op Operator) indexable() bool {
	return op <= OpLte
}

type indexHit struct {
	ID    any
	Value any
}

// indexTarget is an indexed field touched by a write at some path. rel is the
// position of the field's value inside the written value.
type indexTarget struct {
	collection KeyPath
	id         any
	field      FieldPath
	rel        FieldPath
}

// indexTargets finds the indexed fields affected by writing at path. Every
// split of path into collection ++ id ++ sub is considered; a field is
// affected when it lies at or below sub.
func (m *indexMeta) indexTargets(path KeyPath) []indexTarget {
	var out []indexTarget
	for k := len(path) - 1; k >= 1; k-- {
		coll, id, sub := path[:k], path[k], path[k+1:]
		for _, field := range m.fields(coll) {
			if len(field) < len(sub) || !pathHasPrefix(field, sub) {
				continue
			}
			out = append(out, indexTarget{coll, id, field, field[len(sub):]})
		}
	}
	return out
}

// enclosingTargets finds the indexed fields that a write at path lands
// strictly inside of. rel is the position of path inside the field's value.
func (m *indexMeta) enclosingTargets(path KeyPath) []indexTarget {
	var out []indexTarget
	for k := len(path) - 1; k >= 1; k-- {
		coll, id, sub := path[:k], path[k], path[k+1:]
		for _, field := range m.fields(coll) {
			if len(field) >= len(sub) || !pathHasPrefix(sub, field) {
				continue
			}
			out = append(out, indexTarget{coll, id, field, sub[len(field):]})
		}
	}
	return out
}

func pathHasPrefix(p, prefix KeyPath) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, seg := range prefix {
		if segmentString(seg) != segmentString(p[i]) {
			return false
		}
	}
	return true
}

func indexFieldPrefix(collection KeyPath, field FieldPath) tuple.Tuple {
	return tuple.Tuple(indexPath(collection, field))
}

func indexKey(collection KeyPath, field FieldPath, value any, id any) ([]byte, error) {
	elem, err := indexElement(value)
	if err != nil {
		return nil, err
	}
	return indexFieldPrefix(collection, field).Append(elem, id).TryPack()
}

func (tx *Tx) writeIndexEntry(collection KeyPath, field FieldPath, id any, value any) error {
	key, err := indexKey(collection, field, value, id)
	if err != nil {
		return storeErr(ErrIndexWriteFailed, collection.Concat(field), nil, err)
	}
	raw, err := EncodeValue(value)
	if err != nil {
		return storeErr(ErrIndexWriteFailed, collection.Concat(field), key, err)
	}
	if err := tx.etx.Set(key, raw); err != nil {
		return storeErr(ErrIndexWriteFailed, collection.Concat(field), key, err)
	}
	return nil
}

func (tx *Tx) clearIndexEntry(collection KeyPath, field FieldPath, id any, value any) error {
	key, err := indexKey(collection, field, value, id)
	if err != nil {
		return storeErr(ErrIndexWriteFailed, collection.Concat(field), nil, err)
	}
	if err := tx.etx.Clear(key); err != nil {
		return storeErr(ErrIndexWriteFailed, collection.Concat(field), key, err)
	}
	return nil
}

// readIndex returns the entries of collection.field satisfying op against
// value, in index order. Index keys order all numbers as float64, so hits are
// re-checked against the decoded field value.
func (tx *Tx) readIndex(op Operator, collection KeyPath, field FieldPath, value any) ([]indexHit, error) {
	tx.db.metrics.indexScans.WithLabelValues(op.String()).Inc()

	prefix := indexFieldPrefix(collection, field)
	elem, err := indexElement(value)
	if err != nil {
		return nil, storeErr(ErrIndexReadFailed, collection.Concat(field), nil, err)
	}
	k, err := prefix.Append(elem).TryPack()
	if err != nil {
		return nil, storeErr(ErrIndexReadFailed, collection.Concat(field), nil, err)
	}
	// every entry for value is k ++ id, and ids never start with 0xFF
	kFF := append(bytes.Clone(k), 0xff)
	fieldBegin, fieldEnd := tuple.Range(prefix)

	var begin, end KeySelector
	switch op {
	case OpEq:
		begin, end = FirstGreaterThan(k), FirstGreaterOrEqual(kFF)
	// Gt and Lt include the block of k itself: distinct large integers can
	// share one float64 key, and op.match below settles them exactly.
	case OpGt, OpGte:
		begin, end = FirstGreaterThan(k), FirstGreaterOrEqual(fieldEnd)
	case OpLt, OpLte:
		begin, end = FirstGreaterOrEqual(fieldBegin), LastLessOrEqual(kFF).Next()
	default:
		return nil, fmt.Errorf("%w: %v has no index read", ErrUnsupportedOperator, op)
	}

	var hits []indexHit
	c := getRange(tx.etx, begin, end, tx.logger)
	for c.Next() {
		t, err := tuple.Unpack(c.Key())
		if err != nil {
			c.Close()
			return nil, storeErr(ErrIndexReadFailed, collection.Concat(field), c.Key(), err)
		}
		if len(t) != len(prefix)+2 {
			continue
		}
		v, err := DecodeValue(c.Value())
		if err != nil {
			c.Close()
			return nil, storeErr(ErrIndexReadFailed, collection.Concat(field), c.Key(), err)
		}
		if !op.match(v, true, value) {
			continue
		}
		hits = append(hits, indexHit{ID: t[len(t)-1], Value: v})
	}
	if err := c.Close(); err != nil {
		return nil, storeErr(ErrIndexReadFailed, collection.Concat(field), nil, err)
	}
	return hits, nil
}

// indexDocument writes the entries for every indexed field present in value,
// which is being written at path. With cleanup enabled, entries for the
// previous values are removed first.
func (tx *Tx) indexDocument(path KeyPath, value any, cleanup bool) error {
	targets := tx.meta.indexTargets(path)
	for _, t := range targets {
		v, ok := lookupField(value, t.rel)
		if !ok && !(cleanup && overwrites(value, t.rel)) {
			continue
		}
		if cleanup {
			if err := tx.clearCurrentEntry(t); err != nil {
				return err
			}
		}
		if ok {
			if err := tx.writeIndexEntry(t.collection, t.field, t.id, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// reindexEnclosing is called after a write at path to index the new values
// of the indexed fields the write landed inside of. Their old entries must
// have been cleared by the caller beforehand if cleanup is wanted.
func (tx *Tx) reindexEnclosing(targets []indexTarget) error {
	for _, t := range targets {
		fp := t.collection.Append(t.id).Concat(t.field)
		v, found, err := tx.load(fp)
		if err != nil {
			return storeErr(ErrIndexReadFailed, fp, nil, err)
		}
		if found {
			if err := tx.writeIndexEntry(t.collection, t.field, t.id, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (tx *Tx) clearCurrentEntry(t indexTarget) error {
	fp := t.collection.Append(t.id).Concat(t.field)
	old, found, err := tx.load(fp)
	if err != nil {
		return storeErr(ErrIndexReadFailed, fp, nil, err)
	}
	if !found {
		return nil
	}
	return tx.clearIndexEntry(t.collection, t.field, t.id, old)
}

// overwrites reports whether writing value replaces whatever is stored at rel
// below it, which happens when the walk along rel reaches a leaf of value.
func overwrites(value any, rel FieldPath) bool {
	for _, seg := range rel {
		switch c := value.(type) {
		case map[string]any:
			el, ok := c[segmentString(seg)]
			if !ok {
				return false
			}
			value = el
		case []any:
			i, ok := seg.(int64)
			if !ok || i < 0 || i >= int64(len(c)) {
				return false
			}
			value = c[i]
		case []byte:
			return true
		default:
			// other maps and slices are flattened as containers, but are not
			// walked here
			k := reflect.ValueOf(value).Kind()
			return k != reflect.Map && k != reflect.Slice && k != reflect.Array
		}
	}
	return true
}

// unindexPath removes the entries of indexed fields stored under path, and
// the index entries of collections nested under path. It returns the indexed
// fields enclosing path, which must be reindexed once path is gone.
func (tx *Tx) unindexPath(path KeyPath) ([]indexTarget, error) {
	for _, t := range tx.meta.indexTargets(path) {
		if err := tx.clearCurrentEntry(t); err != nil {
			return nil, err
		}
	}
	enclosing := tx.meta.enclosingTargets(path)
	for _, t := range enclosing {
		if err := tx.clearCurrentEntry(t); err != nil {
			return nil, err
		}
	}
	for _, nested := range tx.meta.fields(path) {
		b, e := tuple.Range(indexFieldPrefix(path, nested))
		if err := tx.etx.ClearRange(b, e); err != nil {
			return nil, storeErr(ErrIndexWriteFailed, path.Concat(nested), nil, err)
		}
	}
	return enclosing, nil
}

// CheckIndexes verifies the index entries of every indexed field of a
// collection: each entry must point at an existing document currently
// holding that value, and each document holding an indexed field must have
// an entry. Problems are reported together as a *multierror.Error.
func (db *DB) CheckIndexes(ctx context.Context, collection KeyPath) error {
	var result *multierror.Error
	err := db.engine.View(ctx, func(etx EngineTx) error {
		tx := db.Transaction()
		tx.etx = etx
		ids, docs, err := tx.loadCollection(collection)
		if err != nil {
			return err
		}

		for _, field := range tx.meta.fields(collection) {
			seen := make(map[string]bool)
			c := prefixRange(etx, KeyPath(indexFieldPrefix(collection, field)), tx.logger)
			var entries []struct {
				key []byte
				t   tuple.Tuple
			}
			for c.Next() {
				t, err := tuple.Unpack(c.Key())
				if err != nil {
					result = multierror.Append(result, fmt.Errorf("%s: undecodable index key %x: %w", field.Dotted(), c.Key(), err))
					continue
				}
				if len(t) != len(collection)+len(field)+3 {
					continue
				}
				entries = append(entries, struct {
					key []byte
					t   tuple.Tuple
				}{bytes.Clone(c.Key()), t})
			}
			if err := c.Close(); err != nil {
				return err
			}

			for _, e := range entries {
				seen[string(e.key)] = true
				id := e.t[len(e.t)-1]
				doc, err := tx.loadDocument(collection, id)
				if err != nil {
					return err
				}
				if doc == nil {
					result = multierror.Append(result, fmt.Errorf("%s: entry %v points to missing document %v", field.Dotted(), e.t, id))
					continue
				}
				v, ok := lookupField(doc, field)
				if !ok {
					result = multierror.Append(result, fmt.Errorf("%s: stale entry %v, document %v has no such field", field.Dotted(), e.t, id))
					continue
				}
				want, err := indexKey(collection, field, v, id)
				if err != nil || !bytes.Equal(want, e.key) {
					result = multierror.Append(result, fmt.Errorf("%s: stale entry %v, document %v has %v", field.Dotted(), e.t, id, v))
				}
			}

			for i, doc := range docs {
				v, ok := lookupField(doc, field)
				if !ok {
					continue
				}
				want, err := indexKey(collection, field, v, ids[i])
				if err != nil {
					result = multierror.Append(result, fmt.Errorf("%s: document %v: %w", field.Dotted(), ids[i], err))
					continue
				}
				if !seen[string(want)] {
					result = multierror.Append(result, fmt.Errorf("%s: missing entry for document %v value %v", field.Dotted(), ids[i], v))
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return result.ErrorOrNil()
}
