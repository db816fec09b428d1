package fowl

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/andreyvit/fowl/tuple"
)

// Put writes value at path, one key per leaf. Fields not mentioned in value
// are left untouched, so putting {legs: 3} into a document only changes legs.
// A leaf replaces anything stored below it.
func (tx *Tx) Put(path KeyPath, value any) *Future[struct{}] {
	return enqueue(tx, "put", path, func() (struct{}, error) {
		return struct{}{}, tx.put(path, value)
	})
}

// Create stores doc as a new document of collection and resolves to its id.
// The id is taken from doc's _id field, or generated as a UUIDv7 string.
// doc itself is not modified.
func (tx *Tx) Create(collection KeyPath, doc Document) *Future[any] {
	return enqueue(tx, "create", collection, func() (any, error) {
		if err := checkPath(collection); err != nil {
			return nil, err
		}
		id, err := documentID(doc)
		if err != nil {
			return nil, err
		}
		stored := make(Document, len(doc)+1)
		for k, v := range doc {
			stored[k] = v
		}
		stored[IDField] = id
		if err := tx.put(collection.Append(id), stored); err != nil {
			return nil, err
		}
		return id, nil
	})
}

func documentID(doc Document) (any, error) {
	v, ok := doc[IDField]
	if !ok || v == nil {
		u, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		return u.String(), nil
	}
	switch v := v.(type) {
	case string:
		return v, nil
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return normalizeSegment(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		return v.String(), nil
	case uuid.UUID:
		return v.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return nil, codecErrf(nil, v, ErrUnsupportedType, "%s must be a string or an integer, got %T", IDField, v)
	}
}

func (tx *Tx) put(path KeyPath, value any) error {
	if err := checkPath(path); err != nil {
		return err
	}
	pairs := flatten(path, value)

	// encode everything first so that a bad value fails before any writes
	keys := make([][]byte, len(pairs))
	values := make([][]byte, len(pairs))
	for i, p := range pairs {
		k, err := p.path.Tuple().TryPack()
		if err != nil {
			return storeErr(ErrStoreOperationFailed, p.path, nil, err)
		}
		v, err := EncodeValue(p.value)
		if err != nil {
			return err
		}
		keys[i], values[i] = k, v
	}

	var enclosing []indexTarget
	if len(path) >= 2 {
		if err := tx.indexDocument(path, value, tx.db.indexCleanup); err != nil {
			return err
		}
		enclosing = tx.meta.enclosingTargets(path)
		if tx.db.indexCleanup {
			for _, t := range enclosing {
				if err := tx.clearCurrentEntry(t); err != nil {
					return err
				}
			}
		}
	}

	// leaves that used to be where containers now are
	cleared := make(map[string]bool)
	for _, p := range pairs {
		for n := 1; n < len(p.path); n++ {
			k := p.path[:n].Pack()
			if cleared[string(k)] {
				continue
			}
			cleared[string(k)] = true
			if err := tx.etx.Clear(k); err != nil {
				return storeErr(ErrStoreOperationFailed, p.path[:n], k, err)
			}
		}
	}

	for i, p := range pairs {
		// containers that used to be where this leaf now is
		b, e := tuple.PrefixRange(keys[i])
		if err := tx.etx.ClearRange(b, e); err != nil {
			return storeErr(ErrStoreOperationFailed, p.path, keys[i], err)
		}
		if err := tx.etx.Set(keys[i], values[i]); err != nil {
			return storeErr(ErrStoreOperationFailed, p.path, keys[i], err)
		}
	}
	if err := tx.reindexEnclosing(enclosing); err != nil {
		return err
	}
	tx.recordChange(ChangePut, path, value)
	return nil
}
