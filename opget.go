package fowl

import (
	"github.com/andreyvit/fowl/tuple"
)

// Get reads everything stored under path and reconstructs it: a document,
// a whole collection (as a map keyed by id), a nested field, or a single
// leaf. Resolves to nil when nothing is stored there.
//
// fields are advisory; the value is always reconstructed in full.
func (tx *Tx) Get(path KeyPath, fields ...string) *Future[any] {
	return enqueue(tx, "get", path, func() (any, error) {
		if err := checkPath(path); err != nil {
			return nil, err
		}
		if len(fields) > 0 && tx.db.verbose {
			tx.logger.WithField("fields", fields).Debug("fowl: get with fields")
		}
		v, _, err := tx.load(path)
		return v, err
	})
}

// load reconstructs the value stored under path.
func (tx *Tx) load(path KeyPath) (any, bool, error) {
	var b builder
	c := prefixRange(tx.etx, path, tx.logger)
	for c.Next() {
		t, err := tuple.Unpack(c.Key())
		if err != nil {
			c.Close()
			return nil, false, storeErr(ErrStoreOperationFailed, path, c.Key(), err)
		}
		v, err := DecodeValue(c.Value())
		if err != nil {
			c.Close()
			return nil, false, storeErr(ErrStoreOperationFailed, path, c.Key(), err)
		}
		b.add(KeyPath(t[len(path):]), v)
	}
	if err := c.Close(); err != nil {
		return nil, false, storeErr(ErrStoreOperationFailed, path, nil, err)
	}
	if v, found := b.result(); found {
		return v, true, nil
	}

	// nothing below path; it might address a leaf
	raw, err := tx.etx.Get(path.Pack())
	if err != nil {
		return nil, false, storeErr(ErrStoreOperationFailed, path, nil, err)
	}
	if raw == nil {
		return nil, false, nil
	}
	v, err := DecodeValue(raw)
	if err != nil {
		return nil, false, storeErr(ErrStoreOperationFailed, path, nil, err)
	}
	return v, true, nil
}

// loadDocument loads collection ++ id and returns it only if it is a document.
func (tx *Tx) loadDocument(collection KeyPath, id any) (Document, error) {
	v, found, err := tx.load(collection.Append(id))
	if err != nil || !found {
		return nil, err
	}
	doc, _ := v.(Document)
	return doc, nil
}

// loadCollection reads every document of a collection in key order. Entries
// of the collection that are not documents (leaves) are skipped.
func (tx *Tx) loadCollection(collection KeyPath) (ids []any, docs []Document, err error) {
	var b builder
	var id any
	flush := func() {
		if v, found := b.result(); found {
			if doc, ok := v.(Document); ok {
				ids = append(ids, id)
				docs = append(docs, doc)
			}
		}
		b = builder{}
	}

	c := prefixRange(tx.etx, collection, tx.logger)
	for c.Next() {
		t, err := tuple.Unpack(c.Key())
		if err != nil {
			c.Close()
			return nil, nil, storeErr(ErrStoreOperationFailed, collection, c.Key(), err)
		}
		v, err := DecodeValue(c.Value())
		if err != nil {
			c.Close()
			return nil, nil, storeErr(ErrStoreOperationFailed, collection, c.Key(), err)
		}
		suffix := KeyPath(t[len(collection):])
		if b.count > 0 && !sameSegment(suffix[0], id) {
			flush()
		}
		id = suffix[0]
		b.add(suffix[1:], v)
	}
	if err := c.Close(); err != nil {
		return nil, nil, storeErr(ErrStoreOperationFailed, collection, nil, err)
	}
	flush()
	return ids, docs, nil
}

func sameSegment(a, b any) bool {
	switch a := a.(type) {
	case string:
		b, ok := b.(string)
		return ok && a == b
	case int64:
		b, ok := b.(int64)
		return ok && a == b
	default:
		return tuple.Tuple{a}.Equal(tuple.Tuple{b})
	}
}
