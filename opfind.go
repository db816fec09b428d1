package fowl

import (
	"github.com/andreyvit/fowl/tuple"
)

// Find returns the documents of collection whose fields equal every leaf of
// where. If any of those fields is indexed, candidates come from the index
// (the union over all indexed fields) and are then loaded and filtered;
// otherwise the whole collection is scanned. With fields given, each
// document is reduced to those fields.
func (tx *Tx) Find(collection KeyPath, where Document, fields ...string) *Future[[]Document] {
	return enqueue(tx, "find", collection, func() ([]Document, error) {
		if err := checkPath(collection); err != nil {
			return nil, err
		}
		return tx.find(collection, where, parseFields(fields))
	})
}

func (tx *Tx) find(collection KeyPath, where Document, fields []FieldPath) ([]Document, error) {
	conds := flatten(nil, where)

	var ids []any
	seen := make(map[string]bool)
	var indexed bool
	for _, c := range conds {
		if !tx.meta.isIndexed(collection.Concat(c.path)) {
			continue
		}
		indexed = true
		hits, err := tx.readIndex(OpEq, collection, c.path, c.value)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			k := string(tuple.Pack(h.ID))
			if !seen[k] {
				seen[k] = true
				ids = append(ids, h.ID)
			}
		}
	}

	var docs []Document
	if indexed {
		for _, id := range ids {
			doc, err := tx.loadDocument(collection, id)
			if err != nil {
				return nil, err
			}
			if doc != nil {
				docs = append(docs, doc)
			}
		}
	} else {
		var err error
		_, docs, err = tx.loadCollection(collection)
		if err != nil {
			return nil, err
		}
	}

	result := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if matchesAll(doc, conds) {
			if fields != nil {
				doc = project(doc, fields)
			}
			result = append(result, doc)
		}
	}
	return result, nil
}

func matchesAll(doc Document, conds []pair) bool {
	for _, c := range conds {
		v, ok := lookupField(doc, c.path)
		if !OpEq.match(v, ok, c.value) {
			return false
		}
	}
	return true
}
