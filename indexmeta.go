package fowl

import (
	"sort"
	"strconv"
)

// indexMeta is an immutable snapshot of which collection fields are indexed.
// The tree mirrors the metadata keys: collection segments, then field
// segments, ending in a true leaf.
type indexMeta struct {
	tree map[string]any
}

var emptyIndexMeta = &indexMeta{tree: map[string]any{}}

func (tx *Tx) loadIndexMeta() (*indexMeta, error) {
	v, found, err := tx.load(KeyPath{indexPrefix, metaSegment})
	if err != nil {
		return nil, storeErr(ErrIndexReadFailed, KeyPath{indexPrefix, metaSegment}, nil, err)
	}
	tree, ok := v.(map[string]any)
	if !found || !ok {
		return emptyIndexMeta, nil
	}
	return &indexMeta{tree: tree}, nil
}

// isIndexed walks the tree along path. It is false as soon as a segment is
// missing, and true only if the walk ends on a true leaf at the last segment.
func (m *indexMeta) isIndexed(path KeyPath) bool {
	if m == nil || len(path) == 0 {
		return false
	}
	v, ok := lookupField(m.tree, path)
	return ok && v == true
}

// fields lists the indexed fields of a collection in sorted order.
func (m *indexMeta) fields(collection KeyPath) []FieldPath {
	if m == nil {
		return nil
	}
	node, ok := lookupField(m.tree, collection)
	if !ok {
		return nil
	}
	var out []FieldPath
	collectIndexedFields(&out, nil, node)
	return out
}

func collectIndexedFields(out *[]FieldPath, prefix FieldPath, node any) {
	switch n := node.(type) {
	case bool:
		if n && len(prefix) > 0 {
			*out = append(*out, prefix)
		}
	case map[string]any:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectIndexedFields(out, prefix.Append(fieldSegment(k)), n[k])
		}
	case []any:
		for i, el := range n {
			collectIndexedFields(out, prefix.Append(int64(i)), el)
		}
	}
}

// fieldSegment undoes the map-key rendering of integer segments.
func fieldSegment(k string) any {
	if isDigits(k) {
		if n, err := strconv.ParseInt(k, 10, 64); err == nil {
			return n
		}
	}
	return k
}

// with returns a copy of m with collection ++ field marked as indexed.
func (m *indexMeta) with(collection KeyPath, field FieldPath) *indexMeta {
	tree := copyTree(m.tree)
	node := tree
	path := collection.Concat(field)
	for _, seg := range path[:len(path)-1] {
		k := segmentString(seg)
		child, ok := node[k].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[k] = child
		}
		node = child
	}
	node[segmentString(path[len(path)-1])] = true
	return &indexMeta{tree: tree}
}

func copyTree(tree map[string]any) map[string]any {
	out := make(map[string]any, len(tree))
	for k, v := range tree {
		switch v := v.(type) {
		case map[string]any:
			out[k] = copyTree(v)
		case []any:
			m := make(map[string]any, len(v))
			for i, el := range v {
				if el != nil {
					m[strconv.Itoa(i)] = el
				}
			}
			out[k] = copyTree(m)
		default:
			out[k] = v
		}
	}
	return out
}
