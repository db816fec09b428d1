package fowl

import (
	"reflect"
	"slices"
	"sort"
	"strconv"
)

// Document is a top-level stored document.
type Document = map[string]any

const IDField = "_id"

type pair struct {
	path  KeyPath
	value any
}

// flatten turns a nested value into one (path, leaf) pair per leaf. Map keys
// are visited in sorted order, list elements by their int64 index. Empty maps
// and lists produce no pairs; a leaf v produces a single pair at prefix.
func flatten(prefix KeyPath, v any) []pair {
	var out []pair
	flattenInto(&out, prefix, v)
	return out
}

func flattenInto(out *[]pair, prefix KeyPath, v any) {
	switch v := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenInto(out, prefix.Append(k), v[k])
		}
		return
	case []any:
		for i, el := range v {
			flattenInto(out, prefix.Append(int64(i)), el)
		}
		return
	case []byte:
		*out = append(*out, pair{prefix, v})
		return
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, k := range keys {
			flattenInto(out, prefix.Append(k.String()), rv.MapIndex(k).Interface())
		}
		return
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			flattenInto(out, prefix.Append(int64(i)), rv.Index(i).Interface())
		}
		return
	}
	*out = append(*out, pair{prefix, v})
}

type nodeKind int

const (
	unsetNode nodeKind = iota
	leafNode
	mapNode
	listNode
)

// node is a container under construction. Its kind is decided when the first
// child arrives: a list if the child's segment is an integer, a map otherwise.
type node struct {
	kind   nodeKind
	value  any
	keys   []string
	fields map[string]*node
	items  []*node
}

func (n *node) setKind(seg any) {
	if _, ok := seg.(int64); ok {
		n.kind = listNode
	} else {
		n.kind = mapNode
		n.fields = make(map[string]*node)
	}
}

// toMap converts a list node into a map keyed by decimal indices. Happens when
// a list receives a string segment.
func (n *node) toMap() {
	n.kind = mapNode
	n.fields = make(map[string]*node, len(n.items))
	n.keys = nil
	for i, item := range n.items {
		if item == nil {
			continue
		}
		k := strconv.Itoa(i)
		n.keys = append(n.keys, k)
		n.fields[k] = item
	}
	n.items = nil
}

func (n *node) child(seg any) *node {
	switch n.kind {
	case unsetNode:
		n.setKind(seg)
	case leafNode:
		n.value = nil
		n.setKind(seg)
	}
	if n.kind == listNode {
		if i, ok := seg.(int64); ok && i >= 0 && i < 1<<24 {
			if int(i) >= len(n.items) {
				n.items = append(n.items, make([]*node, int(i)+1-len(n.items))...)
			}
			if n.items[i] == nil {
				n.items[i] = &node{}
			}
			return n.items[i]
		}
		n.toMap()
	}
	k := segmentString(seg)
	c := n.fields[k]
	if c == nil {
		c = &node{}
		n.fields[k] = c
		n.keys = append(n.keys, k)
	}
	return c
}

func (n *node) set(suffix KeyPath, value any) {
	cur := n
	for _, seg := range suffix {
		cur = cur.child(seg)
	}
	if cur.kind == mapNode || cur.kind == listNode {
		// a container already grew here from deeper keys; keep it
		return
	}
	cur.kind = leafNode
	cur.value = value
}

func (n *node) build() any {
	switch n.kind {
	case leafNode:
		return n.value
	case mapNode:
		m := make(map[string]any, len(n.keys))
		for _, k := range n.keys {
			m[k] = n.fields[k].build()
		}
		return m
	case listNode:
		l := make([]any, len(n.items))
		for i, item := range n.items {
			if item != nil {
				l[i] = item.build()
			}
		}
		return l
	default:
		return nil
	}
}

// children returns the built children of a container node in discovery order.
func (n *node) children() (keys []string, values []any) {
	switch n.kind {
	case mapNode:
		for _, k := range n.keys {
			keys = append(keys, k)
			values = append(values, n.fields[k].build())
		}
	case listNode:
		for i, item := range n.items {
			if item != nil {
				keys = append(keys, strconv.Itoa(i))
				values = append(values, item.build())
			}
		}
	}
	return
}

// builder reconstructs a value from pairs relative to a common prefix.
type builder struct {
	root  node
	count int
}

func (b *builder) add(suffix KeyPath, value any) {
	b.count++
	b.root.set(suffix, value)
}

// result returns the reconstructed value, or found=false when no pairs were
// added. A document without any fields is indistinguishable from no document.
func (b *builder) result() (v any, found bool) {
	if b.count == 0 {
		return nil, false
	}
	return b.root.build(), true
}

func reconstruct(pairs []pair) (any, bool) {
	var b builder
	for _, p := range pairs {
		b.add(p.path, p.value)
	}
	return b.result()
}

// lookupField descends into nested maps and lists.
func lookupField(v any, field FieldPath) (any, bool) {
	for _, seg := range field {
		switch c := v.(type) {
		case map[string]any:
			el, ok := c[segmentString(seg)]
			if !ok {
				return nil, false
			}
			v = el
		case []any:
			i, ok := seg.(int64)
			if !ok {
				n, err := strconv.Atoi(segmentString(seg))
				if err != nil {
					return nil, false
				}
				i = int64(n)
			}
			if i < 0 || i >= int64(len(c)) {
				return nil, false
			}
			v = c[i]
		default:
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
				return nil, false
			}
			el := rv.MapIndex(reflect.ValueOf(segmentString(seg)).Convert(rv.Type().Key()))
			if !el.IsValid() {
				return nil, false
			}
			v = el.Interface()
		}
	}
	return v, true
}

// setField stores value at field inside doc, creating intermediate maps.
func setField(doc Document, field FieldPath, value any) {
	m := doc
	for _, seg := range field[:len(field)-1] {
		k := segmentString(seg)
		sub, ok := m[k].(map[string]any)
		if !ok {
			sub = make(map[string]any)
			m[k] = sub
		}
		m = sub
	}
	m[segmentString(field[len(field)-1])] = value
}

func hasField(doc Document, field FieldPath) bool {
	_, ok := lookupField(doc, field)
	return ok
}

// project returns a copy of doc holding only the given fields. Missing fields
// are skipped.
func project(doc Document, fields []FieldPath) Document {
	out := make(Document, len(fields))
	for _, f := range fields {
		if v, ok := lookupField(doc, f); ok {
			setField(out, f, v)
		}
	}
	return out
}

func parseFields(fields []string) []FieldPath {
	if len(fields) == 0 {
		return nil
	}
	out := make([]FieldPath, len(fields))
	for i, f := range fields {
		out[i] = ParseField(f)
	}
	return out
}

func containsField(fields []FieldPath, f FieldPath) bool {
	return slices.ContainsFunc(fields, func(x FieldPath) bool { return x.String() == f.String() })
}
