package fowl

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/andreyvit/fowl/tuple"
)

// QueryOptions are applied after all conditions: sort, then skip, then limit.
type QueryOptions struct {
	Sort  []SortField
	Skip  int
	Limit int
}

type SortField struct {
	Field string
	Desc  bool
}

// Query selects documents of one collection by a list of conditions that
// successively narrow the candidate set. Only the first condition may use an
// index; later ones filter what the earlier ones produced.
//
// A Query holds no transaction state and may be executed many times.
type Query struct {
	db     *DB
	path   KeyPath
	fields []FieldPath
	opts   QueryOptions
	conds  []condition
}

type condition struct {
	op     Operator
	field  FieldPath
	value  any
	values []any
}

func (c condition) String() string {
	return fmt.Sprintf("%s %s %v", c.field.Dotted(), c.op, c.value)
}

func (c condition) matches(doc Document) bool {
	v, ok := lookupField(doc, c.field)
	return c.op.match(v, ok, c.value)
}

// Query starts a query over the documents of collection. If fields are given,
// results only carry those fields.
func (db *DB) Query(collection KeyPath, fields []string, opts QueryOptions) *Query {
	return &Query{
		db:     db,
		path:   collection,
		fields: parseFields(fields),
		opts:   opts,
	}
}

func (q *Query) where(op Operator, field string, value any) *Query {
	q.conds = append(q.conds, condition{op: op, field: ParseField(field), value: value})
	return q
}

func (q *Query) Eql(field string, value any) *Query { return q.where(OpEq, field, value) }
func (q *Query) Gt(field string, value any) *Query  { return q.where(OpGt, field, value) }
func (q *Query) Gte(field string, value any) *Query { return q.where(OpGte, field, value) }
func (q *Query) Lt(field string, value any) *Query  { return q.where(OpLt, field, value) }
func (q *Query) Lte(field string, value any) *Query { return q.where(OpLte, field, value) }

// Ne never uses an index.
func (q *Query) Ne(field string, value any) *Query { return q.where(OpNe, field, value) }

// Nin is not implemented; executing the query fails with ErrUnsupportedOperator.
func (q *Query) Nin(field string, values ...any) *Query {
	q.conds = append(q.conds, condition{op: OpNin, field: ParseField(field), values: values})
	return q
}

// Or is not implemented; executing the query fails with ErrUnsupportedOperator.
func (q *Query) Or(alternatives ...*Query) *Query {
	q.conds = append(q.conds, condition{op: OpOr})
	return q
}

func (q *Query) String() string {
	var buf strings.Builder
	buf.WriteString(q.path.String())
	for i, c := range q.conds {
		if i == 0 {
			buf.WriteString(" where ")
		} else {
			buf.WriteString(" and ")
		}
		buf.WriteString(c.String())
	}
	return buf.String()
}

// Exec queues the query on tx.
func (q *Query) Exec(tx *Tx) *Future[[]Document] {
	for _, c := range q.conds {
		if !c.op.indexable() && c.op != OpNe {
			return Rejected[[]Document](fmt.Errorf("%w: %v", ErrUnsupportedOperator, c.op))
		}
	}
	return enqueue(tx, "query", q.path, func() ([]Document, error) {
		if err := checkPath(q.path); err != nil {
			return nil, err
		}
		return q.run(tx)
	})
}

// All runs the query in its own transaction.
func (q *Query) All(ctx context.Context) ([]Document, error) {
	tx := q.db.Transaction()
	f := q.Exec(tx)
	if f.Done() {
		return f.Get()
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return f.Get()
}

type candidate struct {
	id  any
	doc Document
	// full means doc was loaded from the store in its entirety
	full bool
	// fromIndex means doc came from an index entry that may be stale
	fromIndex bool
}

func (cand *candidate) fill(tx *Tx, collection KeyPath) error {
	doc, err := tx.loadDocument(collection, cand.id)
	if err != nil {
		return err
	}
	cand.doc, cand.full = doc, true
	return nil
}

func (q *Query) run(tx *Tx) ([]Document, error) {
	var cands []*candidate
	resolved := false
	for i, c := range q.conds {
		if !resolved {
			resolved = true
			var err error
			if c.op.indexable() && tx.meta.isIndexed(q.path.Concat(c.field)) {
				cands, err = q.fromIndex(tx, c)
			} else {
				cands, err = q.fromScan(tx, c)
			}
			if err != nil {
				return nil, err
			}
			continue
		}

		kept := cands[:0]
		for _, cand := range cands {
			if !cand.full && !hasField(cand.doc, c.field) {
				if err := cand.fill(tx, q.path); err != nil {
					return nil, err
				}
				if cand.doc == nil {
					continue
				}
			}
			if c.matches(cand.doc) {
				kept = append(kept, cand)
			}
		}
		cands = kept
		if tx.db.verbose {
			tx.logger.WithField("cond", i).WithField("candidates", len(cands)).Debug("fowl: query narrowed")
		}
	}
	if !resolved {
		var err error
		cands, err = q.fromScan(tx, condition{})
		if err != nil {
			return nil, err
		}
	}

	kept := cands[:0]
	for _, cand := range cands {
		if !cand.full && (cand.fromIndex || q.fields == nil || !hasAllFields(cand.doc, q.fields)) {
			if err := cand.fill(tx, q.path); err != nil {
				return nil, err
			}
			if cand.doc == nil {
				continue
			}
		}
		if cand.fromIndex && !q.matchesAll(cand.doc) {
			continue
		}
		kept = append(kept, cand)
	}
	cands = kept

	if len(q.opts.Sort) > 0 {
		sortCandidates(cands, q.opts.Sort)
	}
	if q.opts.Skip > 0 {
		cands = cands[min(q.opts.Skip, len(cands)):]
	}
	if q.opts.Limit > 0 && len(cands) > q.opts.Limit {
		cands = cands[:q.opts.Limit]
	}

	result := make([]Document, len(cands))
	for i, cand := range cands {
		if q.fields != nil {
			result[i] = project(cand.doc, q.fields)
		} else {
			result[i] = cand.doc
		}
	}
	return result, nil
}

// fromIndex reads the candidates for an indexed condition. Each candidate
// only has _id and the condition's field.
func (q *Query) fromIndex(tx *Tx, c condition) ([]*candidate, error) {
	hits, err := tx.readIndex(c.op, q.path, c.field, c.value)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(hits))
	cands := make([]*candidate, 0, len(hits))
	for _, h := range hits {
		k := string(tuple.Pack(h.ID))
		if seen[k] {
			continue
		}
		seen[k] = true
		doc := Document{IDField: h.ID}
		setField(doc, c.field, h.Value)
		cands = append(cands, &candidate{id: h.ID, doc: doc, fromIndex: true})
	}
	return cands, nil
}

// fromScan loads the whole collection and keeps documents matching c. The
// zero condition matches everything.
func (q *Query) fromScan(tx *Tx, c condition) ([]*candidate, error) {
	ids, docs, err := tx.loadCollection(q.path)
	if err != nil {
		return nil, err
	}
	var cands []*candidate
	for i, doc := range docs {
		if c.field == nil || c.matches(doc) {
			cands = append(cands, &candidate{id: ids[i], doc: doc, full: true})
		}
	}
	return cands, nil
}

func (q *Query) matchesAll(doc Document) bool {
	for _, c := range q.conds {
		if !c.matches(doc) {
			return false
		}
	}
	return true
}

func hasAllFields(doc Document, fields []FieldPath) bool {
	for _, f := range fields {
		if !hasField(doc, f) {
			return false
		}
	}
	return true
}

// sortCandidates orders by the given fields; documents missing a field sort
// before those having it.
func sortCandidates(cands []*candidate, by []SortField) {
	fields := make([]FieldPath, len(by))
	for i, s := range by {
		fields[i] = ParseField(s.Field)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		for k, f := range fields {
			a, aok := lookupField(cands[i].doc, f)
			b, bok := lookupField(cands[j].doc, f)
			var c int
			switch {
			case !aok && !bok:
				c = 0
			case !aok:
				c = -1
			case !bok:
				c = 1
			default:
				c, _ = compareValues(a, b)
			}
			if by[k].Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}
