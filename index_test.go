package fowl

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreyvit/fowl/tuple"
)

func countKeys(t testing.TB, db *DB, flags DumpFlags) int {
	t.Helper()
	var n int
	err := db.DumpFunc(context.Background(), flags, func(kind DumpKind, key tuple.Tuple, value any) error {
		n++
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestAddIndex_Idempotent(t *testing.T) {
	eachEngine(t, Options{}, func(t *testing.T, db *DB) {
		ctx := context.Background()
		require.NoError(t, db.AddIndex(ctx, people, "balance"))
		require.NoError(t, db.AddIndex(ctx, people, "balance"))
		require.NoError(t, db.AddIndex(ctx, people, "name.first"))

		deepEqual(t, db.IndexedFields(people), []FieldPath{{"balance"}, {"name", "first"}})
		assert.Equal(t, 2, countKeys(t, db, DumpMeta))
		isempty(t, db.IndexedFields(Path("animals")))

		assert.ErrorIs(t, db.AddIndex(ctx, people, ""), ErrEmptyPath)
		assert.ErrorIs(t, db.AddIndex(ctx, nil, "balance"), ErrEmptyPath)
	})
}

func TestAddIndex_Backfill(t *testing.T) {
	eachEngine(t, Options{}, func(t *testing.T, db *DB) {
		ctx := context.Background()
		createAll(t, db, people,
			Document{"_id": "a", "balance": 10},
			Document{"_id": "b", "balance": 20},
			Document{"_id": "c"},
		)
		require.NoError(t, db.AddIndex(ctx, people, "balance"))
		assert.Equal(t, 2, countKeys(t, db, DumpIndexes))
		require.NoError(t, db.CheckIndexes(ctx, people))

		docs, err := db.Query(people, nil, QueryOptions{}).Gt("balance", 15).All(ctx)
		require.NoError(t, err)
		deepEqual(t, ids(docs), []any{"b"})
	})
}

func TestAddIndex_OldTransactionsKeepTheirSnapshot(t *testing.T) {
	db := setup(t, MemoryEngine, Options{})
	ctx := context.Background()
	old := db.Transaction()
	require.NoError(t, db.AddIndex(ctx, people, "balance"))

	old.Create(people, Document{"_id": "a", "balance": 10})
	commit(t, old)
	assert.Equal(t, 0, countKeys(t, db, DumpIndexes))

	var merr *multierror.Error
	require.True(t, errors.As(db.CheckIndexes(ctx, people), &merr))
	assert.Len(t, merr.Errors, 1)
	assert.Contains(t, merr.Errors[0].Error(), "missing entry")
}

func TestIndex_Cleanup(t *testing.T) {
	eachEngine(t, Options{IndexCleanup: true}, func(t *testing.T, db *DB) {
		ctx := context.Background()
		require.NoError(t, db.AddIndex(ctx, people, "balance"))
		require.NoError(t, db.AddIndex(ctx, people, "name.first"))
		createAll(t, db, people,
			Document{"_id": "a", "balance": 30, "name": Document{"first": "Ann"}},
			Document{"_id": "b", "balance": 40, "name": Document{"first": "Bob"}},
			Document{"_id": "c", "balance": 50, "name": Document{"first": "Cid"}},
		)

		require.NoError(t, db.Put(ctx, people.Append("a", "balance"), 60))
		require.NoError(t, db.Put(ctx, people.Append("a"), Document{"balance": 70}))
		require.NoError(t, db.Remove(ctx, people.Append("b")))
		require.NoError(t, db.Put(ctx, people.Append("c", "name"), "flat"))
		require.NoError(t, db.CheckIndexes(ctx, people))

		st, err := db.Stats(ctx, people)
		require.NoError(t, err)
		assert.Equal(t, 3, st.IndexEntries) // a.balance, a.name.first, c.balance

		docs, err := db.Query(people, nil, QueryOptions{}).Gte("balance", 0).All(ctx)
		require.NoError(t, err)
		deepEqual(t, balances(docs), []any{int64(50), int64(70)})
	})
}

func TestIndex_WritesInsideIndexedField(t *testing.T) {
	for _, cleanup := range []bool{false, true} {
		eachEngine(t, Options{IndexCleanup: cleanup}, func(t *testing.T, db *DB) {
			ctx := context.Background()
			require.NoError(t, db.AddIndex(ctx, people, "name"))
			createAll(t, db, people, Document{"_id": "a", "name": "Ann"})

			require.NoError(t, db.Put(ctx, people.Append("a", "name", "first"), "Ann"))
			docs, err := db.Query(people, nil, QueryOptions{}).Eql("name", map[string]any{"first": "Ann"}).All(ctx)
			require.NoError(t, err)
			deepEqual(t, ids(docs), []any{"a"})

			require.NoError(t, db.Remove(ctx, people.Append("a", "name", "first")))
			docs, err = db.Query(people, nil, QueryOptions{}).Eql("name", "Ann").All(ctx)
			require.NoError(t, err)
			isempty(t, docs)

			if cleanup {
				require.NoError(t, db.CheckIndexes(ctx, people))
			}
		})
	}
}

func TestIndex_NestedCollectionsRemovedWithParent(t *testing.T) {
	eachEngine(t, Options{IndexCleanup: true}, func(t *testing.T, db *DB) {
		ctx := context.Background()
		posts := Path("users", "u1", "posts")
		require.NoError(t, db.AddIndex(ctx, posts, "title"))
		createAll(t, db, posts, Document{"_id": "p1", "title": "Hello"})
		assert.Equal(t, 1, countKeys(t, db, DumpIndexes))

		require.NoError(t, db.Remove(ctx, Path("users", "u1")))
		assert.Equal(t, 0, countKeys(t, db, DumpIndexes))
		assert.Equal(t, 1, countKeys(t, db, DumpMeta))
	})
}

func TestCheckIndexes_ReportsStaleEntries(t *testing.T) {
	eachEngine(t, Options{}, func(t *testing.T, db *DB) {
		ctx := context.Background()
		require.NoError(t, db.AddIndex(ctx, people, "balance"))
		createAll(t, db, people,
			Document{"_id": "a", "balance": 30},
			Document{"_id": "b", "balance": 40},
		)
		require.NoError(t, db.CheckIndexes(ctx, people))

		require.NoError(t, db.Put(ctx, people.Append("a", "balance"), 60))
		require.NoError(t, db.Remove(ctx, people.Append("b")))

		err := db.CheckIndexes(ctx, people)
		var merr *multierror.Error
		require.True(t, errors.As(err, &merr), "err = %v", err)
		require.Len(t, merr.Errors, 2)
		assert.Contains(t, err.Error(), "stale entry")
		assert.Contains(t, err.Error(), "missing document")
	})
}

func TestIndexMeta_Targets(t *testing.T) {
	m := emptyIndexMeta.with(people, FieldPath{"name", "first"}).with(people, FieldPath{"age"})
	assert.True(t, m.isIndexed(Path("people", "age")))
	assert.True(t, m.isIndexed(Path("people", "name", "first")))
	assert.False(t, m.isIndexed(Path("people", "name")))
	assert.False(t, m.isIndexed(Path("people", "name", "first", "x")))
	assert.False(t, m.isIndexed(nil))
	isempty(t, emptyIndexMeta.fields(people))

	var got []string
	for _, tg := range m.indexTargets(Path("people", "a")) {
		got = append(got, tg.collection.String()+" "+segmentString(tg.id)+" "+tg.field.Dotted()+" "+tg.rel.Dotted())
	}
	deepEqual(t, got, []string{"people a age age", "people a name.first name.first"})

	got = nil
	for _, tg := range m.indexTargets(Path("people", "a", "name")) {
		got = append(got, tg.field.Dotted()+" "+tg.rel.Dotted())
	}
	deepEqual(t, got, []string{"name.first first"})

	isempty(t, m.indexTargets(Path("people", "a", "name", "first", "x")))
	isempty(t, m.indexTargets(Path("people")))

	got = nil
	for _, tg := range m.enclosingTargets(Path("people", "a", "name", "first", "x")) {
		got = append(got, tg.field.Dotted()+" "+tg.rel.Dotted())
	}
	deepEqual(t, got, []string{"name.first x"})
}

func TestOverwrites(t *testing.T) {
	assert.True(t, overwrites("flat", FieldPath{"first"}))
	assert.True(t, overwrites(map[string]any{"name": 1}, FieldPath{"name", "first"}))
	assert.False(t, overwrites(map[string]any{"other": 1}, FieldPath{"name"}))
	assert.False(t, overwrites(map[string]any{"name": map[string]any{}}, FieldPath{"name", "first"}))
	assert.True(t, overwrites(5, nil))
}

func TestOperator_String(t *testing.T) {
	assert.Equal(t, "gte", OpGte.String())
	assert.Equal(t, "nin", OpNin.String())
	assert.Equal(t, "Operator(42)", Operator(42).String())
	assert.True(t, OpLte.indexable())
	assert.False(t, OpNe.indexable())
}
