package fowl

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB_CreateAndRead(t *testing.T) {
	eachEngine(t, Options{}, func(t *testing.T, db *DB) {
		ctx := context.Background()
		animals := Path("animals")

		id, err := db.Create(ctx, animals, Document{"name": "fox", "legs": 4})
		require.NoError(t, err)
		s, ok := id.(string)
		require.True(t, ok, "id = %T", id)
		u, err := uuid.Parse(s)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), u.Version())

		v, err := db.Get(ctx, animals.Append(id))
		require.NoError(t, err)
		doc := v.(Document)
		assert.Equal(t, "fox", doc["name"])
		assert.Equal(t, int64(4), doc["legs"])
		assert.Equal(t, id, doc[IDField])
	})
}

func TestDB_CreateWithID(t *testing.T) {
	eachEngine(t, Options{}, func(t *testing.T, db *DB) {
		ctx := context.Background()
		people := Path("people")

		in := Document{"_id": 7, "name": "John"}
		id, err := db.Create(ctx, people, in)
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
		assert.Equal(t, 7, in["_id"], "input document must not change")

		v, err := db.Get(ctx, Path("people", 7, "name"))
		require.NoError(t, err)
		assert.Equal(t, "John", v)

		_, err = db.Create(ctx, people, Document{"_id": 1.5})
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestDB_PartialUpdate(t *testing.T) {
	eachEngine(t, Options{}, func(t *testing.T, db *DB) {
		ctx := context.Background()
		animals := Path("animals")
		id, err := db.Create(ctx, animals, Document{"name": "fox", "legs": 4, "home": Document{"type": "den"}})
		require.NoError(t, err)

		require.NoError(t, db.Put(ctx, animals.Append(id), Document{"legs": 3}))
		require.NoError(t, db.Put(ctx, animals.Append(id, "home", "depth"), 1.5))

		v, err := db.Get(ctx, animals.Append(id))
		require.NoError(t, err)
		assert.Equal(t, Document{
			"_id":  id,
			"name": "fox",
			"legs": int64(3),
			"home": map[string]any{"type": "den", "depth": 1.5},
		}, v)
	})
}

func TestDB_PutReplacesShape(t *testing.T) {
	eachEngine(t, Options{}, func(t *testing.T, db *DB) {
		ctx := context.Background()
		p := Path("things", "x")

		require.NoError(t, db.Put(ctx, p, Document{"a": Document{"b": 1, "c": 2}}))
		require.NoError(t, db.Put(ctx, p.Append("a"), "flat"))
		v, err := db.Get(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, Document{"a": "flat"}, v)

		require.NoError(t, db.Put(ctx, p.Append("a", "d"), true))
		v, err = db.Get(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, Document{"a": map[string]any{"d": true}}, v)
	})
}

func TestDB_GetShapes(t *testing.T) {
	eachEngine(t, Options{}, func(t *testing.T, db *DB) {
		ctx := context.Background()
		when := time.Date(2020, 5, 6, 7, 8, 9, 0, time.UTC)
		require.NoError(t, db.Put(ctx, Path("c", "d1"), Document{
			"tags": []any{"x", "y"},
			"when": when,
			"none": nil,
		}))
		require.NoError(t, db.Put(ctx, Path("c", "d2"), Document{"n": 1}))

		v, err := db.Get(ctx, Path("c", "d1", "tags"))
		require.NoError(t, err)
		assert.Equal(t, []any{"x", "y"}, v)

		v, err = db.Get(ctx, Path("c", "d1", "tags", 1))
		require.NoError(t, err)
		assert.Equal(t, "y", v)

		v, err = db.Get(ctx, Path("c", "d1", "when"))
		require.NoError(t, err)
		assert.Equal(t, when, v)

		v, err = db.Get(ctx, Path("c", "d1"))
		require.NoError(t, err)
		assert.Contains(t, v.(Document), "none")
		assert.Nil(t, v.(Document)["none"])

		v, err = db.Get(ctx, Path("c"))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"n": int64(1)}, v.(map[string]any)["d2"])

		v, err = db.Get(ctx, Path("c", "missing"))
		require.NoError(t, err)
		assert.Nil(t, v)

		_, err = db.Get(ctx, nil)
		assert.ErrorIs(t, err, ErrEmptyPath)
	})
}

func TestDB_Remove(t *testing.T) {
	eachEngine(t, Options{}, func(t *testing.T, db *DB) {
		ctx := context.Background()
		animals := Path("animals")
		fox, err := db.Create(ctx, animals, Document{"name": "fox"})
		require.NoError(t, err)
		owl, err := db.Create(ctx, animals, Document{"name": "owl"})
		require.NoError(t, err)

		require.NoError(t, db.Remove(ctx, animals.Append(fox)))
		v, err := db.Get(ctx, animals.Append(fox))
		require.NoError(t, err)
		assert.Nil(t, v)

		v, err = db.Get(ctx, animals.Append(owl, "name"))
		require.NoError(t, err)
		assert.Equal(t, "owl", v)

		// a leaf, something that does not exist, then everything
		require.NoError(t, db.Remove(ctx, animals.Append(owl, "name")))
		v, err = db.Get(ctx, animals.Append(owl))
		require.NoError(t, err)
		assert.Equal(t, Document{"_id": owl}, v)

		require.NoError(t, db.Remove(ctx, Path("nothing", "here")))
		require.NoError(t, db.Remove(ctx, animals))
		v, err = db.Get(ctx, animals)
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func TestDB_ReadYourWrites(t *testing.T) {
	eachEngine(t, Options{}, func(t *testing.T, db *DB) {
		tx := db.Transaction()
		tx.Put(Path("a", "b"), 1)
		before := tx.Get(Path("a"))
		tx.Remove(Path("a", "b"))
		after := tx.Get(Path("a"))
		commit(t, tx)

		assert.Equal(t, map[string]any{"b": int64(1)}, before.Value())
		assert.Nil(t, after.Value())
	})
}

func TestDB_ReopenKeepsIndexes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := OpenPath(ctx, BoltEngine, path, Options{})
	require.NoError(t, err)
	require.NoError(t, db.AddIndex(ctx, Path("people"), "name.first"))
	_, err = db.Create(ctx, Path("people"), Document{"_id": "j", "name": Document{"first": "Joshua"}})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenPath(ctx, BoltEngine, path, Options{})
	require.NoError(t, err)
	defer db.Close()
	deepEqual(t, db.IndexedFields(Path("people")), []FieldPath{{"name", "first"}})

	docs, err := db.Query(Path("people"), nil, QueryOptions{}).Eql("name.first", "Joshua").All(ctx)
	require.NoError(t, err)
	deepEqual(t, ids(docs), []any{"j"})
}

// commitFails runs fn like the wrapped engine and then reports a failed commit.
type commitFails struct {
	Engine
}

func (e commitFails) RunAtomic(ctx context.Context, fn func(tx EngineTx) error) error {
	if err := e.Engine.RunAtomic(ctx, fn); err != nil {
		return err
	}
	return errDiskFull
}

var errDiskFull = errors.New("disk full at commit")

func TestDB_SingleOpsReportCommitFailures(t *testing.T) {
	db, err := Open(context.Background(), commitFails{NewMemory()}, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	animals := Path("animals")

	id, err := db.Create(ctx, animals, Document{"name": "fox"})
	assert.ErrorIs(t, err, errDiskFull)
	assert.Nil(t, id)

	assert.ErrorIs(t, db.Put(ctx, animals.Append("owl"), Document{"name": "owl"}), errDiskFull)
	assert.ErrorIs(t, db.Remove(ctx, animals.Append("owl")), errDiskFull)

	v, err := db.Get(ctx, animals.Append("owl"))
	assert.ErrorIs(t, err, errDiskFull)
	assert.Nil(t, v)

	docs, err := db.Find(ctx, animals, Document{"name": "fox"})
	assert.ErrorIs(t, err, errDiskFull)
	isempty(t, docs)

	// the operation's own error still wins over the commit failure
	err = db.Put(ctx, nil, 1)
	assert.ErrorIs(t, err, ErrEmptyPath)
	assert.NotErrorIs(t, err, ErrAborted)
}
