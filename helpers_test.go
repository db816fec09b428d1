package fowl

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var testEngines = []EngineKind{MemoryEngine, BoltEngine, BadgerEngine}

func openTestEngine(t testing.TB, kind EngineKind) Engine {
	t.Helper()
	var e Engine
	switch kind {
	case MemoryEngine:
		e = NewMemory()
	case BoltEngine:
		e = must(OpenBolt(filepath.Join(t.TempDir(), "test.db"), EngineOptions{IsTesting: true}))
	case BadgerEngine:
		e = must(OpenBadger("", EngineOptions{IsTesting: true, InMemory: true}))
	default:
		t.Fatalf("unknown engine %q", kind)
	}
	return e
}

func setup(t testing.TB, kind EngineKind, opt Options) *DB {
	t.Helper()
	db, err := Open(context.Background(), openTestEngine(t, kind), opt)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing: %v", err)
		}
	})
	return db
}

// eachEngine runs fn as a subtest against a fresh DB on every engine.
func eachEngine(t *testing.T, opt Options, fn func(t *testing.T, db *DB)) {
	for _, kind := range testEngines {
		t.Run(string(kind), func(t *testing.T) {
			fn(t, setup(t, kind, opt))
		})
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}

func x(data string) []byte {
	data = strings.ReplaceAll(data, " ", "")
	return must(hex.DecodeString(data))
}

func commit(t testing.TB, tx *Tx) {
	t.Helper()
	require.NoError(t, tx.Commit(context.Background()))
}

func ids(docs []Document) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d[IDField]
	}
	return out
}

func createAll(t testing.TB, db *DB, collection KeyPath, docs ...Document) {
	t.Helper()
	tx := db.Transaction()
	for _, doc := range docs {
		tx.Create(collection, doc)
	}
	commit(t, tx)
}
