package fowl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

var ErrEngineClosed = errors.New("engine closed")

// Engine is an ordered transactional key-value store (Bolt, Badger, in-memory).
type Engine interface {
	// RunAtomic runs fn inside a read-write transaction and commits it. fn may
	// be called more than once if the engine detects a conflict and retries;
	// each call starts from a fresh transaction.
	RunAtomic(ctx context.Context, fn func(tx EngineTx) error) error

	// View runs fn inside a read-only transaction.
	View(ctx context.Context, fn func(tx EngineTx) error) error

	Close() error
}

// EngineTx is a single transaction of an Engine. Keys and values passed in
// may be reused by the caller after the call returns; returned slices are
// owned by the caller.
type EngineTx interface {
	// Get returns nil if the key does not exist.
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Clear(key []byte) error
	// ClearRange removes every key k with begin <= k < end.
	ClearRange(begin, end []byte) error

	// Cursor returns a cursor over the whole keyspace. At most one cursor may
	// be open per transaction at a time.
	Cursor() Cursor
}

// Cursor iterates over the sorted keyspace. Every positioning method returns
// nil key when it moves past either end. Returned slices are only valid until
// the next call.
type Cursor interface {
	First() (key, value []byte)
	Last() (key, value []byte)
	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)
	Next() (key, value []byte)
	Prev() (key, value []byte)
	// Close releases the cursor and reports the first error encountered.
	Close() error
}

type EngineKind string

const (
	BoltEngine   EngineKind = "bolt"
	BadgerEngine EngineKind = "badger"
	MemoryEngine EngineKind = "memory"
)

func ParseEngineKind(s string) (EngineKind, error) {
	switch k := EngineKind(strings.ToLower(s)); k {
	case BoltEngine, BadgerEngine, MemoryEngine:
		return k, nil
	case "mem", "":
		return MemoryEngine, nil
	default:
		return "", fmt.Errorf("unknown engine %q", s)
	}
}

type EngineOptions struct {
	Logger    logrus.FieldLogger
	IsTesting bool
	// MaxRetries bounds the number of conflict retries (Badger only).
	MaxRetries uint64
	// InMemory keeps Badger data in memory only; path is ignored.
	InMemory bool
}

// OpenEngine opens a store of the given kind. path is a file for Bolt and
// a directory for Badger; the memory engine ignores it.
func OpenEngine(kind EngineKind, path string, opt EngineOptions) (Engine, error) {
	switch kind {
	case BoltEngine:
		return OpenBolt(path, opt)
	case BadgerEngine:
		return OpenBadger(path, opt)
	case MemoryEngine:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", kind)
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
