package fowl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const trackTxns = true

// DB is a document store on top of an ordered key-value Engine.
type DB struct {
	engine       Engine
	meta         atomic.Pointer[indexMeta]
	logger       logrus.FieldLogger
	verbose      bool
	indexCleanup bool
	metrics      *metrics

	// serializes AddIndex within this process
	metaLock sync.Mutex

	txns     []*Tx
	txnsLock sync.Mutex
}

type Options struct {
	Logger  logrus.FieldLogger
	Verbose bool

	// IndexCleanup removes the index entries of overwritten and removed
	// values. Without it, stale entries stay behind and are filtered out
	// at query time.
	IndexCleanup bool

	// Registerer receives the DB's collectors. They are unregistered on Close.
	Registerer prometheus.Registerer
}

// Open wraps engine and loads the index metadata. The DB takes ownership of
// engine and closes it on Close.
func Open(ctx context.Context, engine Engine, opt Options) (*DB, error) {
	logger := opt.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	m, err := newMetrics(opt.Registerer)
	if err != nil {
		return nil, fmt.Errorf("fowl: metrics: %w", err)
	}

	db := &DB{
		engine:       engine,
		logger:       logger,
		verbose:      opt.Verbose,
		indexCleanup: opt.IndexCleanup,
		metrics:      m,
	}
	db.meta.Store(emptyIndexMeta)

	err = engine.View(ctx, func(etx EngineTx) error {
		tx := db.Transaction()
		tx.etx = etx
		meta, err := tx.loadIndexMeta()
		if err != nil {
			return err
		}
		db.meta.Store(meta)
		return nil
	})
	if err != nil {
		return nil, multierror.Append(fmt.Errorf("fowl: loading index metadata: %w", err), m.unregister()).ErrorOrNil()
	}
	if db.verbose {
		logger.WithField("indexes", len(db.meta.Load().tree)).Debug("fowl: opened")
	}
	return db, nil
}

// OpenPath opens an engine of the given kind at path and a DB on top of it.
func OpenPath(ctx context.Context, kind EngineKind, path string, opt Options) (*DB, error) {
	engine, err := OpenEngine(kind, path, EngineOptions{Logger: opt.Logger})
	if err != nil {
		return nil, err
	}
	db, err := Open(ctx, engine, opt)
	if err != nil {
		return nil, multierror.Append(err, engine.Close()).ErrorOrNil()
	}
	return db, nil
}

func (db *DB) Engine() Engine {
	return db.engine
}

func (db *DB) Logger() logrus.FieldLogger {
	return db.logger
}

// IndexedFields lists the indexed fields of collection.
func (db *DB) IndexedFields(collection KeyPath) []FieldPath {
	return db.meta.Load().fields(collection)
}

func (db *DB) Close() error {
	var result *multierror.Error
	if err := db.engine.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("fowl: closing engine: %w", err))
	}
	if err := db.metrics.unregister(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Create stores doc in collection in its own transaction and returns its id.
func (db *DB) Create(ctx context.Context, collection KeyPath, doc Document) (any, error) {
	return single(ctx, db, func(tx *Tx) *Future[any] { return tx.Create(collection, doc) })
}

// Put writes value at path in its own transaction.
func (db *DB) Put(ctx context.Context, path KeyPath, value any) error {
	_, err := single(ctx, db, func(tx *Tx) *Future[struct{}] { return tx.Put(path, value) })
	return err
}

// Get reads the value stored at path in its own transaction. It returns nil
// when nothing is stored there.
func (db *DB) Get(ctx context.Context, path KeyPath, fields ...string) (any, error) {
	return single(ctx, db, func(tx *Tx) *Future[any] { return tx.Get(path, fields...) })
}

// Remove deletes path and everything under it in its own transaction.
func (db *DB) Remove(ctx context.Context, path KeyPath) error {
	_, err := single(ctx, db, func(tx *Tx) *Future[struct{}] { return tx.Remove(path) })
	return err
}

// Find runs Tx.Find in its own transaction.
func (db *DB) Find(ctx context.Context, collection KeyPath, where Document, fields ...string) ([]Document, error) {
	return single(ctx, db, func(tx *Tx) *Future[[]Document] { return tx.Find(collection, where, fields...) })
}

func single[T any](ctx context.Context, db *DB, queue func(tx *Tx) *Future[T]) (T, error) {
	tx := db.Transaction()
	f := queue(tx)
	if err := tx.Commit(ctx); err != nil {
		var zero T
		// the operation's own error reads better than the abort wrapper
		if ferr := f.Err(); ferr != nil && !errors.Is(ferr, ErrAborted) {
			return zero, ferr
		}
		return zero, err
	}
	return f.Get()
}

// AddIndex declares field (dotted, e.g. "name.first") of collection as
// indexed and indexes the documents already stored. Declaring an existing
// index again does nothing.
//
// Transactions created before AddIndex returns do not maintain the new index.
func (db *DB) AddIndex(ctx context.Context, collection KeyPath, field string) error {
	f := ParseField(field)
	if len(f) == 0 {
		return ErrEmptyPath
	}
	db.metaLock.Lock()
	defer db.metaLock.Unlock()

	var updated *indexMeta
	tx := db.Transaction()
	enqueue(tx, "add-index", collection.Concat(f), func() (struct{}, error) {
		if err := checkPath(collection); err != nil {
			return struct{}{}, err
		}
		meta, err := tx.loadIndexMeta()
		if err != nil {
			return struct{}{}, err
		}
		if meta.isIndexed(collection.Concat(f)) {
			updated = meta
			return struct{}{}, nil
		}
		if err := tx.addIndex(collection, f); err != nil {
			return struct{}{}, err
		}
		updated = meta.with(collection, f)
		return struct{}{}, nil
	})
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	db.meta.Store(updated)
	if db.verbose {
		db.logger.WithFields(logrus.Fields{"collection": collection.String(), "field": f.String()}).Debug("fowl: index added")
	}
	return nil
}

// addIndex writes the metadata key of collection.field and backfills its
// entries from the stored documents.
func (tx *Tx) addIndex(collection KeyPath, field FieldPath) error {
	mp := metaPath(collection, field)
	raw, err := EncodeValue(true)
	if err != nil {
		return err
	}
	if err := tx.etx.Set(mp.Pack(), raw); err != nil {
		return storeErr(ErrIndexWriteFailed, mp, nil, err)
	}

	ids, docs, err := tx.loadCollection(collection)
	if err != nil {
		return storeErr(ErrIndexReadFailed, collection, nil, err)
	}
	for i, doc := range docs {
		v, ok := lookupField(doc, field)
		if !ok {
			continue
		}
		if err := tx.writeIndexEntry(collection, field, ids[i], v); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) addTx(tx *Tx) {
	if !trackTxns {
		return
	}
	db.txnsLock.Lock()
	defer db.txnsLock.Unlock()
	db.txns = append(db.txns, tx)
}

func (db *DB) removeTx(tx *Tx) {
	if !trackTxns {
		return
	}
	db.txnsLock.Lock()
	defer db.txnsLock.Unlock()

	found := slices.Index(db.txns, tx)
	if found < 0 {
		panic("tx not found in list")
	}

	n := len(db.txns)
	db.txns[found] = db.txns[n-1]
	db.txns[n-1] = nil // ensure it gets collected
	db.txns = db.txns[:n-1]
}

// DescribeCommits lists the transactions currently committing, oldest
// first. Stacks are only captured in verbose mode.
func (db *DB) DescribeCommits() string {
	if !trackTxns {
		return "COMMIT TRACKING DISABLED"
	}

	db.txnsLock.Lock()
	txns := slices.Clone(db.txns)
	db.txnsLock.Unlock()

	if len(txns) == 0 {
		return "NO COMMITTING TRANSACTIONS"
	}

	slices.SortFunc(txns, func(a, b *Tx) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d COMMITTING TRANSACTIONS:\n", len(txns))
	for _, tx := range txns {
		ms := now.Sub(tx.startTime).Milliseconds()
		if ms < 100 || tx.stack == "" {
			fmt.Fprintf(&buf, "\n---\ncommitting for %d ms\n", ms)
		} else {
			fmt.Fprintf(&buf, "\n---\ncommitting for %d ms:\n%s", ms, tx.stack)
		}
	}

	return buf.String()
}
