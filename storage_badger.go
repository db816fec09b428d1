package fowl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

const defaultBadgerRetries = 10

type badgerEngine struct {
	db         *badger.DB
	logger     logrus.FieldLogger
	maxRetries uint64
}

// OpenBadger opens a Badger database in dir, or a purely in-memory one when
// opt.InMemory is set. Unlike Bolt, Badger runs writers concurrently and
// detects conflicts at commit; RunAtomic retries those with exponential
// backoff.
func OpenBadger(dir string, opt EngineOptions) (Engine, error) {
	bopt := badger.DefaultOptions(dir)
	if opt.InMemory {
		bopt = badger.DefaultOptions("").WithInMemory(true)
	}
	logger := opt.Logger
	if logger != nil {
		logger = logger.WithField("engine", "badger")
		bopt = bopt.WithLogger(logger)
	} else {
		bopt = bopt.WithLogger(nil)
	}
	if opt.IsTesting {
		bopt = bopt.WithSyncWrites(false).WithNumVersionsToKeep(1)
	}

	db, err := badger.Open(bopt)
	if err != nil {
		return nil, fmt.Errorf("fowl: badger: %w", err)
	}
	maxRetries := opt.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultBadgerRetries
	}
	return &badgerEngine{db: db, logger: logger, maxRetries: maxRetries}, nil
}

// Badger returns the underlying database handle.
func (s *badgerEngine) Badger() *badger.DB {
	return s.db
}

func (s *badgerEngine) RunAtomic(ctx context.Context, fn func(tx EngineTx) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond

	return backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		txn := s.db.NewTransaction(true)
		defer txn.Discard()

		tx := &badgerTx{txn: txn, writable: true}
		err := fn(tx)
		if cerr := tx.closeCursor(); err == nil {
			err = cerr
		}
		if err != nil {
			return backoff.Permanent(err)
		}

		err = txn.Commit()
		if errors.Is(err, badger.ErrConflict) {
			if s.logger != nil {
				s.logger.WithError(err).Debug("badger commit conflict, retrying")
			}
			return err
		} else if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, s.maxRetries), ctx))
}

func (s *badgerEngine) View(ctx context.Context, fn func(tx EngineTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		tx := &badgerTx{txn: txn}
		err := fn(tx)
		if cerr := tx.closeCursor(); err == nil {
			err = cerr
		}
		return err
	})
}

func (s *badgerEngine) Close() error {
	return s.db.Close()
}

type badgerTx struct {
	txn      *badger.Txn
	writable bool
	cur      *badgerCursor
}

func (tx *badgerTx) closeCursor() error {
	if tx.cur == nil {
		return nil
	}
	return tx.cur.Close()
}

func (tx *badgerTx) Get(key []byte) ([]byte, error) {
	item, err := tx.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (tx *badgerTx) Set(key, value []byte) error {
	// the transaction keeps references to both slices until commit
	return tx.txn.Set(cloneBytes(key), append([]byte{}, value...))
}

func (tx *badgerTx) Clear(key []byte) error {
	return tx.txn.Delete(cloneBytes(key))
}

func (tx *badgerTx) ClearRange(begin, end []byte) error {
	if err := tx.closeCursor(); err != nil {
		return err
	}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := tx.txn.NewIterator(opts)
	var keys [][]byte
	for it.Seek(begin); it.Valid(); it.Next() {
		k := it.Item().KeyCopy(nil)
		if bytes.Compare(k, end) >= 0 {
			break
		}
		keys = append(keys, k)
	}
	it.Close()

	for _, k := range keys {
		if err := tx.txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (tx *badgerTx) Cursor() Cursor {
	tx.closeCursor()
	tx.cur = &badgerCursor{tx: tx}
	return tx.cur
}

// badgerCursor emulates a bidirectional cursor. A read-write Badger
// transaction allows only one live iterator, and iterators only go one way,
// so changing direction reopens the iterator at the current key.
type badgerCursor struct {
	tx      *badgerTx
	it      *badger.Iterator
	reverse bool
	key     []byte
	err     error
	closed  bool
}

func (c *badgerCursor) open(reverse bool) {
	if c.it != nil {
		if c.reverse == reverse {
			return
		}
		c.it.Close()
	}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = reverse
	c.it = c.tx.txn.NewIterator(opts)
	c.reverse = reverse
}

func (c *badgerCursor) current() ([]byte, []byte) {
	if !c.it.Valid() {
		c.key = nil
		return nil, nil
	}
	item := c.it.Item()
	c.key = item.KeyCopy(c.key[:0])
	v, err := item.ValueCopy(nil)
	if err != nil {
		if c.err == nil {
			c.err = err
		}
		c.key = nil
		return nil, nil
	}
	return c.key, v
}

func (c *badgerCursor) First() ([]byte, []byte) {
	c.open(false)
	c.it.Rewind()
	return c.current()
}

func (c *badgerCursor) Last() ([]byte, []byte) {
	c.open(true)
	c.it.Rewind()
	return c.current()
}

func (c *badgerCursor) Seek(seek []byte) ([]byte, []byte) {
	c.open(false)
	c.it.Seek(seek)
	return c.current()
}

func (c *badgerCursor) Next() ([]byte, []byte) {
	if c.it == nil {
		return c.First()
	}
	if !c.reverse {
		if !c.it.Valid() {
			return nil, nil
		}
		c.it.Next()
		return c.current()
	}
	if c.key == nil {
		return c.First()
	}
	cur := cloneBytes(c.key)
	c.open(false)
	c.it.Seek(cur)
	if c.it.Valid() && bytes.Equal(c.it.Item().Key(), cur) {
		c.it.Next()
	}
	return c.current()
}

func (c *badgerCursor) Prev() ([]byte, []byte) {
	if c.it == nil {
		return nil, nil
	}
	if c.reverse {
		if !c.it.Valid() {
			return nil, nil
		}
		c.it.Next()
		return c.current()
	}
	if c.key == nil {
		return c.Last()
	}
	cur := cloneBytes(c.key)
	c.open(true)
	c.it.Seek(cur)
	if c.it.Valid() && bytes.Equal(c.it.Item().Key(), cur) {
		c.it.Next()
	}
	return c.current()
}

func (c *badgerCursor) Close() error {
	if c.closed {
		return c.err
	}
	c.closed = true
	if c.it != nil {
		c.it.Close()
		c.it = nil
	}
	if c.tx.cur == c {
		c.tx.cur = nil
	}
	return c.err
}
