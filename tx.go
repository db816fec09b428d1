package fowl

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

type txState int

const (
	txOpen txState = iota
	txCommitting
	txCommitted
)

func (s txState) String() string {
	switch s {
	case txOpen:
		return "open"
	case txCommitting:
		return "committing"
	case txCommitted:
		return "committed"
	default:
		return fmt.Sprintf("txState(%d)", int(s))
	}
}

// Tx queues operations and runs them atomically on Commit. Nothing touches
// the engine before Commit, so an abandoned Tx has no effect.
//
// A Tx is not safe for concurrent use.
type Tx struct {
	db     *DB
	meta   *indexMeta
	logger logrus.FieldLogger

	state   txState
	ops     []op
	futures []settler

	changeHandler func(tx *Tx, chg *Change)
	changes       []*Change

	// only set while Commit is running
	etx       EngineTx
	pass      int
	startTime time.Time
	stack     string
}

type op struct {
	kind string
	path KeyPath
	run  func() error
	fail func(err error)
}

// Transaction returns a new empty transaction. It sees the index metadata
// that is current at this moment.
func (db *DB) Transaction() *Tx {
	return &Tx{
		db:     db,
		meta:   db.meta.Load(),
		logger: db.logger,
	}
}

func (tx *Tx) DB() *DB {
	return tx.db
}

// Committed reports whether Commit has run.
func (tx *Tx) Committed() bool {
	return tx.state == txCommitted
}

// Len returns the number of queued operations.
func (tx *Tx) Len() int {
	return len(tx.ops)
}

func enqueue[T any](tx *Tx, kind string, path KeyPath, fn func() (T, error)) *Future[T] {
	if tx.state == txCommitted {
		return Rejected[T](ErrTransactionCommitted)
	}
	f := newFuture[T](tx)
	tx.ops = append(tx.ops, op{
		kind: kind,
		path: path,
		run: func() error {
			v, err := fn()
			if err != nil {
				f.fail(err)
				return err
			}
			f.resolve(v)
			return nil
		},
		fail: f.fail,
	})
	return f
}

// Commit runs every queued operation inside one atomic unit of the engine.
// Operations queued by callbacks while committing run in subsequent passes.
// The first failing operation aborts the commit; every future still pending
// is then rejected with an error wrapping ErrAborted.
//
// If the engine retries the unit, queue and futures are rewound to their
// state at the start of Commit and the operations run again.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.state != txOpen {
		return ErrTransactionCommitted
	}
	tx.state = txCommitting
	start := time.Now()
	tx.startTime = start
	if tx.db.verbose {
		tx.stack = string(debug.Stack())
	}
	tx.db.addTx(tx)
	defer tx.db.removeTx(tx)

	nops, nfutures := len(tx.ops), len(tx.futures)
	for _, f := range tx.futures {
		f.mark()
	}

	var attempts int
	err := tx.db.engine.RunAtomic(ctx, func(etx EngineTx) error {
		attempts++
		if attempts > 1 {
			tx.rewind(nops, nfutures)
			tx.db.metrics.retries.Inc()
			if tx.db.verbose {
				tx.logger.WithField("attempt", attempts).Debug("fowl: retrying transaction")
			}
		}
		tx.etx = etx
		defer func() { tx.etx = nil }()
		return tx.drain(ctx)
	})
	tx.state = txCommitted
	tx.db.metrics.commitDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		tx.db.metrics.commits.WithLabelValues("error").Inc()
		aborted := fmt.Errorf("%w: %w", ErrAborted, err)
		for _, f := range tx.futures {
			if f.pending() {
				f.fail(aborted)
			}
		}
		if tx.db.verbose {
			tx.logger.WithError(err).WithField("ops", len(tx.ops)).Debug("fowl: transaction aborted")
		}
		return err
	}
	tx.db.metrics.commits.WithLabelValues("ok").Inc()
	if tx.db.verbose {
		tx.logger.WithFields(logrus.Fields{"ops": len(tx.ops), "passes": tx.pass, "attempts": attempts}).Debug("fowl: committed")
	}
	tx.notifyChanges()
	return nil
}

func (tx *Tx) rewind(nops, nfutures int) {
	tx.changes = nil
	clear(tx.ops[nops:])
	tx.ops = tx.ops[:nops]
	clear(tx.futures[nfutures:])
	tx.futures = tx.futures[:nfutures]
	for _, f := range tx.futures {
		f.rewind()
	}
}

// drain runs the queue in passes: each pass runs the operations queued when
// it started, and operations queued meanwhile are left for the next one.
func (tx *Tx) drain(ctx context.Context) error {
	tx.pass = 0
	for i := 0; i < len(tx.ops); {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx.pass++
		end := len(tx.ops)
		for ; i < end; i++ {
			if err := tx.runOp(&tx.ops[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (tx *Tx) runOp(o *op) error {
	tx.db.metrics.ops.WithLabelValues(o.kind).Inc()
	if tx.db.verbose {
		tx.logger.WithFields(logrus.Fields{"op": o.kind, "path": o.path.String(), "pass": tx.pass}).Debug("fowl: op")
	}
	err := safelyCall(o.run)
	if err != nil {
		// a panicking op never got to settle its future
		o.fail(err)
		if tx.db.verbose {
			tx.logger.WithError(err).WithField("op", o.kind).Debug("fowl: op failed")
		}
	}
	return err
}

func safelyCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn()
}

func checkPath(path KeyPath) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	return nil
}
