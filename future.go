package fowl

type futureState int

const (
	futurePending futureState = iota
	futureResolved
	futureRejected
)

// Future is the result of an operation queued on a Tx. It is settled while
// the transaction commits, in the order operations were queued.
type Future[T any] struct {
	state     futureState
	value     T
	err       error
	callbacks []func()

	// saved at the start of Commit, restored when the engine retries
	markedCallbacks int
}

// settler is the type-erased view of a future that Tx keeps to reject or
// rewind it.
type settler interface {
	fail(err error)
	pending() bool
	mark()
	rewind()
}

func newFuture[T any](tx *Tx) *Future[T] {
	f := &Future[T]{}
	if tx != nil {
		tx.futures = append(tx.futures, f)
	}
	return f
}

// Resolved returns an already resolved future.
func Resolved[T any](v T) *Future[T] {
	return &Future[T]{state: futureResolved, value: v}
}

// Rejected returns an already rejected future.
func Rejected[T any](err error) *Future[T] {
	return &Future[T]{state: futureRejected, err: err}
}

// Get returns the result. Before the owning transaction has run the
// operation it returns ErrPending.
func (f *Future[T]) Get() (T, error) {
	switch f.state {
	case futureResolved:
		return f.value, nil
	case futureRejected:
		var zero T
		return zero, f.err
	default:
		var zero T
		return zero, ErrPending
	}
}

// Value is like Get, but panics on error.
func (f *Future[T]) Value() T {
	return must(f.Get())
}

func (f *Future[T]) Done() bool {
	return f.state != futurePending
}

func (f *Future[T]) Err() error {
	if f.state == futurePending {
		return ErrPending
	}
	return f.err
}

// Then registers fn to run when f resolves successfully. fn runs during
// Commit and may queue more operations on the same Tx; those run in the next
// pass of the same commit.
func (f *Future[T]) Then(fn func(v T)) *Future[T] {
	f.onSettle(func() {
		if f.state == futureResolved {
			fn(f.value)
		}
	})
	return f
}

// Catch registers fn to run when f is rejected.
func (f *Future[T]) Catch(fn func(err error)) *Future[T] {
	f.onSettle(func() {
		if f.state == futureRejected {
			fn(f.err)
		}
	})
	return f
}

func (f *Future[T]) onSettle(cb func()) {
	if f.state != futurePending {
		cb()
		return
	}
	f.callbacks = append(f.callbacks, cb)
}

func (f *Future[T]) resolve(v T) {
	if f.state != futurePending {
		return
	}
	f.state, f.value = futureResolved, v
	f.fire()
}

func (f *Future[T]) fail(err error) {
	if f.state != futurePending {
		return
	}
	f.state, f.err = futureRejected, err
	f.fire()
}

func (f *Future[T]) fire() {
	for _, cb := range f.callbacks {
		cb()
	}
}

func (f *Future[T]) pending() bool {
	return f.state == futurePending
}

func (f *Future[T]) mark() {
	f.markedCallbacks = len(f.callbacks)
}

func (f *Future[T]) rewind() {
	var zero T
	f.state, f.value, f.err = futurePending, zero, nil
	f.callbacks = f.callbacks[:f.markedCallbacks]
}

// Then chains a dependent step: when f resolves, fn is called with its value
// and the returned future settles the same way as the future fn returns.
// Typically fn queues another operation on the transaction.
func Then[T, U any](tx *Tx, f *Future[T], fn func(v T) *Future[U]) *Future[U] {
	out := newFuture[U](tx)
	f.onSettle(func() {
		if f.state == futureRejected {
			out.fail(f.err)
			return
		}
		next := fn(f.value)
		if next == nil {
			var zero U
			out.resolve(zero)
			return
		}
		next.onSettle(func() {
			if next.state == futureRejected {
				out.fail(next.err)
			} else {
				out.resolve(next.value)
			}
		})
	})
	return out
}
