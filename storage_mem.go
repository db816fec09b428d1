package fowl

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
)

type memEngine struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []memKV // sorted by key, never modified in place once published
	closed bool
	writer bool
}

type memKV struct {
	key   []byte
	value []byte
}

// NewMemory returns a transient in-memory Engine. Writers are serialized;
// readers see the state as of their start.
func NewMemory() Engine {
	s := &memEngine{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *memEngine) RunAtomic(ctx context.Context, fn func(tx EngineTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	for s.writer && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		s.mu.Unlock()
		return ErrEngineClosed
	}
	s.writer = true
	tx := &memTx{writable: true, items: slices.Clone(s.items)}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.writer = false
		s.cond.Broadcast()
		s.mu.Unlock()
	}()

	err := fn(tx)
	tx.closed = true
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEngineClosed
	}
	s.items = tx.items
	return nil
}

func (s *memEngine) View(ctx context.Context, fn func(tx EngineTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrEngineClosed
	}
	tx := &memTx{items: s.items}
	s.mu.Unlock()
	defer func() { tx.closed = true }()
	return fn(tx)
}

func (s *memEngine) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items = nil
	s.cond.Broadcast()
	return nil
}

type memTx struct {
	writable bool
	closed   bool
	items    []memKV
}

func (tx *memTx) check(write bool) error {
	if tx.closed {
		panic("tx is closed")
	}
	if write && !tx.writable {
		return fmt.Errorf("tx not writable")
	}
	return nil
}

func (tx *memTx) find(key []byte) (idx int, ok bool) {
	i := sort.Search(len(tx.items), func(i int) bool {
		return bytes.Compare(tx.items[i].key, key) >= 0
	})
	return i, i < len(tx.items) && bytes.Equal(tx.items[i].key, key)
}

func (tx *memTx) Get(key []byte) ([]byte, error) {
	if err := tx.check(false); err != nil {
		return nil, err
	}
	i, ok := tx.find(key)
	if !ok {
		return nil, nil
	}
	return cloneBytes(tx.items[i].value), nil
}

func (tx *memTx) Set(key, value []byte) error {
	if err := tx.check(true); err != nil {
		return err
	}
	kv := memKV{key: slices.Clone(key), value: slices.Clone(value)}
	if kv.value == nil {
		kv.value = []byte{}
	}
	i, ok := tx.find(key)
	if ok {
		tx.items[i] = kv
	} else {
		tx.items = slices.Insert(tx.items, i, kv)
	}
	return nil
}

func (tx *memTx) Clear(key []byte) error {
	if err := tx.check(true); err != nil {
		return err
	}
	if i, ok := tx.find(key); ok {
		tx.items = slices.Delete(tx.items, i, i+1)
	}
	return nil
}

func (tx *memTx) ClearRange(begin, end []byte) error {
	if err := tx.check(true); err != nil {
		return err
	}
	i, _ := tx.find(begin)
	j, _ := tx.find(end)
	if i < j {
		tx.items = slices.Delete(tx.items, i, j)
	}
	return nil
}

func (tx *memTx) Cursor() Cursor {
	return &memCursor{tx: tx, pos: -1}
}

type memCursor struct {
	tx  *memTx
	pos int
}

func (c *memCursor) at(pos int) ([]byte, []byte) {
	items := c.tx.items
	if pos < 0 {
		c.pos = -1
		return nil, nil
	}
	if pos >= len(items) {
		c.pos = len(items)
		return nil, nil
	}
	c.pos = pos
	return items[pos].key, items[pos].value
}

func (c *memCursor) First() ([]byte, []byte) {
	return c.at(0)
}

func (c *memCursor) Last() ([]byte, []byte) {
	return c.at(len(c.tx.items) - 1)
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	i, _ := c.tx.find(seek)
	return c.at(i)
}

func (c *memCursor) Next() ([]byte, []byte) {
	return c.at(c.pos + 1)
}

func (c *memCursor) Prev() ([]byte, []byte) {
	if c.pos < 0 {
		return nil, nil
	}
	return c.at(c.pos - 1)
}

func (c *memCursor) Close() error {
	return nil
}
