package fowl

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var boltBucketName = []byte("fowl")

type boltEngine struct {
	bdb *bbolt.DB
}

// OpenBolt opens (creating if needed) a Bolt database file. All keys live in
// a single bucket.
func OpenBolt(path string, opt EngineOptions) (Engine, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("fowl: bolt: %w", err)
	}
	err = bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(boltBucketName)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("fowl: bolt: %w", err)
	}
	return &boltEngine{bdb: bdb}, nil
}

// Bolt returns the underlying database handle.
func (s *boltEngine) Bolt() *bbolt.DB {
	return s.bdb
}

func (s *boltEngine) RunAtomic(ctx context.Context, fn func(tx EngineTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		return fn(&boltTx{b: btx.Bucket(boltBucketName)})
	})
}

func (s *boltEngine) View(ctx context.Context, fn func(tx EngineTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.bdb.View(func(btx *bbolt.Tx) error {
		return fn(&boltTx{b: btx.Bucket(boltBucketName)})
	})
}

func (s *boltEngine) Close() error {
	return s.bdb.Close()
}

type boltTx struct {
	b *bbolt.Bucket
}

func (tx *boltTx) Get(key []byte) ([]byte, error) {
	return cloneBytes(tx.b.Get(key)), nil
}

func (tx *boltTx) Set(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return tx.b.Put(key, value)
}

func (tx *boltTx) Clear(key []byte) error {
	return tx.b.Delete(key)
}

func (tx *boltTx) ClearRange(begin, end []byte) error {
	// deleting while iterating makes bbolt cursors skip keys
	var keys [][]byte
	c := tx.b.Cursor()
	for k, _ := c.Seek(begin); k != nil && bytes.Compare(k, end) < 0; k, _ = c.Next() {
		keys = append(keys, cloneBytes(k))
	}
	for _, k := range keys {
		if err := tx.b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (tx *boltTx) Cursor() Cursor {
	return boltCursor{c: tx.b.Cursor()}
}

type boltCursor struct {
	c *bbolt.Cursor
}

func (c boltCursor) First() ([]byte, []byte) { return c.c.First() }

func (c boltCursor) Last() ([]byte, []byte) { return c.c.Last() }

func (c boltCursor) Seek(seek []byte) ([]byte, []byte) { return c.c.Seek(seek) }

func (c boltCursor) Next() ([]byte, []byte) { return c.c.Next() }

func (c boltCursor) Prev() ([]byte, []byte) { return c.c.Prev() }

func (c boltCursor) Close() error { return nil }
