package fowl

import (
	"bytes"

	"github.com/sirupsen/logrus"

	"github.com/andreyvit/fowl/tuple"
)

const (
	debugLogScans = false
)

// RangeCursor iterates forward over the keys between two key selectors.
// Selectors are resolved on the first call to Next; iteration is lazy and
// happens once.
type RangeCursor struct {
	begin, end KeySelector
	cur        Cursor
	logger     logrus.FieldLogger
	endPos     position
	k, v       []byte
	init       bool
	done       bool
	closed     bool
}

// getRange returns a cursor over [begin, end). The cursor holds the
// transaction's only cursor until closed.
func getRange(tx EngineTx, begin, end KeySelector, logger logrus.FieldLogger) *RangeCursor {
	return &RangeCursor{begin: begin, end: end, cur: tx.Cursor(), logger: logger}
}

// prefixRange covers every key strictly extending the given path.
func prefixRange(tx EngineTx, path KeyPath, logger logrus.FieldLogger) *RangeCursor {
	b, e := tuple.Range(path.Tuple())
	return getRange(tx, FirstGreaterOrEqual(b), FirstGreaterOrEqual(e), logger)
}

func (c *RangeCursor) start() ([]byte, []byte) {
	c.endPos = c.end.resolve(c.cur)
	if c.endPos.state == beforeFirst {
		return nil, nil
	}
	beginPos := c.begin.resolve(c.cur)
	if debugLogScans {
		c.logger.WithFields(logrus.Fields{"begin": c.begin.String(), "end": c.end.String(), "from": beginPos.String(), "to": c.endPos.String()}).Debug("range resolved")
	}
	var k, v []byte
	switch beginPos.state {
	case pastEnd:
		return nil, nil
	case beforeFirst:
		k, v = c.cur.First()
	default:
		k, v = c.cur.Seek(beginPos.key)
	}
	return c.bound(k, v)
}

func (c *RangeCursor) bound(k, v []byte) ([]byte, []byte) {
	if k == nil {
		return nil, nil
	}
	if c.endPos.state == atKey && bytes.Compare(k, c.endPos.key) >= 0 {
		return nil, nil
	}
	return k, v
}

func (c *RangeCursor) Next() bool {
	if c.done {
		return false
	}
	if c.init {
		c.k, c.v = c.bound(c.cur.Next())
	} else {
		c.init = true
		c.k, c.v = c.start()
	}
	if debugLogScans && c.k != nil {
		c.logger.WithFields(logrus.Fields{"key": hexstr(c.k), "val": hexstr(c.v)}).Debug("range item")
	}
	if c.k == nil {
		c.done = true
	}
	return c.k != nil
}

func (c *RangeCursor) Key() []byte   { return c.k }
func (c *RangeCursor) Value() []byte { return c.v }

// Close releases the underlying cursor and returns any error it encountered.
func (c *RangeCursor) Close() error {
	c.done = true
	if c.closed {
		return nil
	}
	c.closed = true
	return c.cur.Close()
}
