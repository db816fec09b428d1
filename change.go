package fowl

import (
	"fmt"
)

type (
	// Change describes a write made by a committed transaction.
	Change struct {
		op    ChangeOp
		path  KeyPath
		value any
	}

	ChangeOp int
)

const (
	ChangeNone   ChangeOp = 0
	ChangePut    ChangeOp = 1
	ChangeRemove ChangeOp = 2
)

func (chg *Change) Op() ChangeOp {
	return chg.op
}
func (chg *Change) Path() KeyPath {
	return chg.path
}

// Value is the value written by a put, and nil for a remove.
func (chg *Change) Value() any {
	return chg.value
}

func (v ChangeOp) String() string {
	switch v {
	case ChangeNone:
		return "none"
	case ChangePut:
		return "put"
	case ChangeRemove:
		return "remove"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}

// OnChange registers f to be called for every put and remove once the
// transaction has committed, in the order they ran. Nothing is reported for
// an aborted transaction.
func (tx *Tx) OnChange(f func(tx *Tx, chg *Change)) {
	tx.changeHandler = f
}

func (tx *Tx) recordChange(op ChangeOp, path KeyPath, value any) {
	if tx.changeHandler == nil {
		return
	}
	tx.changes = append(tx.changes, &Change{op: op, path: path, value: value})
}

func (tx *Tx) notifyChanges() {
	if tx.changeHandler == nil {
		return
	}
	for _, chg := range tx.changes {
		tx.changeHandler(tx, chg)
	}
	tx.changes = nil
}
