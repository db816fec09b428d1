package fowl

import (
	"github.com/andreyvit/fowl/tuple"
)

// Remove deletes everything stored at and under path.
//
// Index entries of removed documents are only deleted when
// Options.IndexCleanup is set.
func (tx *Tx) Remove(path KeyPath) *Future[struct{}] {
	return enqueue(tx, "remove", path, func() (struct{}, error) {
		return struct{}{}, tx.remove(path)
	})
}

func (tx *Tx) remove(path KeyPath) error {
	if err := checkPath(path); err != nil {
		return err
	}
	var enclosing []indexTarget
	if tx.db.indexCleanup {
		var err error
		if enclosing, err = tx.unindexPath(path); err != nil {
			return err
		}
	} else {
		enclosing = tx.meta.enclosingTargets(path)
	}
	k := path.Pack()
	b, e := tuple.PrefixRange(k)
	if err := tx.etx.ClearRange(b, e); err != nil {
		return storeErr(ErrStoreOperationFailed, path, nil, err)
	}
	if err := tx.etx.Clear(k); err != nil {
		return storeErr(ErrStoreOperationFailed, path, nil, err)
	}
	if err := tx.reindexEnclosing(enclosing); err != nil {
		return err
	}
	tx.recordChange(ChangeRemove, path, nil)
	return nil
}
