package fowl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andreyvit/fowl/tuple"
)

var (
	ErrTransactionCommitted = errors.New("transaction already committed")
	ErrAborted              = errors.New("transaction aborted")
	ErrPending              = errors.New("future not resolved yet")
	ErrEmptyPath            = errors.New("empty key path")
	ErrUnsupportedOperator  = errors.New("unsupported query operator")

	ErrIndexReadFailed      = errors.New("index read failed")
	ErrIndexWriteFailed     = errors.New("index write failed")
	ErrStoreOperationFailed = errors.New("store operation failed")

	ErrUnsupportedType = errors.New("unsupported type")
	ErrUnknownTag      = errors.New("unknown type tag")
)

// CodecError is returned when a value cannot be encoded or decoded. It wraps
// ErrUnsupportedType or ErrUnknownTag, or the underlying decoding error.
type CodecError struct {
	Data  []byte
	Value any
	Msg   string
	Err   error
}

func codecErrf(data []byte, value any, err error, format string, args ...any) error {
	return &CodecError{data, value, fmt.Sprintf(format, args...), err}
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

func (e *CodecError) Error() string {
	var buf strings.Builder
	buf.WriteString("codec: ")
	buf.WriteString(e.Msg)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	if e.Data != nil {
		fmt.Fprintf(&buf, ": (%d) %x", len(e.Data), e.Data)
	}
	return buf.String()
}

// StoreError describes a failed interaction with the underlying engine. Kind
// is one of ErrIndexReadFailed, ErrIndexWriteFailed, ErrStoreOperationFailed,
// so callers can test it with errors.Is.
type StoreError struct {
	Kind error
	Path KeyPath
	Key  []byte
	Err  error
}

func storeErr(kind error, path KeyPath, key []byte, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{kind, path, key, err}
}

func (e *StoreError) Is(target error) bool {
	return target == e.Kind
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Kind.Error())
	if e.Path != nil {
		buf.WriteString(" at ")
		buf.WriteString(e.Path.String())
	} else if e.Key != nil {
		if t, err := tuple.Unpack(e.Key); err == nil {
			buf.WriteString(" at ")
			buf.WriteString(t.String())
		} else {
			fmt.Fprintf(&buf, " at %x", e.Key)
		}
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}
