package zarr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a Store when a key holds no value
	ErrNotFound = errors.New("not found")

	// ErrParse indicates bytes that are not well-formed JSON text
	ErrParse = errors.New("malformed metadata document")

	// ErrSchemaMismatch indicates a value whose shape disagrees with the
	// type it is being decoded into
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrContainsArrayAndGroup indicates that both .zarray and .zgroup
	// documents exist at the same path. Only one may be present; the store
	// needs manual repair.
	ErrContainsArrayAndGroup = errors.New("array and group metadata documents (.zarray and .zgroup) both found")

	// ErrNodeNotFound indicates that no metadata document for the requested
	// node exists at a path
	ErrNodeNotFound = errors.New("node not found")

	// ErrNodeTypeMismatch indicates a document declaring a different node
	// type than the caller asked for
	ErrNodeTypeMismatch = errors.New("unexpected node type")

	// ErrInvalidConfiguration indicates a chunk key encoding or codec built
	// from unsupported parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidChunkKey indicates a store key that a chunk key encoding
	// cannot turn back into coordinates
	ErrInvalidChunkKey = errors.New("invalid chunk key")

	// ErrReadOnly indicates a write through a node opened in ModeRead
	ErrReadOnly = errors.New("node is read only")

	// ErrExists indicates a create in ModeWriteFail over an existing node
	ErrExists = errors.New("node already exists")
)

// DecodeError describes a value that could not be decoded into a target
// type. It always matches ErrSchemaMismatch with errors.Is.
type DecodeError struct {
	// Type names the target type
	Type string
	// Value is the offending input value
	Value any
	// Reason is a short description of the mismatch
	Reason string
	// Field is the record field path being decoded, if any
	Field string
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decoding %s field %q: %s (got %s)", e.Type, e.Field, e.Reason, describe(e.Value))
	}
	return fmt.Sprintf("decoding %s: %s (got %s)", e.Type, e.Reason, describe(e.Value))
}

func (e *DecodeError) Unwrap() error { return ErrSchemaMismatch }

func mismatch(typ string, v any, format string, args ...any) *DecodeError {
	return &DecodeError{Type: typ, Value: v, Reason: fmt.Sprintf(format, args...)}
}

// inField prefixes the field path of a decode error with name, so errors
// from nested records read as "codecs.0.configuration".
func inField(err error, name string) error {
	var de *DecodeError
	if !errors.As(err, &de) {
		return err
	}
	cp := *de
	if cp.Field == "" {
		cp.Field = name
	} else {
		cp.Field = name + "." + cp.Field
	}
	return &cp
}

func describe(v any) string {
	const max = 64
	s := fmt.Sprintf("%T %v", v, v)
	if v == nil {
		s = "null"
	}
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
