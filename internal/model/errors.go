package model

import (
	"errors"
	"fmt"
)

var (
	// ErrHostsNotList is returned when the raw document has a hosts field
	// which is not a sequence. No partial document is returned with it.
	ErrHostsNotList = errors.New("JSON format error: 'hosts' must be a list")
	// ErrUnsupportedFormat is returned by loaders for unknown file types.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// StructuralError reports a caller-level contract violation of the raw
// document, as opposed to per-record gaps which are recovered silently.
type StructuralError struct {
	Field string
	Got   string // kind of the offending value, e.g. "string" or "object"
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s (field %q is %s)", ErrHostsNotList.Error(), e.Field, e.Got)
}

func (e *StructuralError) Unwrap() error {
	return ErrHostsNotList
}
