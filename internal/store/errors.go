package store

import "errors"

var (
	ErrNotFound       = errors.New("record not found")
	ErrIDOutOfOrder   = errors.New("identifier is not greater than existing identifiers")
	ErrClosed         = errors.New("store is closed")
	ErrUnknownDialect = errors.New("unknown sql dialect")
)
