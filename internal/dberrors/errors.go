// Package dberrors defines the sentinel error kinds the storage engine
// surfaces to callers, grouped by the kind of failure they represent.
package dberrors

import "errors"

// NotFound kind.
var (
	ErrTableNotFound     = errors.New("table not found")
	ErrFieldNotFound     = errors.New("field not found")
	ErrTypeNotFound      = errors.New("type not found")
	ErrProcedureNotFound = errors.New("procedure not found")
	ErrRecordNotFound    = errors.New("record not found")
	ErrRelationNotFound  = errors.New("relation not found")
)

// Request kind, for the submission API dispatcher.
var (
	ErrUnknownRequest = errors.New("unknown request name")
	ErrBadRequest     = errors.New("malformed request payload")
)

// AlreadyExists kind.
var (
	ErrTableAlreadyExists = errors.New("table already exists")
	ErrFieldAlreadyExists = errors.New("field already exists")
	ErrAlreadyRegistered  = errors.New("type already registered")
)

// TypeMismatch kind.
var (
	ErrWrongSize        = errors.New("wrong byte size")
	ErrWrongFieldSize   = errors.New("wrong field size")
	ErrWrongFieldCount  = errors.New("wrong field count")
	ErrNotBooleanField  = errors.New("field is not a 1-byte boolean flag")
	ErrSchemaMismatch   = errors.New("registered type does not match stored schema")
)

// Layout kind.
var (
	ErrMisaligned        = errors.New("field offset is misaligned")
	ErrOutOfBounds       = errors.New("field or record out of bounds")
	ErrDuplicateField    = errors.New("duplicate field name")
	ErrRecordSizeMismatch = errors.New("computed record size does not match stored record size")
)

// Capacity kind.
var (
	ErrOverflow             = errors.New("size or offset calculation overflow")
	ErrMemoryLimitExceeded  = errors.New("buffer growth refused: memory limit exceeded")
	ErrWouldExceedLimit     = errors.New("operation would exceed configured limit")
)

// ConcurrencyTerminal kind.
var (
	ErrAlreadyCommitted = errors.New("transaction already committed")
	ErrAlreadyAborted   = errors.New("transaction already aborted")
)

// Persistence kind.
var (
	ErrIOTransient        = errors.New("transient I/O error")
	ErrIOPermanent        = errors.New("permanent I/O error")
	ErrSerialization      = errors.New("serialization error")
	ErrDataCorruption     = errors.New("data corruption: checksum mismatch")
	ErrUnsupportedVersion = errors.New("unsupported file version")
)

// Procedure kind.
var (
	ErrBadParams       = errors.New("bad procedure parameters")
	ErrProcedurePanic  = errors.New("procedure panicked")
	ErrTimeout         = errors.New("procedure call exceeded its time budget")
)

// Backpressure kind.
var (
	ErrQueueFull = errors.New("submission queue at capacity")
)
