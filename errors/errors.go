// Package errors is the error package used throughout attackls.
//
// It re-exports github.com/cockroachdb/errors so callers get stack traces,
// wrapping and user hints from a single import, and defines the sentinel
// errors the technique index, configuration and server layers share.
//
//	if err := attack.LoadFile(path); err != nil {
//	    return errors.Wrapf(err, "failed to load dataset %s", path)
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// Hints and details
var (
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	WithDetailf   = crdb.WithDetailf
	GetAllHints   = crdb.GetAllHints
	FlattenHints  = crdb.FlattenHints
	GetAllDetails = crdb.GetAllDetails
)

// Inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Sentinel errors. Wrap them to add context; check with Is.
var (
	// ErrNotFound indicates the requested technique or key does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates a malformed request from a client
	ErrInvalidRequest = New("invalid request")

	// ErrInvalidDataset indicates the ATT&CK dataset could not be decoded
	ErrInvalidDataset = New("invalid dataset")

	// ErrInvalidConfig indicates a configuration value outside its allowed set
	ErrInvalidConfig = New("invalid configuration")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrapf(ErrNotFound, format, args...)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrapf(ErrInvalidRequest, format, args...)
}

// NewInvalidDatasetError marks err as a dataset decoding failure.
func NewInvalidDatasetError(err error, format string, args ...interface{}) error {
	return Mark(Wrapf(err, format, args...), ErrInvalidDataset)
}

// NewInvalidConfigError creates a configuration error carrying a hint for the user.
func NewInvalidConfigError(hint string, format string, args ...interface{}) error {
	return WithHint(Wrapf(ErrInvalidConfig, format, args...), hint)
}
