package chain

import (
	"errors"
	"fmt"
)

// RejectCode is the machine readable reason a transaction or block was
// rejected.
type RejectCode uint8

// Set of reject codes.
const (
	RejectMalformed       RejectCode = 0x01
	RejectInvalid         RejectCode = 0x10
	RejectObsolete        RejectCode = 0x11
	RejectDuplicate       RejectCode = 0x12
	RejectNonstandard     RejectCode = 0x40
	RejectDust            RejectCode = 0x41
	RejectInsufficientFee RejectCode = 0x42
)

// ValidationError rejects a transaction or a block. It never indicates a
// fault in the node itself.
type ValidationError struct {
	Code   RejectCode
	Reason string
	Msg    string
}

// Reject constructs a validation error.
func Reject(code RejectCode, reason string, format string, args ...any) error {
	return &ValidationError{
		Code:   code,
		Reason: reason,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Reason, ve.Msg)
}

// IsValidationError checks if an error of type ValidationError exists.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GetValidationError returns a copy of the ValidationError pointer.
func GetValidationError(err error) *ValidationError {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	return ve
}

// =============================================================================

// ValidationState collects the rejection raised while checking or
// executing a transaction so callers can report it.
type ValidationState struct {
	rejected *ValidationError
	err      error
}

// Record keeps the first failure reported to the state.
func (vs *ValidationState) Record(err error) {
	if vs == nil || err == nil || vs.err != nil {
		return
	}

	vs.err = err
	vs.rejected = GetValidationError(err)
}

// IsValid reports whether nothing has been recorded.
func (vs *ValidationState) IsValid() bool {
	return vs.err == nil
}

// Err returns the recorded failure.
func (vs *ValidationState) Err() error {
	return vs.err
}

// RejectReason returns the reason string of the recorded rejection.
func (vs *ValidationState) RejectReason() string {
	switch {
	case vs.rejected != nil:
		return vs.rejected.Reason
	case vs.err != nil:
		return "internal-error"
	}
	return ""
}

// RejectCode returns the code of the recorded rejection.
func (vs *ValidationState) RejectCode() RejectCode {
	if vs.rejected == nil {
		return 0
	}
	return vs.rejected.Code
}
