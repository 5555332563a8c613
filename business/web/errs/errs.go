// Package errs provides the errors handlers return to tell the client why a
// request failed.
package errs

import (
	"errors"

	"github.com/ardanlabs/dpos/foundation/blockchain/chain"
)

// Response is the form used for API responses from failures in the API.
// Rejected transactions and blocks also carry the reject reason and code.
type Response struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Code   uint8  `json:"code,omitempty"`
}

// Trusted is used to pass an error during the request through the
// application with web specific context.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps a provided error with an HTTP status code. This
// function should be used when handlers encounter expected errors.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// FromValidation wraps the error with the status when the chain rejected
// the transaction or block. Any other error is returned as is so it is
// reported as a fault of the node.
func FromValidation(err error, status int) error {
	if !chain.IsValidationError(err) {
		return err
	}
	return &Trusted{err, status}
}

// Error implements the error interface. It uses the default message of the
// wrapped error. This is what will be shown in the services' logs.
func (te *Trusted) Error() string {
	return te.Err.Error()
}

// Unwrap returns the wrapped error.
func (te *Trusted) Unwrap() error {
	return te.Err
}

// Response builds the body sent to the client.
func (te *Trusted) Response() Response {
	resp := Response{
		Error: te.Err.Error(),
	}

	if ve := chain.GetValidationError(te.Err); ve != nil {
		resp.Reason = ve.Reason
		resp.Code = uint8(ve.Code)
	}

	return resp
}

// IsTrusted checks if an error of type Trusted exists.
func IsTrusted(err error) bool {
	var te *Trusted
	return errors.As(err, &te)
}

// GetTrusted returns a copy of the Trusted pointer.
func GetTrusted(err error) *Trusted {
	var te *Trusted
	if !errors.As(err, &te) {
		return nil
	}
	return te
}
