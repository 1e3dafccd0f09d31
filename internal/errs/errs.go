// Package errs defines the wallet engine's error taxonomy.
//
// Sentinels are matched with errors.Is, typed errors with errors.As.
// Helper errors from lower layers are wrapped into CardanoError unless
// they already carry a domain error, which passes through untouched.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState reports a failed integrity check. Always fatal to restore.
	ErrInvalidState = errors.New("invalid wallet state")

	// ErrInsufficientFunds reports that no input selection covers outputs plus fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNoChangeAddress reports an internal chain without an unused address.
	ErrNoChangeAddress = errors.New("no change address available")

	// ErrUnrecognizedUtxo reports an input whose address neither chain owns.
	ErrUnrecognizedUtxo = errors.New("unrecognized utxo")

	// ErrInvalidSignRequest reports a sign request the signer cannot handle.
	ErrInvalidSignRequest = errors.New("invalid sign request")

	// ErrWrongPassword reports a vault decryption failure.
	ErrWrongPassword = errors.New("wrong password")

	// ErrHardwareRejected reports a user or device refusal, including cancellation.
	ErrHardwareRejected = errors.New("hardware wallet rejected request")

	// ErrDeviceError reports a device transport or protocol failure.
	ErrDeviceError = errors.New("hardware device error")
)

var domain = []error{
	ErrInvalidState,
	ErrInsufficientFunds,
	ErrNoChangeAddress,
	ErrUnrecognizedUtxo,
	ErrInvalidSignRequest,
	ErrWrongPassword,
	ErrHardwareRejected,
	ErrDeviceError,
}

// NetworkError reports a transport failure talking to the backend:
// the request may not have reached the server.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error (%s): %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError reports a non-2xx response from the backend.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api error (%s): status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("api error (%s): status %d: %s", e.Op, e.Status, e.Body)
}

// CardanoError wraps an unexpected lower-level fault (codec, crypto).
type CardanoError struct {
	Op  string
	Err error
}

func (e *CardanoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CardanoError) Unwrap() error { return e.Err }

// IsDomain reports whether err already carries a recognized domain error.
func IsDomain(err error) bool {
	if err == nil {
		return false
	}
	for _, d := range domain {
		if errors.Is(err, d) {
			return true
		}
	}
	var (
		ne *NetworkError
		ae *APIError
		ce *CardanoError
	)
	return errors.As(err, &ne) || errors.As(err, &ae) || errors.As(err, &ce)
}

// Wrap returns err unchanged if it is nil or a domain error,
// otherwise wraps it into a CardanoError tagged with op.
func Wrap(err error, op string) error {
	if err == nil || IsDomain(err) {
		return err
	}
	return &CardanoError{Op: op, Err: err}
}

// InvalidState builds an ErrInvalidState with context.
func InvalidState(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether a backend failure may succeed on retry.
// Transport failures and 5xx responses qualify; 4xx responses do not.
func IsRetryable(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status >= 500
	}
	return false
}
