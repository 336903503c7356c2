package connector

import "errors"

var (
	ErrConnectorNotFound = errors.New("connector not found")
	ErrPushNotSupported  = errors.New("connector does not support push")
	ErrNoCapability      = errors.New("connector implements neither accounting nor bank capability")
	ErrAlreadyRegistered = errors.New("connector already registered")
)

// FatalError marks a failure that no amount of retrying will fix.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as non-retryable. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err, or anything it wraps, is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
