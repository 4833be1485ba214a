package errors

import (
	"errors"
	"fmt"
)

// Common error types for the partner SDK
var (
	// Transport errors
	ErrNetwork = errors.New("network request failed")

	// Navigation errors
	ErrInvalidURL = errors.New("invalid url")

	// Device binding errors
	ErrBindingFailure = errors.New("device binding failed")

	// PIN errors
	ErrPinLocked   = errors.New("pin locked")
	ErrPinMismatch = errors.New("pin mismatch")
	ErrPinNotSet   = errors.New("pin not set")

	// Key errors
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidPrivateKey = errors.New("invalid private key")

	// Lifecycle errors
	ErrNotInitialized     = errors.New("library not initialized")
	ErrAlreadyInitialized = errors.New("library already initialized")
	ErrSurfaceClaimed     = errors.New("browser surface already claimed")

	// General errors
	ErrNotFound = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
