package accounts

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the login and account operations
var (
	// ErrInvalidCredentials covers both unknown email and wrong password;
	// callers must never reveal which one it was.
	ErrInvalidCredentials = errors.New("accounts: incorrect email or password")

	// ErrSessionConflict means another session is active and force login
	// was not requested.
	ErrSessionConflict = errors.New("accounts: account is already logged in on another device")

	// ErrEmailTaken means the normalized email is already registered.
	ErrEmailTaken = errors.New("accounts: email is already in use")

	// ErrNotFound means the principal does not exist.
	ErrNotFound = errors.New("accounts: principal not found")
)

// CredentialsError is a credential mismatch carrying the remaining-attempt
// count for caller messaging. It matches ErrInvalidCredentials under
// errors.Is.
type CredentialsError struct {
	// Remaining is the number of attempts left before lockout, clamped
	// to zero.
	Remaining int

	// NowLocked is set when this failure triggered the lockout.
	NowLocked bool
}

func (e *CredentialsError) Error() string {
	if e.NowLocked {
		return "accounts: account locked due to too many failed attempts"
	}
	return fmt.Sprintf("accounts: incorrect password, %d attempts remaining", e.Remaining)
}

func (e *CredentialsError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// LockedError is returned while an account lockout is in effect
type LockedError struct {
	// Minutes is the remaining lock time, rounded up.
	Minutes int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("accounts: account is locked, try again in %d minutes", e.Minutes)
}

// InfrastructureError wraps a store or registry failure. These surface as
// retryable 5xx responses, never as an authentication denial.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("accounts: %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}
