package vault

import "errors"

var (
	// ErrNotInitialized indicates no vault meta row exists yet.
	ErrNotInitialized = errors.New("vault is not initialized")
	// ErrAlreadyInitialized indicates Create was called on an existing vault.
	ErrAlreadyInitialized = errors.New("vault already exists")
	// ErrLocked indicates the operation needs an unlocked vault.
	ErrLocked = errors.New("vault is locked")
	// ErrAuthenticationFailed indicates the master password is wrong. By
	// design it is indistinguishable from a tampered verifier.
	ErrAuthenticationFailed = errors.New("master password incorrect")
)
