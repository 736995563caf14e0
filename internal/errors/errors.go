// Package errors defines the sentinel errors shared by the credential
// issuance and validation packages. HTTP handlers map these onto the
// public error taxonomy; nothing below the handlers writes responses.
package errors

import "errors"

// Caller errors.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Registry errors.
var (
	ErrClientNotFound = errors.New("oauth client not found")
	ErrClientExists   = errors.New("oauth client already exists")
	ErrUserNotFound   = errors.New("user not found")
)

// ErrConfiguration marks startup configuration that must stop the process.
var ErrConfiguration = errors.New("invalid configuration")
