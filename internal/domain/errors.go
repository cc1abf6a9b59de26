// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotConnected indicates a send was attempted while the transport
// session was not connected. The frame is dropped; recoverable.
var ErrNotConnected = errors.New("not connected")

// ErrValidation indicates a frame failed schema validation and was dropped.
var ErrValidation = errors.New("validation failed")

// ErrCompletionPending indicates a turn was submitted while the previous
// turn's assistant placeholder is still streaming.
var ErrCompletionPending = errors.New("completion already pending")
