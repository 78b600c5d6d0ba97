// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyRunning indicates a second run was requested for a competition
// that is already in flight.
var ErrAlreadyRunning = errors.New("competition is already running")

// ErrCompleted indicates a terminal competition was handed to the runner again.
var ErrCompleted = errors.New("competition is already completed")
