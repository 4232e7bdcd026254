// Package repository defines error types for the counter store.  Each
// sentinel marks the step that failed so handlers can pick a diagnostic with
// errors.Is; the driver error is wrapped alongside it.
package repository

import "errors"

// ErrSchemaCreateFailed is returned when the counter table or its seed row
// could not be created and the store could not fall back to an existing one.
var ErrSchemaCreateFailed = errors.New("schema create failed")

// ErrUpdateFailed is returned when the atomic increment did not commit.
var ErrUpdateFailed = errors.New("update failed")

// ErrReadFailed is returned when the current value could not be read.
var ErrReadFailed = errors.New("read failed")
