package models

import "errors"

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a concurrent writer already applied the change.
var ErrConflict = errors.New("record changed concurrently")
