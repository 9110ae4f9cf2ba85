// Package store persists communities, bills, and items in sqlite.
package store

import "errors"

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")
