// Package service holds the use cases behind the HTTP surface: account flows,
// saving and deleting analyzed resources, and browsing what was saved.
package service

import "errors"

var (
	ErrUnauthenticated = errors.New("you must be signed in")
	ErrIDRequired      = errors.New("id is required")
	ErrNotFound        = errors.New("document not found")
)
