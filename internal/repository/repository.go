// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres) inside this directory.
package repository

import "errors"

var (
	// ErrNotFound is returned when no row matches the owner-scoped lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("record already exists")
)
