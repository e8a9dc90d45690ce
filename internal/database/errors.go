package database

import "errors"

var (
	// ErrNotFound is returned when a requested route does not exist
	ErrNotFound = errors.New("route not found")
	// ErrInvalidID is returned for identifiers that are not route UUIDs
	ErrInvalidID = errors.New("invalid route id")
)
