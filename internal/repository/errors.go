package repository

import "errors"

// ErrNotFound is returned when a requested record does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness
// constraint. The reconciliation core relies on it to detect lost
// races between concurrent notification deliveries.
var ErrDuplicate = errors.New("duplicate")
