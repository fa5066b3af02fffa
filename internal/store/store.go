// Package store persists conversations, personas, and user budget state in
// PostgreSQL. Reads of long-lived records go through a Redis read-through
// cache; a nil Redis client degrades to database-only.
package store

import "errors"

// ErrNotFound is returned when a persona, user, or conversation does not
// exist or is not visible to the caller.
var ErrNotFound = errors.New("not found")

// ErrInsufficientBudget is returned by Deduct when the user's balance cannot
// cover the amount.
var ErrInsufficientBudget = errors.New("insufficient budget")
