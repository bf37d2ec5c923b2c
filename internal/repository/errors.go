// Package repository implements all database queries for invitation
// provisioning and guest submissions.
// It uses pgx directly (no ORM) so that every quota mutation is a single,
// visible SQL statement.
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrQuotaExhausted is returned when the conditional usage increment
// matched no row because the package limit has been reached.
var ErrQuotaExhausted = errors.New("package invitation limit reached")

// ErrUnknownPackage is returned when a tier does not name an active package.
var ErrUnknownPackage = errors.New("unknown or inactive package")

// ErrTierChanged is returned when the conditional usage increment finds the
// user on a different effective tier than the caller checked against, or
// finds the premium purchase already consumed.
var ErrTierChanged = errors.New("package tier changed")
