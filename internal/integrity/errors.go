// Package integrity implements the IntegrityGuard (C8): primary-key
// uniqueness, foreign-key existence, and delete-behavior (Restrict/
// Cascade/Break) enforcement (§4.8). The guard computes what must hold
// or what must change; it never touches a page itself — callers (txn,
// icdb) apply the plans it returns.
package integrity

import "errors"

// ErrPrimaryKeyConflict is returned when an insert or a PK-changing
// update collides with an existing row.
var ErrPrimaryKeyConflict = errors.New("integrity: primary key conflict")

// ErrBrokenForeignKeyReference is returned when a non-null FK column's
// value does not exist in the referenced table.
var ErrBrokenForeignKeyReference = errors.New("integrity: broken foreign key reference")

// ErrForeignKeyConstraintViolation is returned by Restrict when a
// referencing row still exists, or by Break when a referencing row's FK
// column is not nullable.
var ErrForeignKeyConstraintViolation = errors.New("integrity: foreign key constraint violation")
