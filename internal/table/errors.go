package table

import "errors"

// ErrRowDeleted is returned by Get/Update/Delete against a RowID whose
// slot is already tombstoned.
var ErrRowDeleted = errors.New("table: row already deleted")
