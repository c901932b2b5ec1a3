// Package hooks implements the HookPipeline (C9): the ordered
// sanitizer-then-validator chain that runs on a record before the
// IntegrityGuard sees it, per §4.9. Only the plug-in contract
// (codec.Sanitizer / codec.Validator) is specified by the engine; this
// package additionally supplies a small reference set of built-ins that
// exercise that contract end to end.
package hooks

import (
	"errors"
	"fmt"

	"github.com/canisterstack/icdb/internal/codec"
)

// ErrSanitizationFailed is the sentinel a Sanitizer wraps its own failure
// in (most built-ins are total and never return it; it exists for the
// plug-in contract per §4.9).
var ErrSanitizationFailed = errors.New("hooks: sanitization failed")

// Apply runs, for a single column value, every sanitizer in declaration
// order (each transforming the value in turn) and then every validator
// in declaration order against the sanitized result. It returns the
// sanitized value so the caller persists the sanitized form, never the
// raw input (§4.9: "the persisted form is the sanitized form").
func Apply(col codec.ColumnDef, v codec.Value) (codec.Value, error) {
	for _, s := range col.Sanitizers {
		sanitized, err := s.Apply(v)
		if err != nil {
			if !errors.Is(err, ErrSanitizationFailed) {
				err = fmt.Errorf("%w: %v", ErrSanitizationFailed, err)
			}
			return codec.Value{}, fmt.Errorf("hooks: column %q sanitizer failed: %w", col.Name, err)
		}
		v = sanitized
	}
	for _, validator := range col.Validators {
		if err := validator.Check(v); err != nil {
			return codec.Value{}, fmt.Errorf("hooks: column %q validation failed: %w", col.Name, err)
		}
	}
	return v, nil
}

// ApplyRecord runs Apply over every column of rec against schema, in
// column order, returning the fully sanitized record. The hook pipeline
// runs before PK/FK checks so that FK lookups compare sanitized keys
// (§4.9).
func ApplyRecord(schema codec.TableSchema, rec codec.Record) (codec.Record, error) {
	if len(rec) != len(schema.Columns) {
		return nil, fmt.Errorf("hooks: record has %d columns, schema %q declares %d", len(rec), schema.Name, len(schema.Columns))
	}
	out := make(codec.Record, len(rec))
	for i, col := range schema.Columns {
		v, err := Apply(col, rec[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
