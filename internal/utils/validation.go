package utils

import (
	"strings"
)

// Field is a named user-supplied value checked by RequireFields.
type Field struct {
	Name  string
	Value string
}

// RequireFields trims every field and returns ErrEmptyField(cause, name) for the
// first one left empty. On success it returns the trimmed values in order.
func RequireFields(cause error, fields ...Field) ([]string, error) {
	values := make([]string, len(fields))
	for i, f := range fields {
		v := strings.TrimSpace(f.Value)
		if v == "" {
			return nil, ErrEmptyField(cause, f.Name)
		}
		values[i] = v
	}
	return values, nil
}
