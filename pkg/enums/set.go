// Package enums holds the string enums stored in Postgres and carried on the wire.
package enums

import (
	"fmt"
	"slices"
)

// set lists every legal value of a string enum.
type set[T ~string] []T

func (s set[T]) has(v T) bool {
	return slices.Contains(s, v)
}

func (s set[T]) parse(raw, what string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", what, raw)
}
