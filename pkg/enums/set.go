package enums

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownValue is wrapped by every Parse* failure.
var ErrUnknownValue = errors.New("unknown enum value")

// set is the closed list of values a string enum accepts, in declaration order.
type set[T ~string] struct {
	kind   string
	values []T
}

func newSet[T ~string](kind string, values ...T) set[T] {
	return set[T]{kind: kind, values: values}
}

func (s set[T]) has(v T) bool {
	return slices.Contains(s.values, v)
}

func (s set[T]) parse(raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s %q", ErrUnknownValue, s.kind, raw)
}

func (s set[T]) all() []T {
	return slices.Clone(s.values)
}
