// Package view builds per-page read models from a store snapshot:
// conjunctive filtering, a separate stable sort stage and pagination.
package view

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidFilter is returned for filter values that can't be parsed or names that are not defined
var ErrInvalidFilter = errors.New("invalid filter")

// Predicate is a named filter over rows of type T
type Predicate[T any] struct {
	name  string
	parse func(raw string) (func(T) bool, error)
}

// Name returns the filter name
func (p Predicate[T]) Name() string { return p.name }

// Contains matches rows where any of the fields contains the value, case-insensitive
func Contains[T any](name string, fields ...func(T) string) Predicate[T] {
	return Predicate[T]{name: name, parse: func(raw string) (func(T) bool, error) {
		needle := strings.ToLower(raw)
		return func(row T) bool {
			for _, f := range fields {
				if strings.Contains(strings.ToLower(f(row)), needle) {
					return true
				}
			}
			return false
		}, nil
	}}
}

// Equals matches rows where the field equals the value exactly, for enum-like strings
func Equals[T any](name string, field func(T) string) Predicate[T] {
	return Predicate[T]{name: name, parse: func(raw string) (func(T) bool, error) {
		return func(row T) bool { return field(row) == raw }, nil
	}}
}

// EqualsInt matches rows where the numeric field equals the value
func EqualsInt[T any](name string, field func(T) int64) Predicate[T] {
	return Predicate[T]{name: name, parse: func(raw string) (func(T) bool, error) {
		want, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidFilter, name, raw)
		}
		return func(row T) bool { return field(row) == want }, nil
	}}
}

// AtLeast matches rows where the numeric field is greater or equal to the threshold
func AtLeast[T any](name string, field func(T) float64) Predicate[T] {
	return Predicate[T]{name: name, parse: func(raw string) (func(T) bool, error) {
		threshold, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a number, got %q", ErrInvalidFilter, name, raw)
		}
		return func(row T) bool { return field(row) >= threshold }, nil
	}}
}

// Bool matches rows where the boolean field equals the value
func Bool[T any](name string, field func(T) bool) Predicate[T] {
	return Predicate[T]{name: name, parse: func(raw string) (func(T) bool, error) {
		want, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be true or false, got %q", ErrInvalidFilter, name, raw)
		}
		return func(row T) bool { return field(row) == want }, nil
	}}
}

type activeFilter[T any] struct {
	raw   string
	match func(T) bool
}

// FilterSet holds the current values of a fixed set of predicates.
// It owns no data and can be reset at any time.
type FilterSet[T any] struct {
	defs   map[string]Predicate[T]
	order  []string
	active map[string]activeFilter[T]
}

// NewFilterSet defines the predicates available for a view
func NewFilterSet[T any](preds ...Predicate[T]) *FilterSet[T] {
	fs := &FilterSet[T]{defs: map[string]Predicate[T]{}, active: map[string]activeFilter[T]{}}
	for _, p := range preds {
		if _, dup := fs.defs[p.name]; !dup {
			fs.order = append(fs.order, p.name)
		}
		fs.defs[p.name] = p
	}
	return fs
}

// Set assigns a filter value; empty value clears it.
// Returns true if the effective value changed.
func (fs *FilterSet[T]) Set(name, value string) (bool, error) {
	def, ok := fs.defs[name]
	if !ok {
		return false, fmt.Errorf("%w: unknown filter %q", ErrInvalidFilter, name)
	}
	cur, isSet := fs.active[name]
	if value == "" {
		if !isSet {
			return false, nil
		}
		delete(fs.active, name)
		return true, nil
	}
	if isSet && cur.raw == value {
		return false, nil
	}
	match, err := def.parse(value)
	if err != nil {
		return false, err
	}
	fs.active[name] = activeFilter[T]{raw: value, match: match}
	return true, nil
}

// Get returns the current value of a filter, empty if unset
func (fs *FilterSet[T]) Get(name string) string { return fs.active[name].raw }

// Values returns all set filter values
func (fs *FilterSet[T]) Values() map[string]string {
	res := make(map[string]string, len(fs.active))
	for k, v := range fs.active {
		res[k] = v.raw
	}
	return res
}

// Names returns defined filter names in definition order
func (fs *FilterSet[T]) Names() []string {
	res := make([]string, len(fs.order))
	copy(res, fs.order)
	return res
}

// Reset clears all values. Returns true if anything was set.
func (fs *FilterSet[T]) Reset() bool {
	changed := len(fs.active) > 0
	fs.active = map[string]activeFilter[T]{}
	return changed
}

// Match reports whether the row satisfies every set filter
func (fs *FilterSet[T]) Match(row T) bool {
	for _, f := range fs.active {
		if !f.match(row) {
			return false
		}
	}
	return true
}

// Filter returns the rows matching all set filters, preserving order
func (fs *FilterSet[T]) Filter(rows []T) []T {
	res := make([]T, 0, len(rows))
	for _, r := range rows {
		if fs.Match(r) {
			res = append(res, r)
		}
	}
	return res
}

// SortKey is a named ordering of rows
type SortKey[T any] struct {
	Name string
	Less func(a, b T) bool
}

// SortSpec selects a sort key and direction
type SortSpec struct {
	Key  string `json:"key"`
	Desc bool   `json:"desc"`
}

// SortRows sorts rows stably in place; ties keep their relative order in both directions
func SortRows[T any](rows []T, less func(a, b T) bool, desc bool) {
	if less == nil {
		return
	}
	if desc {
		sort.SliceStable(rows, func(i, j int) bool { return less(rows[j], rows[i]) })
		return
	}
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
}
