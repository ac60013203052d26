package view

import (
	"fmt"
	"sync"
	"time"

	"github.com/kenliao94/amqconsole/pkg/store"
)

// DefaultPageSize is used when a view is created without a page size
const DefaultPageSize = 25

// Pagination is a page window over the filtered and sorted rows
type Pagination struct {
	Index int `json:"pageIndex"`
	Size  int `json:"pageSize"`
}

// Page is the read model produced by a view
type Page[T any] struct {
	Rows          []T        `json:"rows"`
	Total         int        `json:"total"`
	PageIndex     int        `json:"pageIndex"`
	PageSize      int        `json:"pageSize"`
	TotalPages    int        `json:"totalPages"`
	Loading       bool       `json:"loading"`
	Error         string     `json:"error,omitempty"`
	LastUpdatedAt *time.Time `json:"lastUpdatedAt"`
}

// Apply is the pure pipeline: filter, then stable sort, then slice the page window.
// The input slice is not modified.
func Apply[T any](rows []T, filters *FilterSet[T], less func(a, b T) bool, desc bool, p Pagination) Page[T] {
	var filtered []T
	if filters != nil {
		filtered = filters.Filter(rows)
	} else {
		filtered = append([]T(nil), rows...)
	}
	SortRows(filtered, less, desc)

	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Index < 0 {
		p.Index = 0
	}
	res := Page[T]{Total: len(filtered), PageIndex: p.Index, PageSize: p.Size, Rows: []T{}}
	res.TotalPages = len(filtered) / p.Size
	if len(filtered)%p.Size != 0 {
		res.TotalPages++
	}
	// index and size come from clients, compare before multiplying
	if p.Index >= res.TotalPages {
		return res
	}
	start := p.Index * p.Size
	end := len(filtered)
	if len(filtered)-start > p.Size {
		end = start + p.Size
	}
	res.Rows = filtered[start:end]
	return res
}

// View is a filtered, sorted and paginated projection of a store.
// It holds a read reference to the store and owns its filter, sort and page state.
type View[S, T any] struct {
	src      *store.Store[S]
	extract  func(S) []T
	sortKeys map[string]SortKey[T]

	mu      sync.Mutex
	filters *FilterSet[T]
	sort    SortSpec
	page    Pagination
	gen     uint64 // bumped on every filter/sort/page change

	cached    bool
	cachedGen uint64
	cachedVer uint64
	cachedRes Page[T]
}

// New makes a view over src. extract turns a store value into rows.
func New[S, T any](src *store.Store[S], extract func(S) []T, filters *FilterSet[T], keys ...SortKey[T]) *View[S, T] {
	if filters == nil {
		filters = NewFilterSet[T]()
	}
	v := &View[S, T]{
		src:      src,
		extract:  extract,
		filters:  filters,
		sortKeys: map[string]SortKey[T]{},
		page:     Pagination{Size: DefaultPageSize},
	}
	for _, k := range keys {
		v.sortKeys[k.Name] = k
	}
	return v
}

// SetFilter assigns a filter value. The page index resets to 0 only if the value changed.
func (v *View[S, T]) SetFilter(name, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	changed, err := v.filters.Set(name, value)
	if err != nil {
		return err
	}
	if changed {
		v.page.Index = 0
		v.gen++
	}
	return nil
}

// Filter returns the current value of a filter
func (v *View[S, T]) Filter(name string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filters.Get(name)
}

// ResetFilters clears all filter values; the store is not touched
func (v *View[S, T]) ResetFilters() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.filters.Reset() {
		v.page.Index = 0
		v.gen++
	}
}

// SortBy selects the sort key; empty key restores store order
func (v *View[S, T]) SortBy(key string, desc bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if key != "" {
		if _, ok := v.sortKeys[key]; !ok {
			return fmt.Errorf("%w: unknown sort key %q", ErrInvalidFilter, key)
		}
	}
	spec := SortSpec{Key: key, Desc: desc}
	if spec != v.sort {
		v.sort = spec
		v.gen++
	}
	return nil
}

// SetPage moves the page window
func (v *View[S, T]) SetPage(index int) {
	if index < 0 {
		index = 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if index != v.page.Index {
		v.page.Index = index
		v.gen++
	}
}

// SetPageSize changes the page size and resets the page index to 0 if the size changed
func (v *View[S, T]) SetPageSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: page size must be positive, got %d", ErrInvalidFilter, size)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if size != v.page.Size {
		v.page = Pagination{Index: 0, Size: size}
		v.gen++
	}
	return nil
}

// Pagination returns the current page window
func (v *View[S, T]) Pagination() Pagination {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page
}

// Rows returns the current page, recomputed only if the store or view state changed since the last call
func (v *View[S, T]) Rows() Page[T] {
	entry := v.src.Read()

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.cached || v.cachedGen != v.gen || v.cachedVer != entry.Version {
		var rows []T
		if entry.Value != nil {
			rows = v.extract(*entry.Value)
		}
		var less func(a, b T) bool
		if k, ok := v.sortKeys[v.sort.Key]; ok {
			less = k.Less
		}
		v.cachedRes = Apply(rows, v.filters, less, v.sort.Desc, v.page)
		v.cachedGen, v.cachedVer, v.cached = v.gen, entry.Version, true
	}

	res := v.cachedRes
	res.Loading = entry.IsLoading
	res.Error = entry.Error
	res.LastUpdatedAt = entry.LastUpdatedAt
	return res
}
