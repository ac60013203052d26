package store

import (
	"strings"
	"sync"
)

// Keyed is a set of stores of one type created on demand, one per key.
// Store names are the set's prefix followed by the key.
type Keyed[T any] struct {
	prefix string

	mu     sync.Mutex
	stores map[string]*Store[T]
}

// NewKeyed makes an empty set naming its stores prefix+key
func NewKeyed[T any](prefix string) *Keyed[T] {
	return &Keyed[T]{prefix: prefix, stores: map[string]*Store[T]{}}
}

// Name returns the domain name of the key's store
func (k *Keyed[T]) Name(key string) string { return k.prefix + key }

// Get returns the store of key, creating it on first use
func (k *Keyed[T]) Get(key string) *Store[T] {
	k.mu.Lock()
	defer k.mu.Unlock()
	if s, ok := k.stores[key]; ok {
		return s
	}
	s := New[T](k.Name(key))
	k.stores[key] = s
	return s
}

// Drop forgets the store of key and closes its watchers.
// A later Get for the same key makes a new store.
func (k *Keyed[T]) Drop(key string) {
	k.mu.Lock()
	s, ok := k.stores[key]
	delete(k.stores, key)
	k.mu.Unlock()
	if ok {
		s.Close()
	}
}

func (k *Keyed[T]) lookup(name string) (Watchable, bool) {
	key, ok := strings.CutPrefix(name, k.prefix)
	if !ok {
		return nil, false
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.stores[key]
	if !ok {
		return nil, false
	}
	return s, true
}

func (k *Keyed[T]) names() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	res := make([]string, 0, len(k.stores))
	for _, s := range k.stores {
		res = append(res, s.Name())
	}
	return res
}
