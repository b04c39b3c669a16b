// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package concurrent provides small thread-safe generic data structures
// shared across kflow's packages.
package concurrent

import "sync"

// Cache is a thread-safe, lazily-populated map keyed by a comparable type.
// serde.Registry uses it to cache one codec per (optionsType, messageType)
// pair so that reflection-based codec construction happens at most once per
// key.
type Cache[K comparable, V any] struct {
	mu   sync.Mutex
	data map[K]V
}

// NewCache returns an empty Cache.
func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		data: make(map[K]V),
	}
}

// Get returns the cached value for k, if any.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.data[k]
	return v, ok
}

// GetOr returns the cached value for k, computing and storing it via f on
// a miss. Once f succeeds for a key it is not called again for that key;
// an error from f is returned and nothing is stored, so a later call
// retries. A concurrent miss for the same key blocks behind the cache's
// lock rather than racing to compute twice.
func (c *Cache[K, V]) GetOr(k K, f func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.data[k]
	if ok {
		return v, nil
	}

	v, err := f()
	if err != nil {
		return v, err
	}

	c.data[k] = v
	return v, nil
}
