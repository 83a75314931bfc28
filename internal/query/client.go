// Package query mediates reads and writes against the remote store. Reads are
// cached by key, writes go through Mutate, and Invalidate marks cached reads
// stale so the next Fetch reloads them.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"menu-orders/internal/logger"
)

// InvalidationListener is told about every invalidated key
type InvalidationListener func(key Key)

// Client is the request-state cache shared by all screens of a session
type Client struct {
	cache  Cache
	sfg    singleflight.Group
	logger *logger.Logger

	mu        sync.RWMutex
	listeners []InvalidationListener

	// genMu guards the invalidation generations and in-flight loads
	genMu       sync.Mutex
	gen         uint64
	invalidated map[string]uint64
	inflight    map[string]int
}

func NewClient(cache Cache, log *logger.Logger) *Client {
	return &Client{
		cache:       cache,
		logger:      log,
		invalidated: make(map[string]uint64),
		inflight:    make(map[string]int),
	}
}

// OnInvalidate registers a listener for invalidation signals
func (c *Client) OnInvalidate(fn InvalidationListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Fetch returns the cached value for key, or calls loader and caches its
// result. Concurrent fetches of the same key share one loader call.
func Fetch[T any](ctx context.Context, c *Client, key Key, loader func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	k := key.String()

	v, err, _ := c.sfg.Do(k, func() (interface{}, error) {
		data, err := c.cache.Get(ctx, k)
		if err == nil {
			var cached T
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		} else if !errors.Is(err, ErrCacheMiss) {
			c.logger.Error("cache_get_failed", "Query cache read failed", "", err, map[string]interface{}{
				"key": k,
			})
		}

		start := c.beginLoad(k)
		defer c.endLoad(k)

		fresh, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		if c.invalidatedSince(k, start) {
			c.logger.Debug("query_load_stale", "Key invalidated during load, result not cached", "", map[string]interface{}{
				"key": k,
			})
			return fresh, nil
		}

		if data, err := json.Marshal(fresh); err == nil {
			if err := c.cache.Set(ctx, k, data); err != nil {
				c.logger.Error("cache_set_failed", "Query cache write failed", "", err, map[string]interface{}{
					"key": k,
				})
			}
			// an invalidation may have deleted before this write landed
			if c.invalidatedSince(k, start) {
				if _, err := c.cache.DeletePrefix(ctx, k); err != nil {
					c.logger.Error("cache_invalidate_failed", "Failed to drop stale query", "", err, map[string]interface{}{
						"key": k,
					})
				}
			}
		}
		return fresh, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Mutate runs a write. When it succeeds every key in invalidates is marked
// stale; when it fails nothing is invalidated and the error is returned as is.
func Mutate[T any](ctx context.Context, c *Client, fn func(ctx context.Context) (T, error), invalidates ...Key) (T, error) {
	result, err := fn(ctx)
	if err != nil {
		return result, err
	}

	for _, key := range invalidates {
		if err := c.Invalidate(ctx, key); err != nil {
			c.logger.Error("cache_invalidate_failed", "Failed to invalidate query", "", err, map[string]interface{}{
				"key": key.String(),
			})
		}
	}
	return result, nil
}

// Invalidate marks key and every key nested under it stale. Loads already
// running for those keys do not cache their result, and later fetches do
// not join them.
func (c *Client) Invalidate(ctx context.Context, key Key) error {
	prefix := key.String()

	c.genMu.Lock()
	c.gen++
	c.invalidated[prefix] = c.gen
	for k := range c.inflight {
		if covers(prefix, k) {
			c.sfg.Forget(k)
		}
	}
	c.genMu.Unlock()

	c.mu.RLock()
	listeners := append([]InvalidationListener(nil), c.listeners...)
	c.mu.RUnlock()

	for _, fn := range listeners {
		fn(key)
	}

	removed, err := c.cache.DeletePrefix(ctx, key.String())
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}

	c.logger.Debug("query_invalidated", "Marked cached queries stale", "", map[string]interface{}{
		"key":     key.String(),
		"removed": removed,
	})
	return nil
}

func (c *Client) beginLoad(k string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	c.inflight[k]++
	return c.gen
}

func (c *Client) endLoad(k string) {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.inflight[k]--; c.inflight[k] <= 0 {
		delete(c.inflight, k)
	}
}

// invalidatedSince reports whether an invalidation covering k happened
// after generation start
func (c *Client) invalidatedSince(k string, start uint64) bool {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	for prefix, gen := range c.invalidated {
		if gen > start && covers(prefix, k) {
			return true
		}
	}
	return false
}
