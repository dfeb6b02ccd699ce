// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache stores per-interval extraction results on disk so repeated
// passes over the same code range skip the network. Entries never expire;
// staleness across runs is an accepted tradeoff.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Cache is a directory of one JSON file per interval key ("1-100").
type Cache struct {
	dir string
}

// New creates the cache directory if needed and returns a Cache over it.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, "cache_"+key+".json")
}

// Get returns the cached records for key. ok distinguishes a miss from a
// cached empty result: an interval that was queried and matched nothing is
// a valid entry.
func (c *Cache) Get(key string) (records []map[string]any, ok bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal(data, &records); err != nil {
		// A corrupt entry is treated as a miss; the next Put rewrites it.
		return nil, false
	}
	if records == nil {
		records = []map[string]any{}
	}
	return records, true
}

// Put stores records under key, overwriting any previous entry.
func (c *Cache) Put(key string, records []map[string]any) error {
	if records == nil {
		records = []map[string]any{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	if err := os.WriteFile(c.path(key), data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored interval keys in lexical order.
func (c *Cache) Keys() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "cache_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(strings.TrimPrefix(name, "cache_"), ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	keys, err := c.Keys()
	if err != nil {
		return 0
	}
	return len(keys)
}

// Clear removes every cache entry.
func (c *Cache) Clear() error {
	keys, err := c.Keys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := os.Remove(c.path(key)); err != nil {
			return fmt.Errorf("removing cache entry %s: %w", key, err)
		}
	}
	return nil
}
