// Package cache implements the web server's in-memory file cache.
//
// Goals for this package:
//   - Make the core data structures explicit (open-addressed table + LRU list)
//   - Bound memory by payload bytes, never admitting an entry larger than capacity
//   - Evict least recently used entries until a new entry fits
//   - Keep probe chains intact across deletions (tombstones, rebuilt on growth)
//   - Be concurrency-safe, with lookup and recency update under one lock
package cache
