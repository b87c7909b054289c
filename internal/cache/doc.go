// Package cache mirrors normalized events into Redis: the latest event per
// market, category and symbol is kept under a key with a TTL, and every
// event is published on a per-category channel for downstream subscribers.
package cache
