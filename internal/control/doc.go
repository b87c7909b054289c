// Package control serves the HTTP API used to inspect and drive feed
// connections at runtime: health, per-market status, connect, subscribe,
// unsubscribe, recent messages and close.
package control
