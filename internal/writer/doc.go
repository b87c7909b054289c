// Package writer implements batch writers for normalized market events.
//
// Writers:
//   - Trade writer (trades table)
//   - Quote writer (quotes table)
//   - Aggregate writer (aggregates table, minute and second bars)
//
// All writers use append-only semantics (never update, only insert). Row ids
// are name-based UUIDs over the event's identifying fields, so an event
// replayed after a reconnect hits ON CONFLICT and is skipped. Prices and
// sizes are written as exact decimal text into NUMERIC columns.
package writer
