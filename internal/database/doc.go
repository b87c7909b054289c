// Package database provides the TimescaleDB connection pool and schema.
//
// Tables (hypertables when the timescaledb extension is present):
//   - trades: one row per execution
//   - quotes: top-of-book updates
//   - aggregates: minute and second bars
//
// Every table is keyed by a name-based UUID so rows replayed after a
// reconnect insert once.
package database
