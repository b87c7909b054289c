// Package event normalizes raw feed records into typed market events.
//
// Normalize is total: every record maps to exactly one Event, records with an
// unknown or missing "ev" discriminator become Generic. Every event keeps the
// original record for lossless downstream access.
//
// Categories and their discriminators:
//   - Trade: T (stocks, options, futures), XT (crypto)
//   - Quote: Q, XQ (crypto), C (forex)
//   - Aggregate: AM, XA, CA (minute); A, AS, XAS, CAS (second)
//   - IndexValue: V
//   - LimitState: LULD
//   - FairValue: FMV
package event
