// Package connection implements the feed connection layer.
//
// The Registry:
//   - Holds at most one MarketConn per market, created lazily
//   - Closes every connection on shutdown
//
// Each MarketConn:
//   - Owns one WebSocket transport and its subscription set
//   - Authenticates with a pre-obtained credential
//   - Reconnects with exponential backoff and resubscribes in one frame
//   - Normalizes inbound records and dispatches them to handlers in order
package connection
