package router

import (
	"time"

	"github.com/rickgao/marketstream/internal/buffer"
	"github.com/rickgao/marketstream/internal/event"
)

// RouterConfig holds configuration for the Message Router.
type RouterConfig struct {
	InputSize int // Default: 10000

	// Initial output buffer sizes
	TradeBufferSize     int // Default: 1000
	QuoteBufferSize     int // Default: 5000
	AggregateBufferSize int // Default: 1000

	// MaxBufferSize caps each output buffer; beyond it the oldest item is
	// dropped. 0 = unbounded.
	MaxBufferSize int // Default: 1000000
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		InputSize:           10000,
		TradeBufferSize:     1000,
		QuoteBufferSize:     5000,
		AggregateBufferSize: 1000,
		MaxBufferSize:       1000000,
	}
}

// RouterBuffers provides access to output buffers for writers.
type RouterBuffers struct {
	Trade     *buffer.Growable[TradeMsg]
	Quote     *buffer.Growable[QuoteMsg]
	Aggregate *buffer.Growable[AggregateMsg]
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	MessagesRouted   int64
	MessagesSkipped  int64 // categories with no writer
	InputDropped     int64 // input channel full or router stopped
	BufferDropped    int64 // output buffer closed or evicted at MaxBufferSize
	TradeBuffer      buffer.Stats
	QuoteBuffer      buffer.Stats
	AggregateBuffer  buffer.Stats
}

// Dropped is the total number of messages lost anywhere in the router.
func (s RouterStats) Dropped() int64 {
	return s.InputDropped + s.BufferDropped
}

// TradeMsg is a trade routed to the trade writer.
type TradeMsg struct {
	Market     string
	ReceivedAt time.Time
	Trade      event.Trade
}

// QuoteMsg is a quote routed to the quote writer.
type QuoteMsg struct {
	Market     string
	ReceivedAt time.Time
	Quote      event.Quote
}

// AggregateMsg is a minute or second bar routed to the aggregate writer.
type AggregateMsg struct {
	Market     string
	ReceivedAt time.Time
	Aggregate  event.Aggregate
}
