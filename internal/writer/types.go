package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: 5 * time.Second,
	}
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// BatchSender is the part of *pgxpool.Pool the writers use.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// tradeRow represents a row to be inserted into the trades table.
type tradeRow struct {
	ID         string
	Market     string
	Symbol     string
	Ev         string
	EventTs    int64 // Milliseconds
	ReceivedAt int64 // Microseconds
	Price      string
	Size       string
	ExchangeID int64
	Conditions []int64
	TradeID    string
}

// quoteRow represents a row for the quotes table.
type quoteRow struct {
	ID          string
	Market      string
	Symbol      string
	Ev          string
	EventTs     int64
	ReceivedAt  int64
	BidPrice    string
	BidSize     string
	BidExchange int64
	AskPrice    string
	AskSize     string
	AskExchange int64
	Spread      string
}

// aggregateRow represents a row for the aggregates table.
type aggregateRow struct {
	ID                string
	Market            string
	Symbol            string
	Ev                string
	Period            string // "minute" or "second"
	StartTs           int64
	EndTs             int64
	ReceivedAt        int64
	Open              string
	High              string
	Low               string
	Close             string
	Volume            string
	AccumulatedVolume string
	VWAP              string
}
