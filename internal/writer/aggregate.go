package writer

import (
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/marketstream/internal/buffer"
	"github.com/rickgao/marketstream/internal/event"
	"github.com/rickgao/marketstream/internal/metrics"
	"github.com/rickgao/marketstream/internal/router"
)

const insertAggregate = `
	INSERT INTO aggregates (id, market, symbol, ev, period, start_ts, end_ts, received_at,
		open, high, low, close, volume, accumulated_volume, vwap)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (id) DO NOTHING
`

// AggregateWriter consumes AggregateMsg from the router buffer and writes
// minute and second bars to the aggregates table.
type AggregateWriter struct {
	*batcher[router.AggregateMsg, aggregateRow]
}

// NewAggregateWriter creates a new AggregateWriter.
func NewAggregateWriter(
	cfg WriterConfig,
	input *buffer.Growable[router.AggregateMsg],
	db BatchSender,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AggregateWriter {
	return &AggregateWriter{newBatcher("aggregates", cfg, input, db, m, logger, transformAggregate, queueAggregate)}
}

func transformAggregate(msg router.AggregateMsg) aggregateRow {
	a := msg.Aggregate
	period := "minute"
	if a.Category() == event.CategoryAggregateSecond {
		period = "second"
	}
	return aggregateRow{
		// A bar is identified by its window; later revisions of the same
		// window are duplicates.
		ID:                rowID(msg.Market, a.Type, a.Symbol, itoa(a.Start), itoa(a.End)),
		Market:            msg.Market,
		Symbol:            a.Symbol,
		Ev:                a.Type,
		Period:            period,
		StartTs:           a.Start,
		EndTs:             a.End,
		ReceivedAt:        msg.ReceivedAt.UnixMicro(),
		Open:              numeric(a.Open),
		High:              numeric(a.High),
		Low:               numeric(a.Low),
		Close:             numeric(a.Close),
		Volume:            numeric(a.Volume),
		AccumulatedVolume: numeric(a.AccumulatedVolume),
		VWAP:              numeric(a.VWAP),
	}
}

func queueAggregate(b *pgx.Batch, r aggregateRow) {
	b.Queue(insertAggregate,
		r.ID, r.Market, r.Symbol, r.Ev, r.Period, r.StartTs, r.EndTs, r.ReceivedAt,
		r.Open, r.High, r.Low, r.Close, r.Volume, r.AccumulatedVolume, r.VWAP,
	)
}
