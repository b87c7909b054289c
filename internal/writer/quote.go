package writer

import (
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/marketstream/internal/buffer"
	"github.com/rickgao/marketstream/internal/metrics"
	"github.com/rickgao/marketstream/internal/router"
)

const insertQuote = `
	INSERT INTO quotes (id, market, symbol, ev, event_ts, received_at,
		bid_price, bid_size, bid_exchange, ask_price, ask_size, ask_exchange, spread)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO NOTHING
`

// QuoteWriter consumes QuoteMsg from the router buffer and writes to the quotes table.
type QuoteWriter struct {
	*batcher[router.QuoteMsg, quoteRow]
}

// NewQuoteWriter creates a new QuoteWriter.
func NewQuoteWriter(
	cfg WriterConfig,
	input *buffer.Growable[router.QuoteMsg],
	db BatchSender,
	m *metrics.Metrics,
	logger *slog.Logger,
) *QuoteWriter {
	return &QuoteWriter{newBatcher("quotes", cfg, input, db, m, logger, transformQuote, queueQuote)}
}

func transformQuote(msg router.QuoteMsg) quoteRow {
	q := msg.Quote
	row := quoteRow{
		Market:      msg.Market,
		Symbol:      q.Symbol,
		Ev:          q.Type,
		EventTs:     q.Timestamp,
		ReceivedAt:  msg.ReceivedAt.UnixMicro(),
		BidPrice:    numeric(q.Bid.Price),
		BidSize:     numeric(q.Bid.Size),
		BidExchange: q.Bid.Venue,
		AskPrice:    numeric(q.Ask.Price),
		AskSize:     numeric(q.Ask.Size),
		AskExchange: q.Ask.Venue,
		Spread:      numeric(q.Spread),
	}
	row.ID = rowID(msg.Market, q.Type, q.Symbol, itoa(q.Timestamp), row.BidPrice, row.BidSize, row.AskPrice, row.AskSize)
	return row
}

func queueQuote(b *pgx.Batch, r quoteRow) {
	b.Queue(insertQuote,
		r.ID, r.Market, r.Symbol, r.Ev, r.EventTs, r.ReceivedAt,
		r.BidPrice, r.BidSize, r.BidExchange, r.AskPrice, r.AskSize, r.AskExchange, r.Spread,
	)
}
