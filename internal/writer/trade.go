package writer

import (
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/marketstream/internal/buffer"
	"github.com/rickgao/marketstream/internal/metrics"
	"github.com/rickgao/marketstream/internal/router"
)

const insertTrade = `
	INSERT INTO trades (id, market, symbol, ev, event_ts, received_at, price, size, exchange_id, conditions, trade_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO NOTHING
`

// TradeWriter consumes TradeMsg from the router buffer and writes to the trades table.
type TradeWriter struct {
	*batcher[router.TradeMsg, tradeRow]
}

// NewTradeWriter creates a new TradeWriter.
func NewTradeWriter(
	cfg WriterConfig,
	input *buffer.Growable[router.TradeMsg],
	db BatchSender,
	m *metrics.Metrics,
	logger *slog.Logger,
) *TradeWriter {
	return &TradeWriter{newBatcher("trades", cfg, input, db, m, logger, transformTrade, queueTrade)}
}

func transformTrade(msg router.TradeMsg) tradeRow {
	tr := msg.Trade
	return tradeRow{
		ID:         rowID(msg.Market, tr.Type, tr.Symbol, tr.TradeID, itoa(tr.Timestamp), numeric(tr.Price), numeric(tr.Size)),
		Market:     msg.Market,
		Symbol:     tr.Symbol,
		Ev:         tr.Type,
		EventTs:    tr.Timestamp,
		ReceivedAt: msg.ReceivedAt.UnixMicro(),
		Price:      numeric(tr.Price),
		Size:       numeric(tr.Size),
		ExchangeID: tr.Venue,
		Conditions: tr.Conditions,
		TradeID:    tr.TradeID,
	}
}

func queueTrade(b *pgx.Batch, r tradeRow) {
	b.Queue(insertTrade,
		r.ID, r.Market, r.Symbol, r.Ev, r.EventTs, r.ReceivedAt,
		r.Price, r.Size, r.ExchangeID, r.Conditions, r.TradeID,
	)
}
