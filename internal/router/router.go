package router

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/marketstream/internal/buffer"
	"github.com/rickgao/marketstream/internal/connection"
	"github.com/rickgao/marketstream/internal/event"
	"github.com/rickgao/marketstream/internal/metrics"
)

// Router receives normalized events from feed connections and routes them
// to per-category buffers consumed by the writers.
type Router interface {
	// Start begins routing messages from the input channel to buffers.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router and closes its buffers.
	Stop(ctx context.Context) error

	// Handle queues a message without blocking. It is registered as a
	// connection handler.
	Handle(msg connection.Message) error

	// Buffers returns output buffers for writers to consume.
	Buffers() RouterBuffers

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	cfg     RouterConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	input   chan connection.Message
	stopped atomic.Bool

	// Output to Writers (growable buffers)
	tradeBuf     *buffer.Growable[TradeMsg]
	quoteBuf     *buffer.Growable[QuoteMsg]
	aggregateBuf *buffer.Growable[AggregateMsg]

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	received atomic.Int64
	routed   atomic.Int64
	skipped  atomic.Int64
	dropped  atomic.Int64

	// messages routed to a closed output buffer
	unrouted atomic.Int64
}

// NewRouter creates a new Message Router.
func NewRouter(cfg RouterConfig, m *metrics.Metrics, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultRouterConfig().InputSize
	}

	return &router{
		cfg:          cfg,
		logger:       logger,
		metrics:      m,
		input:        make(chan connection.Message, cfg.InputSize),
		tradeBuf:     buffer.NewGrowable[TradeMsg](cfg.TradeBufferSize, cfg.MaxBufferSize),
		quoteBuf:     buffer.NewGrowable[QuoteMsg](cfg.QuoteBufferSize, cfg.MaxBufferSize),
		aggregateBuf: buffer.NewGrowable[AggregateMsg](cfg.AggregateBufferSize, cfg.MaxBufferSize),
	}
}

// Start begins routing messages.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("message router started",
		"input", r.cfg.InputSize,
		"trade_buffer", r.cfg.TradeBufferSize,
		"quote_buffer", r.cfg.QuoteBufferSize,
		"aggregate_buffer", r.cfg.AggregateBufferSize,
	)

	return nil
}

// Stop gracefully shuts down the router. Messages already queued are routed
// before the buffers close.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping message router")
	r.stopped.Store(true)

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("message router stopped")
	case <-ctx.Done():
		r.logger.Warn("message router stop timed out")
	}

	r.tradeBuf.Close()
	r.quoteBuf.Close()
	r.aggregateBuf.Close()

	return nil
}

// Handle queues msg for routing. A full input drops the message rather than
// stalling the feed's receive loop.
func (r *router) Handle(msg connection.Message) error {
	if r.stopped.Load() {
		r.drop("stopped")
		return nil
	}
	select {
	case r.input <- msg:
	default:
		r.drop("input")
	}
	return nil
}

func (r *router) drop(reason string) {
	if r.dropped.Add(1)%1000 == 1 {
		r.logger.Warn("router dropping messages", "reason", reason, "dropped", r.dropped.Load())
	}
	r.metrics.IncRouterDropped(reason)
}

// Buffers returns output buffers for writers.
func (r *router) Buffers() RouterBuffers {
	return RouterBuffers{
		Trade:     r.tradeBuf,
		Quote:     r.quoteBuf,
		Aggregate: r.aggregateBuf,
	}
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	stats := RouterStats{
		MessagesReceived: r.received.Load(),
		MessagesRouted:   r.routed.Load(),
		MessagesSkipped:  r.skipped.Load(),
		InputDropped:     r.dropped.Load(),
		TradeBuffer:      r.tradeBuf.Stats(),
		QuoteBuffer:      r.quoteBuf.Stats(),
		AggregateBuffer:  r.aggregateBuf.Stats(),
	}
	stats.BufferDropped = r.unrouted.Load() +
		stats.TradeBuffer.Dropped + stats.QuoteBuffer.Dropped + stats.AggregateBuffer.Dropped
	return stats
}

// routeLoop is the main routing goroutine.
func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			r.drainInput()
			return
		case msg := <-r.input:
			r.route(msg)
		}
	}
}

func (r *router) drainInput() {
	for {
		select {
		case msg := <-r.input:
			r.route(msg)
		default:
			return
		}
	}
}

// route sends a single message to the buffer for its category.
func (r *router) route(msg connection.Message) {
	r.received.Add(1)

	var sent bool

	switch ev := msg.Event.(type) {
	case event.Trade:
		sent = r.tradeBuf.Send(TradeMsg{Market: msg.Market, ReceivedAt: msg.ReceivedAt, Trade: ev})
	case event.Quote:
		sent = r.quoteBuf.Send(QuoteMsg{Market: msg.Market, ReceivedAt: msg.ReceivedAt, Quote: ev})
	case event.Aggregate:
		sent = r.aggregateBuf.Send(AggregateMsg{Market: msg.Market, ReceivedAt: msg.ReceivedAt, Aggregate: ev})
	default:
		r.skipped.Add(1)
		return
	}

	if sent {
		r.routed.Add(1)
		return
	}
	category := string(msg.Event.Category())
	if r.unrouted.Add(1)%1000 == 1 {
		r.logger.Warn("output buffer closed, dropping messages", "category", category, "dropped", r.unrouted.Load())
	}
	r.metrics.IncRouterDropped(category)
}
