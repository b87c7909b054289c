package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/marketstream/internal/connection"
	"github.com/rickgao/marketstream/internal/event"
	"github.com/rickgao/marketstream/internal/metrics"
)

// DefaultTTL is how long a latest-event key lives without updates.
const DefaultTTL = 5 * time.Minute

// DefaultQueueSize is how many events may wait for Redis before new ones
// are dropped.
const DefaultQueueSize = 10000

// opTimeout bounds the Redis round trips made for one message.
const opTimeout = 2 * time.Second

// Store is the part of *redis.Client the publisher uses.
type Store interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Publisher writes normalized events to Redis. Its Handle method is a
// connection.Handler that only queues; a background worker started by Start
// performs the Redis round trips.
type Publisher struct {
	store   Store
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger

	queue   chan connection.Message
	stopped atomic.Bool
	dropped atomic.Int64
	failed  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPublisher creates a Publisher. A non-positive ttl uses DefaultTTL.
func NewPublisher(store Store, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Publisher{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  logger.With("component", "cache"),
		queue:   make(chan connection.Message, DefaultQueueSize),
	}
}

// Start launches the worker that drains the queue into Redis.
func (p *Publisher) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("cache publisher started", "queue", cap(p.queue), "ttl", p.ttl)
	return nil
}

// Stop writes whatever is still queued and stops the worker. Events handled
// after Stop are dropped.
func (p *Publisher) Stop(ctx context.Context) error {
	p.stopped.Store(true)
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("cache publisher stopped", "dropped", p.dropped.Load(), "failed", p.failed.Load())
	case <-ctx.Done():
		p.logger.Warn("cache publisher stop timed out", "queued", len(p.queue))
	}
	return nil
}

// Dropped returns how many events were discarded because the queue was full
// or the publisher was stopped.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// LatestKey returns the key holding the latest event for a symbol.
func LatestKey(market string, category event.Category, symbol string) string {
	return fmt.Sprintf("latest:%s:%s:%s", market, category, symbol)
}

// Channel returns the pub/sub channel events of a category are published on.
func Channel(market string, category event.Category) string {
	return fmt.Sprintf("stream:%s:%s", market, category)
}

// Handle queues msg for the worker without blocking. A full queue drops the
// message so a slow Redis never stalls the feed's receive loop.
func (p *Publisher) Handle(msg connection.Message) error {
	if !cacheable(msg) {
		return nil
	}
	if p.stopped.Load() {
		p.drop(msg.Market)
		return nil
	}
	select {
	case p.queue <- msg:
	default:
		p.drop(msg.Market)
	}
	return nil
}

// cacheable reports whether msg has a latest-event key. Generic events and
// events without a symbol do not.
func cacheable(msg connection.Message) bool {
	if msg.Event == nil {
		return false
	}
	return msg.Event.Category() != event.CategoryGeneric && event.SymbolOf(msg.Event) != ""
}

func (p *Publisher) drop(market string) {
	if p.dropped.Add(1)%1000 == 1 {
		p.logger.Warn("cache queue full, dropping events", "market", market, "dropped", p.dropped.Load())
	}
	p.metrics.IncCacheDropped(market)
}

func (p *Publisher) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			p.drain()
			return
		case msg := <-p.queue:
			p.publish(msg)
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case msg := <-p.queue:
			p.publish(msg)
		default:
			return
		}
	}
}

func (p *Publisher) publish(msg connection.Message) {
	if err := p.write(msg); err != nil {
		if p.failed.Add(1)%100 == 1 {
			p.logger.Warn("cache write failed", "market", msg.Market, "error", err, "failed", p.failed.Load())
		}
	}
}

// write stores msg under its latest key and publishes it on its channel.
func (p *Publisher) write(msg connection.Message) error {
	category := msg.Event.Category()
	symbol := event.SymbolOf(msg.Event)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", category, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := p.store.Set(ctx, LatestKey(msg.Market, category, symbol), data, p.ttl).Err(); err != nil {
		p.metrics.IncCacheError(msg.Market)
		return fmt.Errorf("set latest %s: %w", symbol, err)
	}

	if err := p.store.Publish(ctx, Channel(msg.Market, category), data).Err(); err != nil {
		p.metrics.IncCacheError(msg.Market)
		return fmt.Errorf("publish %s: %w", symbol, err)
	}

	return nil
}

// Latest returns the cached JSON for a symbol, or nil when nothing is cached.
func (p *Publisher) Latest(ctx context.Context, market string, category event.Category, symbol string) (json.RawMessage, error) {
	data, err := p.store.Get(ctx, LatestKey(market, category, symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return json.RawMessage(data), nil
}
