package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Registry holds at most one MarketConn per market.
type Registry struct {
	opts   []Option
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]*MarketConn
}

// NewRegistry creates an empty registry. opts are applied to every
// MarketConn it creates.
func NewRegistry(opts ...Option) *Registry {
	o := buildOptions(opts)
	return &Registry{
		opts:   opts,
		logger: o.logger,
		conns:  make(map[string]*MarketConn),
	}
}

// GetOrCreate returns the connection for market, creating it on first use.
// An existing connection is returned unchanged; endpoint and credential
// only apply on creation. An empty endpoint selects DefaultEndpoint.
// Creation never opens the transport.
func (r *Registry) GetOrCreate(market, endpoint, credential string) (*MarketConn, error) {
	if market == "" {
		return nil, errors.New("market is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[market]; ok {
		return c, nil
	}

	c, err := NewMarketConn(market, endpoint, credential, r.opts...)
	if err != nil {
		return nil, err
	}
	c.onClose = r.remove
	r.conns[market] = c

	r.logger.Info("connection created", "market", market, "conn_id", c.ID(), "endpoint", c.Endpoint())
	return c, nil
}

// Get returns the connection for market if one exists.
func (r *Registry) Get(market string) (*MarketConn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[market]
	return c, ok
}

// Markets returns the registered market names, sorted.
func (r *Registry) Markets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	markets := make([]string, 0, len(r.conns))
	for m := range r.conns {
		markets = append(markets, m)
	}
	slices.Sort(markets)
	return markets
}

// Statuses returns one snapshot per connection, sorted by market.
func (r *Registry) Statuses() []Status {
	statuses := make([]Status, 0)
	for _, c := range r.snapshot() {
		statuses = append(statuses, c.Status())
	}
	slices.SortFunc(statuses, func(a, b Status) int {
		return strings.Compare(a.Market, b.Market)
	})
	return statuses
}

// CloseAll closes every connection and empties the registry. Connections
// created while it runs stay registered and open.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*MarketConn)
	r.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.Market(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) snapshot() []*MarketConn {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]*MarketConn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// remove drops c if it is still the registered connection for its market.
func (r *Registry) remove(c *MarketConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[c.market] == c {
		delete(r.conns, c.market)
	}
}
