package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/marketstream/internal/buffer"
	"github.com/rickgao/marketstream/internal/event"
	"github.com/rickgao/marketstream/internal/metrics"
)

// MarketConn is the single feed connection for one market. It owns the
// transport, the subscription set and the background receive loop.
type MarketConn struct {
	id         string
	market     string
	endpoint   string
	credential string

	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	// ctrlMu serializes Connect, Subscribe, Unsubscribe and the resubscribe
	// after a reconnect so frames never interleave.
	ctrlMu sync.Mutex

	// mu guards everything below.
	mu       sync.Mutex
	state    State
	subs     map[string]struct{}
	client   Client
	attempts int
	lastErr  string
	gen      uint64 // bumped by Connect and Close; stale goroutines compare it
	cancel   context.CancelFunc
	running  bool // receive/reconnect goroutine alive for gen

	hmu       sync.RWMutex
	handlers  []Handler
	listeners []func(StateChange)

	recent   *buffer.Ring[Message]
	received atomic.Int64

	onClose func(*MarketConn)
}

// NewMarketConn creates a disconnected MarketConn. It does not open the
// transport.
func NewMarketConn(market, endpoint, credential string, opts ...Option) (*MarketConn, error) {
	if credential == "" {
		return nil, fmt.Errorf("market %q: %w", market, ErrMissingCredential)
	}
	o := buildOptions(opts)
	if endpoint == "" {
		endpoint = DefaultEndpoint(market)
	}

	id := uuid.NewString()
	return &MarketConn{
		id:         id,
		market:     market,
		endpoint:   endpoint,
		credential: credential,
		cfg:        o.cfg,
		logger:     o.logger.With("market", market, "conn_id", id),
		metrics:    o.metrics,
		subs:       make(map[string]struct{}),
		handlers:   slices.Clone(o.handlers),
		recent:     buffer.NewRing[Message](o.cfg.RecentBuffer),
	}, nil
}

// DefaultEndpoint returns the public feed URL for market.
func DefaultEndpoint(market string) string {
	return "wss://socket.polygon.io/" + market
}

// ID returns the connection's unique id.
func (c *MarketConn) ID() string { return c.id }

// Market returns the market this connection serves.
func (c *MarketConn) Market() string { return c.market }

// Endpoint returns the feed URL.
func (c *MarketConn) Endpoint() string { return c.endpoint }

// State returns the current lifecycle state.
func (c *MarketConn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AddHandler appends h to the handlers invoked for every normalized event.
func (c *MarketConn) AddHandler(h Handler) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers = append(c.handlers, h)
}

// OnStateChange registers fn to be called after every state transition.
// fn runs on the goroutine that caused the transition and must not block.
func (c *MarketConn) OnStateChange(fn func(StateChange)) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Connect opens the transport and authenticates. It returns nil once the
// connection is Connected, or immediately if it already is.
//
// A dial failure or rejected credential leaves the connection in Error
// without retrying. A transport failure during authentication returns the
// error and starts background reconnection.
func (c *MarketConn) Connect(ctx context.Context) error {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if c.running {
		c.mu.Unlock()
		return ErrReconnecting
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	life, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	// Close aborts an in-flight dial or handshake.
	opCtx, opCancel := context.WithCancel(ctx)
	defer opCancel()
	stop := context.AfterFunc(life, opCancel)
	defer stop()

	client, opened, err := c.open(opCtx, gen)
	if err == nil {
		if !c.install(gen, client) {
			client.Close()
			return ErrAlreadyClosed
		}
		c.resubscribe(client)
		c.startLoop(gen, life, client)
		return nil
	}

	switch {
	case life.Err() != nil:
		return ErrAlreadyClosed
	case !opened, errors.Is(err, ErrAuthFailed), ctx.Err() != nil:
		cancel()
		return err
	}

	c.logger.Warn("transport lost during authentication, reconnecting", "error", err)
	c.startLoop(gen, life, nil)
	return err
}

// Subscribe adds channels to the subscription set with one frame. It fails
// with ErrNotConnected unless the connection is Connected.
func (c *MarketConn) Subscribe(channels []string) error {
	return c.changeSubscriptions(actionSubscribe, channels)
}

// Unsubscribe removes channels from the subscription set with one frame. It
// fails with ErrNotConnected unless the connection is Connected.
func (c *MarketConn) Unsubscribe(channels []string) error {
	return c.changeSubscriptions(actionUnsubscribe, channels)
}

func (c *MarketConn) changeSubscriptions(action string, channels []string) error {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	c.mu.Lock()
	if c.state != StateConnected || c.client == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	client := c.client
	c.mu.Unlock()

	channels = cleanChannels(channels)
	if len(channels) == 0 {
		return nil
	}

	if err := c.send(client, action, strings.Join(channels, ",")); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransport, action, err)
	}

	c.mu.Lock()
	for _, ch := range channels {
		if action == actionSubscribe {
			c.subs[ch] = struct{}{}
		} else {
			delete(c.subs, ch)
		}
	}
	count := len(c.subs)
	c.mu.Unlock()

	c.logger.Info(action+"d", "channels", channels, "total", count)
	return nil
}

// Close tears the connection down from any state. It cancels pending
// reconnection waits, clears the subscription set and the recent-message
// buffer, and removes the connection from its registry. Calling Close again
// is a no-op.
func (c *MarketConn) Close() error {
	c.mu.Lock()
	c.gen++
	cancel := c.cancel
	client := c.client
	from := c.state
	c.cancel = nil
	c.client = nil
	c.state = StateDisconnected
	clear(c.subs)
	c.attempts = 0
	c.lastErr = ""
	c.running = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		if err := client.Close(); err != nil {
			c.logger.Debug("transport close", "error", err)
		}
	}
	c.recent.Reset()

	if from != StateDisconnected {
		c.logger.Info("connection closed", "from", from)
		c.metrics.SetConnectionState(c.market, StateDisconnected.String())
		c.notify(StateChange{ConnID: c.id, Market: c.market, From: from, To: StateDisconnected, At: time.Now()})
	}
	if c.onClose != nil {
		c.onClose(c)
	}
	return nil
}

// Status returns a snapshot of the connection. It never touches the
// transport.
func (c *MarketConn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		subs = append(subs, ch)
	}
	slices.Sort(subs)

	return Status{
		ID:                c.id,
		Market:            c.market,
		State:             c.state,
		Endpoint:          c.endpoint,
		Subscriptions:     subs,
		SubscriptionCount: len(subs),
		ReconnectAttempts: c.attempts,
		LastError:         c.lastErr,
		MessagesReceived:  c.received.Load(),
	}
}

// RecentMessages returns up to limit of the most recently dispatched
// messages, oldest first. limit <= 0 returns all that are buffered.
func (c *MarketConn) RecentMessages(limit int) []Message {
	return c.recent.Last(limit)
}

// MessageStats describes the recent-message buffer.
func (c *MarketConn) MessageStats() MessageStats {
	return MessageStats{
		Total:    c.recent.Total(),
		Buffered: c.recent.Len(),
		Capacity: c.recent.Cap(),
	}
}

// open dials and authenticates. opened reports whether the transport came
// up before the failure.
func (c *MarketConn) open(ctx context.Context, gen uint64) (client Client, opened bool, err error) {
	c.transition(gen, StateConnecting, nil)

	cfg := c.cfg.Client
	cfg.URL = c.endpoint
	client = NewClient(cfg, c.logger)
	if err := client.Connect(ctx); err != nil {
		err = fmt.Errorf("%w: dial %s: %v", ErrTransport, c.endpoint, err)
		c.transition(gen, StateError, err)
		return nil, false, err
	}

	c.transition(gen, StateAuthenticating, nil)
	if err := c.authenticate(ctx, client); err != nil {
		client.Close()
		c.transition(gen, StateError, err)
		return nil, true, err
	}
	return client, true, nil
}

// authenticate sends the credential and waits for auth_success or
// auth_failed, skipping the initial connected notice. Data records that
// arrive first are dispatched normally.
func (c *MarketConn) authenticate(ctx context.Context, client Client) error {
	if err := c.send(client, actionAuth, c.credential); err != nil {
		return fmt.Errorf("%w: send auth: %v", ErrTransport, err)
	}

	timer := time.NewTimer(c.cfg.AuthTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w: no auth response within %s", ErrTransport, c.cfg.AuthTimeout)
		case err := <-client.Errors():
			return fmt.Errorf("%w: %v", ErrTransport, err)
		case msg := <-client.Messages():
			records := c.decode(msg.Data)
			for i, rec := range records {
				if !isStatus(rec) {
					c.dispatch(rec, msg.ReceivedAt)
					continue
				}
				switch c.handleStatus(rec) {
				case statusAuthSuccess:
					// Records after the auth result in the same frame still count.
					c.processRecords(records[i+1:], msg.ReceivedAt)
					return nil
				case statusAuthFailed:
					return ErrAuthFailed
				}
			}
		}
	}
}

// install makes client the live transport if gen is still current.
func (c *MarketConn) install(gen uint64, client Client) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	from := c.state
	c.client = client
	c.state = StateConnected
	c.attempts = 0
	c.lastErr = ""
	c.mu.Unlock()

	c.logger.Info("connected", "endpoint", c.endpoint)
	c.metrics.SetConnectionState(c.market, StateConnected.String())
	c.notify(StateChange{ConnID: c.id, Market: c.market, From: from, To: StateConnected, At: time.Now()})
	return true
}

// resubscribe sends the whole subscription set in one frame. Must be
// called with ctrlMu held.
func (c *MarketConn) resubscribe(client Client) {
	c.mu.Lock()
	channels := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	if len(channels) == 0 {
		return
	}
	slices.Sort(channels)

	if err := c.send(client, actionSubscribe, strings.Join(channels, ",")); err != nil {
		// The receive loop sees the broken transport and reconnects.
		c.logger.Warn("resubscribe failed", "channels", len(channels), "error", err)
		return
	}
	c.logger.Info("resubscribed", "channels", len(channels))
}

func (c *MarketConn) startLoop(gen uint64, life context.Context, client Client) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		if client != nil {
			client.Close()
		}
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.run(gen, life, client)
}

// run is the single background goroutine of a connection generation. It
// receives until the transport fails, then reconnects, until Close or a
// rejected credential ends it.
func (c *MarketConn) run(gen uint64, life context.Context, client Client) {
	defer func() {
		c.mu.Lock()
		if c.gen == gen {
			c.running = false
		}
		c.mu.Unlock()
	}()

	for {
		if client != nil {
			err := c.receive(life, client)
			client.Close()
			if life.Err() != nil {
				return
			}
			c.logger.Warn("connection lost", "error", err)
			c.transition(gen, StateError, err)
		}

		client = c.reconnect(life, gen)
		if client == nil {
			return
		}
	}
}

func (c *MarketConn) receive(life context.Context, client Client) error {
	for {
		select {
		case <-life.Done():
			return life.Err()
		case err := <-client.Errors():
			return fmt.Errorf("%w: %v", ErrTransport, err)
		case msg := <-client.Messages():
			c.processFrame(msg)
		}
	}
}

// reconnect retries with exponential backoff until a connection is
// authenticated and installed. It returns nil when the connection was
// closed or the credential was rejected.
func (c *MarketConn) reconnect(life context.Context, gen uint64) Client {
	for {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return nil
		}
		attempt := c.attempts
		c.attempts++
		c.mu.Unlock()

		delay := BackoffDelay(attempt, c.cfg.BackoffBase, c.cfg.BackoffMax)
		c.logger.Info("reconnecting", "attempt", attempt+1, "delay", delay)
		c.metrics.IncReconnect(c.market)

		timer := time.NewTimer(delay)
		select {
		case <-life.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		client, _, err := c.open(life, gen)
		if err != nil {
			if life.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrAuthFailed) {
				c.logger.Error("credential rejected during reconnection, giving up")
				return nil
			}
			c.logger.Warn("reconnection failed", "attempt", attempt+1, "error", err)
			continue
		}

		c.ctrlMu.Lock()
		ok := c.install(gen, client)
		if ok {
			c.resubscribe(client)
		}
		c.ctrlMu.Unlock()

		if !ok {
			client.Close()
			return nil
		}
		return client
	}
}

// transition moves to state if gen is still current and notifies
// listeners outside the lock.
func (c *MarketConn) transition(gen uint64, to State, cause error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = to
	if cause != nil {
		c.lastErr = cause.Error()
	}
	c.mu.Unlock()

	if from == to {
		return
	}
	c.logger.Debug("state change", "from", from, "to", to)
	c.metrics.SetConnectionState(c.market, to.String())

	change := StateChange{ConnID: c.id, Market: c.market, From: from, To: to, At: time.Now()}
	if cause != nil {
		change.Err = cause.Error()
	}
	c.notify(change)
}

func (c *MarketConn) notify(change StateChange) {
	c.hmu.RLock()
	listeners := slices.Clone(c.listeners)
	c.hmu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}

func (c *MarketConn) send(client Client, action, params string) error {
	data, err := json.Marshal(command{Action: action, Params: params})
	if err != nil {
		return err
	}
	return client.Send(data)
}

// processFrame handles one inbound frame in receipt order.
func (c *MarketConn) processFrame(msg TimestampedMessage) {
	c.processRecords(c.decode(msg.Data), msg.ReceivedAt)
}

func (c *MarketConn) processRecords(records []event.Record, receivedAt time.Time) {
	for _, rec := range records {
		if isStatus(rec) {
			c.handleStatus(rec)
			continue
		}
		c.dispatch(rec, receivedAt)
	}
}

// decode parses a frame into records. Frames are JSON arrays of objects; a
// lone object is accepted with a warning. Anything else is logged and
// skipped.
func (c *MarketConn) decode(data []byte) []event.Record {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		c.metrics.IncMalformed(c.market)
		c.logger.Warn("malformed frame", "error", err, "size", len(data))
		return nil
	}

	switch v := v.(type) {
	case []any:
		records := make([]event.Record, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				c.logger.Warn("skipping non-object record", "type", fmt.Sprintf("%T", item))
				continue
			}
			records = append(records, event.Record(obj))
		}
		return records
	case map[string]any:
		c.logger.Warn("frame is not an array, treating as a single record")
		return []event.Record{event.Record(v)}
	default:
		c.metrics.IncMalformed(c.market)
		c.logger.Warn("unexpected frame type", "type", fmt.Sprintf("%T", v))
		return nil
	}
}

func isStatus(rec event.Record) bool {
	ev, _ := rec["ev"].(string)
	return ev == "status"
}

// handleStatus logs a status record and returns its status value. Unknown
// values are logged and otherwise ignored.
func (c *MarketConn) handleStatus(rec event.Record) string {
	status, _ := rec["status"].(string)
	message, _ := rec["message"].(string)
	c.metrics.IncStatus(c.market, status)

	desc, known := statusDescriptions[status]
	switch {
	case !known:
		c.logger.Debug("unknown status ignored", "status", status, "message", message)
	case status == statusAuthFailed || status == statusError:
		c.logger.Warn(desc, "status", status, "message", message)
	default:
		c.logger.Info(desc, "status", status, "message", message)
	}
	return status
}

// dispatch normalizes rec and invokes every handler in registration order.
func (c *MarketConn) dispatch(rec event.Record, receivedAt time.Time) {
	msg := Message{
		Market:     c.market,
		ReceivedAt: receivedAt,
		Event:      event.Normalize(rec),
	}
	c.received.Add(1)
	c.recent.Push(msg)
	c.metrics.IncMessage(c.market, string(msg.Event.Category()))

	c.hmu.RLock()
	handlers := slices.Clone(c.handlers)
	c.hmu.RUnlock()

	for i, h := range handlers {
		c.invoke(i, h, msg)
	}
}

func (c *MarketConn) invoke(index int, h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.IncHandlerError(c.market)
			c.logger.Error("handler panicked", "handler", index, "panic", r)
		}
	}()
	if err := h(msg); err != nil {
		c.metrics.IncHandlerError(c.market)
		c.logger.Warn("handler failed", "handler", index, "category", msg.Event.Category(), "error", err)
	}
}

// cleanChannels drops empty and duplicate channel names, keeping order.
func cleanChannels(channels []string) []string {
	seen := make(map[string]struct{}, len(channels))
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	return out
}
