package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rickgao/marketstream/internal/connection"
	"github.com/rickgao/marketstream/internal/event"
	"github.com/rickgao/marketstream/internal/version"
)

var errUnknownMarket = errors.New("unknown market")

type connectRequest struct {
	Endpoint string `json:"endpoint"`
}

type channelsRequest struct {
	Channels []string `json:"channels"`
}

type healthResponse struct {
	Status     string         `json:"status"`
	Version    string         `json:"version"`
	Components map[string]any `json:"components"`
}

type recentResponse struct {
	Market   string                  `json:"market"`
	Stats    connection.MessageStats `json:"stats"`
	Messages []connection.Message    `json:"messages"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := healthResponse{
		Status:     "healthy",
		Version:    version.Version,
		Components: make(map[string]any),
	}

	for name, ping := range s.pingers {
		if err := ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components[name] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
			continue
		}
		health.Components[name] = "connected"
	}

	streams := make(map[string]string)
	for _, st := range s.registry.Statuses() {
		streams[st.Market] = st.State.String()
		if st.State != connection.StateConnected && health.Status == "healthy" {
			health.Status = "degraded"
		}
	}
	health.Components["streams"] = streams

	code := http.StatusOK
	if health.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Statuses())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, conn.Status())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	market := r.PathValue("market")

	var req connectRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	conn, err := s.registry.GetOrCreate(market, req.Endpoint, s.credential)
	if err != nil {
		s.fail(w, market, "create", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), connectTimeout)
	defer cancel()

	if err := conn.Connect(ctx); err != nil {
		s.fail(w, market, "connect", err)
		return
	}

	s.logger.Info("stream connected via api", "market", market)
	writeJSON(w, http.StatusOK, conn.Status())
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	s.changeSubscriptions(w, r, "subscribe", (*connection.MarketConn).Subscribe)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	s.changeSubscriptions(w, r, "unsubscribe", (*connection.MarketConn).Unsubscribe)
}

func (s *Server) changeSubscriptions(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	apply func(*connection.MarketConn, []string) error,
) {
	conn, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req channelsRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := apply(conn, req.Channels); err != nil {
		s.fail(w, conn.Market(), action, err)
		return
	}
	writeJSON(w, http.StatusOK, conn.Status())
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.lookup(w, r)
	if !ok {
		return
	}
	st := conn.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"market":   st.Market,
		"count":    st.SubscriptionCount,
		"channels": connection.GroupChannels(st.Subscriptions),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.lookup(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, recentResponse{
		Market:   conn.Market(),
		Stats:    conn.MessageStats(),
		Messages: conn.RecentMessages(limit),
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	market := r.PathValue("market")
	category := event.Category(r.PathValue("category"))
	symbol := r.PathValue("symbol")

	data, err := s.latest.Latest(r.Context(), market, category, symbol)
	if err != nil {
		s.logger.Warn("latest lookup failed", "market", market, "symbol", symbol, "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if data == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no cached %s event for %s", category, symbol))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := conn.Close(); err != nil {
		s.fail(w, conn.Market(), "close", err)
		return
	}
	s.logger.Info("stream closed via api", "market", conn.Market())
	w.WriteHeader(http.StatusNoContent)
}

// lookup resolves the {market} path value, writing 404 when it is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*connection.MarketConn, bool) {
	market := r.PathValue("market")
	conn, ok := s.registry.Get(market)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", errUnknownMarket, market))
		return nil, false
	}
	return conn, true
}

func (s *Server) fail(w http.ResponseWriter, market, op string, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("api operation failed", "market", market, "op", op, "error", err)
	} else {
		s.logger.Warn("api operation rejected", "market", market, "op", op, "error", err)
	}
	writeError(w, code, err)
}

// statusCode maps connection errors to HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, errUnknownMarket):
		return http.StatusNotFound
	case errors.Is(err, connection.ErrMissingCredential):
		return http.StatusBadRequest
	case errors.Is(err, connection.ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, connection.ErrNotConnected),
		errors.Is(err, connection.ErrReconnecting),
		errors.Is(err, connection.ErrAlreadyClosed):
		return http.StatusConflict
	case errors.Is(err, connection.ErrTransport),
		errors.Is(err, connection.ErrStaleConnection):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON body into v. An empty body is accepted when
// optional is set.
func decodeBody(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
