package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID          = "streamer"
	DefaultReconnectBaseDelay  = 1 * time.Second
	DefaultReconnectMaxDelay   = 30 * time.Second
	DefaultPingInterval        = 30 * time.Second
	DefaultPongTimeout         = 10 * time.Second
	DefaultAuthTimeout         = 10 * time.Second
	DefaultWriteTimeout        = 5 * time.Second
	DefaultHandshakeTimeout    = 10 * time.Second
	DefaultMessageBuffer       = 10000
	DefaultRecentMessages      = 100
	DefaultRouterInputSize     = 10000
	DefaultTradeBufferSize     = 1000
	DefaultQuoteBufferSize     = 5000
	DefaultAggregateBufferSize = 1000
	DefaultMaxBufferSize       = 1000000
	DefaultBatchSize           = 1000
	DefaultFlushInterval       = 5 * time.Second
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
	DefaultCacheTTL            = 5 * time.Minute
	DefaultHTTPPort            = 8080
	DefaultMetricsPath         = "/metrics"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

// ApplyDefaults fills unset optional fields.
func (c *StreamerConfig) ApplyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Connections defaults
	conn := &c.Connections
	if conn.ReconnectBaseDelay == 0 {
		conn.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if conn.ReconnectMaxDelay == 0 {
		conn.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if conn.PingInterval == 0 {
		conn.PingInterval = DefaultPingInterval
	}
	if conn.PongTimeout == 0 {
		conn.PongTimeout = DefaultPongTimeout
	}
	if conn.AuthTimeout == 0 {
		conn.AuthTimeout = DefaultAuthTimeout
	}
	if conn.WriteTimeout == 0 {
		conn.WriteTimeout = DefaultWriteTimeout
	}
	if conn.HandshakeTimeout == 0 {
		conn.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if conn.MessageBuffer == 0 {
		conn.MessageBuffer = DefaultMessageBuffer
	}
	if conn.RecentMessages == 0 {
		conn.RecentMessages = DefaultRecentMessages
	}

	// Router defaults
	if c.Router.InputSize == 0 {
		c.Router.InputSize = DefaultRouterInputSize
	}
	if c.Router.TradeBufferSize == 0 {
		c.Router.TradeBufferSize = DefaultTradeBufferSize
	}
	if c.Router.QuoteBufferSize == 0 {
		c.Router.QuoteBufferSize = DefaultQuoteBufferSize
	}
	if c.Router.AggregateBufferSize == 0 {
		c.Router.AggregateBufferSize = DefaultAggregateBufferSize
	}
	if c.Router.MaxBufferSize == 0 {
		c.Router.MaxBufferSize = DefaultMaxBufferSize
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}

	if c.Database.Enabled() {
		applyDBDefaults(&c.Database.Timescale)
	}

	if c.Redis.TTL == 0 {
		c.Redis.TTL = DefaultCacheTTL
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.MetricsPath == "" {
		c.HTTP.MetricsPath = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
