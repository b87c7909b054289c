package config

import "time"

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	Instance    InstanceConfig    `yaml:"instance"`
	APIKey      string            `yaml:"api_key"` // Feed credential; usually ${POLYGON_API_KEY}
	Feeds       []FeedConfig      `yaml:"feeds"`
	Connections ConnectionsConfig `yaml:"connections"`
	Router      RouterConfig      `yaml:"router"`
	Writers     WritersConfig     `yaml:"writers"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	HTTP        HTTPConfig        `yaml:"http"`
	Log         LogConfig         `yaml:"log"`
}

// InstanceConfig identifies this streamer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig describes one market feed to connect at startup.
type FeedConfig struct {
	Market   string   `yaml:"market"`   // e.g. stocks, crypto, forex, options, indices
	Endpoint string   `yaml:"endpoint"` // empty = public endpoint for the market
	Channels []string `yaml:"channels"` // e.g. T.AAPL, Q.*, XA.BTC-USD
}

// ConnectionsConfig holds feed connection settings.
type ConnectionsConfig struct {
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PongTimeout        time.Duration `yaml:"pong_timeout"`
	AuthTimeout        time.Duration `yaml:"auth_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	MessageBuffer      int           `yaml:"message_buffer"`  // Raw frames queued per connection
	RecentMessages     int           `yaml:"recent_messages"` // Normalized messages kept for inspection
}

// RouterConfig holds message router buffer sizes.
type RouterConfig struct {
	InputSize           int `yaml:"input_size"`
	TradeBufferSize     int `yaml:"trade_buffer_size"`
	QuoteBufferSize     int `yaml:"quote_buffer_size"`
	AggregateBufferSize int `yaml:"aggregate_buffer_size"`
	MaxBufferSize       int `yaml:"max_buffer_size"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DatabaseConfig holds the TimescaleDB connection for time-series data.
// Writers are disabled when no host is configured.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// Enabled reports whether a database is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Timescale.Host != ""
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds the latest-event cache settings. The cache is disabled
// when no address is configured.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Enabled reports whether a cache is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// HTTPConfig holds the control API and metrics listener settings.
type HTTPConfig struct {
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
