package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-streamer
api_key: abc123
feeds:
  - market: stocks
    channels: [T.AAPL, Q.MSFT]
  - market: crypto
    endpoint: wss://delayed.polygon.io/crypto
    channels: [XT.BTC-USD]
connections:
  reconnect_base_delay: 2s
  pong_timeout: 15s
database:
  timescale:
    host: localhost
    port: 5432
    name: test_ts
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-streamer" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-streamer")
	}
	if cfg.APIKey != "abc123" {
		t.Errorf("APIKey = %q, want abc123", cfg.APIKey)
	}
	if len(cfg.Feeds) != 2 {
		t.Fatalf("len(Feeds) = %d, want 2", len(cfg.Feeds))
	}
	if cfg.Feeds[0].Market != "stocks" || len(cfg.Feeds[0].Channels) != 2 {
		t.Errorf("Feeds[0] = %+v", cfg.Feeds[0])
	}
	if cfg.Feeds[1].Endpoint != "wss://delayed.polygon.io/crypto" {
		t.Errorf("Feeds[1].Endpoint = %q", cfg.Feeds[1].Endpoint)
	}
	if cfg.Connections.ReconnectBaseDelay != 2*time.Second {
		t.Errorf("ReconnectBaseDelay = %v, want 2s", cfg.Connections.ReconnectBaseDelay)
	}
	if cfg.Connections.PongTimeout != 15*time.Second {
		t.Errorf("PongTimeout = %v, want 15s", cfg.Connections.PongTimeout)
	}
	if !cfg.Database.Enabled() {
		t.Error("expected database to be enabled")
	}
	if cfg.Redis.Enabled() {
		t.Error("expected redis to be disabled")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_POLYGON_KEY", "secret123")
	t.Setenv("TEST_DB_PASSWORD", "dbsecret")

	yaml := `
api_key: ${TEST_POLYGON_KEY}
feeds:
  - market: stocks
database:
  timescale:
    host: localhost
    name: test_ts
    user: testuser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIKey != "secret123" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "secret123")
	}
	if cfg.Database.Timescale.Password != "dbsecret" {
		t.Errorf("Database.Timescale.Password = %q, want %q", cfg.Database.Timescale.Password, "dbsecret")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("feeds: [unclosed")); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
api_key: abc123
feeds:
  - market: stocks
database:
  timescale:
    host: localhost
    name: test_ts
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Instance.ID != DefaultInstanceID {
		t.Errorf("Instance.ID = %q, want default %q", cfg.Instance.ID, DefaultInstanceID)
	}
	if cfg.Connections.ReconnectBaseDelay != DefaultReconnectBaseDelay {
		t.Errorf("ReconnectBaseDelay = %v, want default %v", cfg.Connections.ReconnectBaseDelay, DefaultReconnectBaseDelay)
	}
	if cfg.Connections.ReconnectMaxDelay != 30*time.Second {
		t.Errorf("ReconnectMaxDelay = %v, want 30s", cfg.Connections.ReconnectMaxDelay)
	}
	if cfg.Connections.RecentMessages != 100 {
		t.Errorf("RecentMessages = %d, want 100", cfg.Connections.RecentMessages)
	}
	if cfg.Writers.BatchSize != 1000 || cfg.Writers.FlushInterval != 5*time.Second {
		t.Errorf("Writers = %+v, want 1000 rows / 5s", cfg.Writers)
	}
	if cfg.Database.Timescale.Port != DefaultDBPort {
		t.Errorf("Database.Timescale.Port = %d, want default %d", cfg.Database.Timescale.Port, DefaultDBPort)
	}
	if cfg.Database.Timescale.MaxConns != DefaultMaxConns {
		t.Errorf("Database.Timescale.MaxConns = %d, want default %d", cfg.Database.Timescale.MaxConns, DefaultMaxConns)
	}
	if cfg.HTTP.Port != DefaultHTTPPort || cfg.HTTP.MetricsPath != DefaultMetricsPath {
		t.Errorf("HTTP = %+v, want defaults", cfg.HTTP)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadWithDefaults_NoDatabase(t *testing.T) {
	path := writeTempFile(t, "api_key: abc\nfeeds:\n  - market: stocks\n")

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Database.Enabled() {
		t.Error("database should be disabled without a host")
	}
	if cfg.Database.Timescale.Port != 0 {
		t.Errorf("disabled database should not get defaults, port = %d", cfg.Database.Timescale.Port)
	}
}

func validConfig() StreamerConfig {
	cfg := StreamerConfig{
		APIKey: "key",
		Feeds:  []FeedConfig{{Market: "stocks"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*StreamerConfig)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *StreamerConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing api key",
			mutate:  func(c *StreamerConfig) { c.APIKey = "" },
			wantErr: "api_key is required",
		},
		{
			name:    "no feeds",
			mutate:  func(c *StreamerConfig) { c.Feeds = nil },
			wantErr: "feeds must list at least one market",
		},
		{
			name:    "duplicate market",
			mutate:  func(c *StreamerConfig) { c.Feeds = append(c.Feeds, FeedConfig{Market: "stocks"}) },
			wantErr: `feeds[1].market "stocks" is listed twice`,
		},
		{
			name:    "bad endpoint scheme",
			mutate:  func(c *StreamerConfig) { c.Feeds[0].Endpoint = "https://socket.polygon.io/stocks" },
			wantErr: "feeds[0].endpoint must be a ws:// or wss:// URL",
		},
		{
			name: "max delay below base",
			mutate: func(c *StreamerConfig) {
				c.Connections.ReconnectBaseDelay = 10 * time.Second
				c.Connections.ReconnectMaxDelay = 5 * time.Second
			},
			wantErr: "connections.reconnect_max_delay (5s) cannot be less than reconnect_base_delay (10s)",
		},
		{
			name: "missing timescale password",
			mutate: func(c *StreamerConfig) {
				c.Database.Timescale = DBConfig{Host: "localhost", Name: "db", User: "user", MaxConns: 5}
			},
			wantErr: "database.timescale.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *StreamerConfig) {
				c.Database.Timescale = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "database.timescale.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "bad http port",
			mutate:  func(c *StreamerConfig) { c.HTTP.Port = 70000 },
			wantErr: "http.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log level",
			mutate:  func(c *StreamerConfig) { c.Log.Level = "verbose" },
			wantErr: `log.level must be one of debug, info, warn, error, got "verbose"`,
		},
		{
			name:    "valid config",
			mutate:  func(c *StreamerConfig) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
