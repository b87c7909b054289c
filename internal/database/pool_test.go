package database

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/marketstream/internal/config"
)

func TestSchema_DeclaresWriterTables(t *testing.T) {
	s := Schema()
	for _, table := range []string{"trades", "quotes", "aggregates"} {
		if !strings.Contains(s, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema missing table %s", table)
		}
	}
	if got := strings.Count(s, "PRIMARY KEY (id)"); got != 3 {
		t.Errorf("PRIMARY KEY (id) count = %d, want 3", got)
	}
}

func TestConnect_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Port 1 refuses connections, so the ping fails fast.
	_, err := Connect(ctx, config.DBConfig{
		Host:     "127.0.0.1",
		Port:     1,
		Name:     "db",
		User:     "user",
		Password: "pass",
		SSLMode:  "disable",
		MaxConns: 1,
	})
	if err == nil {
		t.Fatal("expected error connecting to closed port")
	}
	if !strings.Contains(err.Error(), "ping database") {
		t.Errorf("error = %v, want ping failure", err)
	}
}
