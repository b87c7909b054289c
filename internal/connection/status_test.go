package connection

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	s := Status{
		Market:            "stocks",
		State:             StateConnected,
		Endpoint:          "wss://socket.polygon.io/stocks",
		Subscriptions:     []string{"A.AAPL", "AM.AAPL", "Q.AAPL", "Q.MSFT", "T.AAPL", "T.MSFT", "T.TSLA"},
		SubscriptionCount: 7,
	}

	want := "Market: stocks\n" +
		"State: connected\n" +
		"Endpoint: wss://socket.polygon.io/stocks\n" +
		"Subscriptions: 7\n" +
		"Channels: A.AAPL, AM.AAPL, Q.AAPL, Q.MSFT, T.AAPL (+2 more)"
	assert.Equal(t, want, s.String())
}

func TestStatus_StringWithError(t *testing.T) {
	s := Status{
		Market:            "crypto",
		State:             StateError,
		Endpoint:          "wss://socket.polygon.io/crypto",
		ReconnectAttempts: 3,
		LastError:         "transport error: EOF",
	}

	assert.Equal(t, "Market: crypto\n"+
		"State: error\n"+
		"Endpoint: wss://socket.polygon.io/crypto\n"+
		"Subscriptions: 0\n"+
		"Reconnect attempts: 3\n"+
		"Last error: transport error: EOF", s.String())
}

func TestStatus_JSON(t *testing.T) {
	data, err := json.Marshal(Status{Market: "stocks", State: StateAuthenticating, Subscriptions: []string{}})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "authenticating", decoded["state"])
	assert.NotContains(t, decoded, "last_error")
}

func TestGroupChannels(t *testing.T) {
	groups := GroupChannels([]string{"T.MSFT", "Q.AAPL", "T.AAPL", "XT.BTC-USD", "status"})

	assert.Equal(t, map[string][]string{
		"T":      {"T.AAPL", "T.MSFT"},
		"Q":      {"Q.AAPL"},
		"XT":     {"XT.BTC-USD"},
		"status": {"status"},
	}, groups)

	assert.Empty(t, GroupChannels(nil))
}
