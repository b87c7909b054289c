package connection

import (
	"fmt"
	"slices"
	"strings"
)

// previewChannels is how many channels String lists before summarizing.
const previewChannels = 5

// String renders a human-readable summary of the connection.
func (s Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Market: %s\n", s.Market)
	fmt.Fprintf(&b, "State: %s\n", s.State)
	fmt.Fprintf(&b, "Endpoint: %s\n", s.Endpoint)
	fmt.Fprintf(&b, "Subscriptions: %d", s.SubscriptionCount)

	if len(s.Subscriptions) > 0 {
		shown := s.Subscriptions
		if len(shown) > previewChannels {
			shown = shown[:previewChannels]
		}
		fmt.Fprintf(&b, "\nChannels: %s", strings.Join(shown, ", "))
		if extra := len(s.Subscriptions) - len(shown); extra > 0 {
			fmt.Fprintf(&b, " (+%d more)", extra)
		}
	}
	if s.ReconnectAttempts > 0 {
		fmt.Fprintf(&b, "\nReconnect attempts: %d", s.ReconnectAttempts)
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, "\nLast error: %s", s.LastError)
	}
	return b.String()
}

// GroupChannels groups channels by the prefix before the first dot
// ("T.AAPL" groups under "T"). Channels without a dot group under their
// full name. Each group is sorted.
func GroupChannels(channels []string) map[string][]string {
	groups := make(map[string][]string)
	for _, ch := range channels {
		prefix, _, _ := strings.Cut(ch, ".")
		groups[prefix] = append(groups[prefix], ch)
	}
	for _, g := range groups {
		slices.Sort(g)
	}
	return groups
}
