package event

// Record is one decoded inbound record. Numbers are json.Number when the
// record came off the wire.
type Record map[string]any

// Category identifies the kind of a normalized event.
type Category string

const (
	CategoryTrade           Category = "TRADE"
	CategoryQuote           Category = "QUOTE"
	CategoryAggregateMinute Category = "AGGREGATE_MINUTE"
	CategoryAggregateSecond Category = "AGGREGATE_SECOND"
	CategoryIndexValue      Category = "INDEX_VALUE"
	CategoryLimitState      Category = "LULD"
	CategoryFairValue       Category = "FAIR_MARKET_VALUE"
	CategoryGeneric         Category = "GENERIC"
)

// Event is implemented by every normalized event type. The set of
// implementations is closed: Trade, Quote, Aggregate, IndexValue,
// LimitState, FairValue and Generic.
type Event interface {
	Category() Category
	Raw() Record
	header() Header
}

// Header carries the fields common to all events.
type Header struct {
	Kind   Category `json:"event"`
	Type   string   `json:"ev,omitempty"` // discriminator as received
	Symbol string   `json:"symbol,omitempty"`

	// Timestamp is the record's "t" value in milliseconds since epoch.
	// Time is the derived RFC 3339 form; both are empty when "t" is absent
	// or not numeric.
	Timestamp int64  `json:"timestamp_ms,omitempty"`
	Time      string `json:"timestamp,omitempty"`

	Data Record `json:"full_data"`
}

// Category returns the event category.
func (h Header) Category() Category { return h.Kind }

// Raw returns the original record.
func (h Header) Raw() Record { return h.Data }

func (h Header) header() Header { return h }

// Trade is a single execution.
type Trade struct {
	Header
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	Venue      int64   `json:"exchange_id,omitempty"`
	Conditions []int64 `json:"conditions"`
	TradeID    string  `json:"trade_id,omitempty"`
}

// QuoteSide is one side of a top-of-book quote.
type QuoteSide struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size,omitempty"`
	Venue int64   `json:"exchange,omitempty"`
}

// Quote is a top-of-book update.
type Quote struct {
	Header
	Bid    QuoteSide `json:"bid"`
	Ask    QuoteSide `json:"ask"`
	Spread float64   `json:"spread"` // Ask.Price - Bid.Price, 4 decimal places
}

// Aggregate is a minute or second bar.
type Aggregate struct {
	Header
	Open              float64 `json:"open"`
	High              float64 `json:"high"`
	Low               float64 `json:"low"`
	Close             float64 `json:"close"`
	Volume            float64 `json:"volume"`
	AccumulatedVolume float64 `json:"accumulated_volume"`
	VWAP              float64 `json:"vwap"`

	// Window bounds in milliseconds, with derived RFC 3339 forms.
	Start     int64  `json:"start_ms,omitempty"`
	End       int64  `json:"end_ms,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

// IndexValue is a computed index level.
type IndexValue struct {
	Header
	Value float64 `json:"value"`
}

// LimitState is a limit-up/limit-down band update.
type LimitState struct {
	Header
	Tier      int64   `json:"tier"`
	Halted    bool    `json:"halt"`
	LimitUp   float64 `json:"limit_up,omitempty"`
	LimitDown float64 `json:"limit_down,omitempty"`
}

// FairValue is a fair market value estimate.
type FairValue struct {
	Header
	FairValue float64 `json:"fair_value"`
}

// Generic wraps a record no other category matched.
type Generic struct {
	Header
}

// SymbolOf returns the symbol of any event, or "" for generic events
// without one.
func SymbolOf(ev Event) string {
	return ev.header().Symbol
}

// TimestampOf returns the event's "t" timestamp in milliseconds, or 0.
func TimestampOf(ev Event) int64 {
	return ev.header().Timestamp
}
