package event

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decode parses a record the way the connection does, with json.Number.
func decode(t *testing.T, s string) Record {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var rec Record
	require.NoError(t, dec.Decode(&rec))
	return rec
}

func TestNormalize_Trade(t *testing.T) {
	rec := decode(t, `{"ev":"T","sym":"AAPL","x":4,"i":"12345","z":3,"p":150.25,"s":100,"c":[14,41],"t":1640995200000}`)

	ev := Normalize(rec)
	trade, ok := ev.(Trade)
	require.True(t, ok, "expected Trade, got %T", ev)

	assert.Equal(t, CategoryTrade, trade.Category())
	assert.Equal(t, "AAPL", trade.Symbol)
	assert.Equal(t, 150.25, trade.Price)
	assert.Equal(t, 100.0, trade.Size)
	assert.Equal(t, int64(4), trade.Venue)
	assert.Equal(t, []int64{14, 41}, trade.Conditions)
	assert.Equal(t, "12345", trade.TradeID)
	assert.Equal(t, int64(1640995200000), trade.Timestamp)
	assert.Equal(t, "2022-01-01T00:00:00Z", trade.Time)
	assert.Equal(t, rec, trade.Raw())
}

func TestNormalize_CryptoTrade(t *testing.T) {
	rec := decode(t, `{"ev":"XT","pair":"BTC-USD","p":42000.5,"s":0.0025,"x":1,"t":1640995200000}`)

	trade, ok := Normalize(rec).(Trade)
	require.True(t, ok)
	assert.Equal(t, "BTC-USD", trade.Symbol)
	assert.Equal(t, 0.0025, trade.Size)
	assert.Empty(t, trade.Conditions)
	assert.NotNil(t, trade.Conditions)
}

func TestNormalize_Quote(t *testing.T) {
	rec := decode(t, `{"ev":"Q","sym":"AAPL","bx":2,"bp":150.00,"bs":200,"ax":3,"ap":150.10,"as":300,"t":1640995200000}`)

	q, ok := Normalize(rec).(Quote)
	require.True(t, ok)
	assert.Equal(t, CategoryQuote, q.Category())
	assert.Equal(t, QuoteSide{Price: 150.00, Size: 200, Venue: 2}, q.Bid)
	assert.Equal(t, QuoteSide{Price: 150.10, Size: 300, Venue: 3}, q.Ask)
	assert.Equal(t, 0.1, q.Spread)
}

func TestNormalize_QuoteSpread(t *testing.T) {
	tests := []struct {
		name   string
		bid    string
		ask    string
		spread float64
	}{
		{"wide", "1000.00", "1005.50", 5.5},
		{"locked", "150.00", "150.00", 0},
		{"crossed", "10.05", "10.00", -0.05},
		{"sub-penny rounds", "1.00001", "1.00009", 0.0001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := decode(t, `{"ev":"Q","sym":"X","bp":`+tt.bid+`,"ap":`+tt.ask+`}`)
			q := Normalize(rec).(Quote)
			assert.Equal(t, tt.spread, q.Spread)
		})
	}
}

func TestNormalize_CryptoAndForexQuotes(t *testing.T) {
	crypto := Normalize(decode(t, `{"ev":"XQ","pair":"ETH-USD","bp":3000,"bs":1.5,"ap":3000.5,"as":2,"x":1}`)).(Quote)
	assert.Equal(t, "ETH-USD", crypto.Symbol)
	assert.Equal(t, int64(1), crypto.Bid.Venue)
	assert.Equal(t, int64(1), crypto.Ask.Venue)
	assert.Equal(t, 0.5, crypto.Spread)

	forex := Normalize(decode(t, `{"ev":"C","p":"EUR/USD","x":48,"a":1.1002,"b":1.1,"t":1640995200000}`)).(Quote)
	assert.Equal(t, "EUR/USD", forex.Symbol)
	assert.Equal(t, 1.1, forex.Bid.Price)
	assert.Equal(t, 1.1002, forex.Ask.Price)
	assert.Equal(t, 0.0002, forex.Spread)
}

func TestNormalize_Aggregates(t *testing.T) {
	tests := []struct {
		ev   string
		want Category
	}{
		{"AM", CategoryAggregateMinute},
		{"XA", CategoryAggregateMinute},
		{"CA", CategoryAggregateMinute},
		{"A", CategoryAggregateSecond},
		{"AS", CategoryAggregateSecond},
		{"XAS", CategoryAggregateSecond},
		{"CAS", CategoryAggregateSecond},
	}
	for _, tt := range tests {
		t.Run(tt.ev, func(t *testing.T) {
			rec := decode(t, `{"ev":"`+tt.ev+`","sym":"AAPL","o":150,"h":151.5,"l":149.75,"c":151,"v":1000,"av":50000,"vw":150.5,"s":1640995200000,"e":1640995260000}`)
			agg, ok := Normalize(rec).(Aggregate)
			require.True(t, ok)
			assert.Equal(t, tt.want, agg.Category())
			assert.Equal(t, 150.0, agg.Open)
			assert.Equal(t, 151.5, agg.High)
			assert.Equal(t, 149.75, agg.Low)
			assert.Equal(t, 151.0, agg.Close)
			assert.Equal(t, 1000.0, agg.Volume)
			assert.Equal(t, 50000.0, agg.AccumulatedVolume)
			assert.Equal(t, 150.5, agg.VWAP)
			assert.Equal(t, int64(1640995200000), agg.Start)
			assert.Equal(t, "2022-01-01T00:01:00Z", agg.EndTime)
		})
	}
}

func TestNormalize_IndexLimitFairValue(t *testing.T) {
	idx := Normalize(decode(t, `{"ev":"V","sym":"I:SPX","val":4500.25,"t":1640995200000}`)).(IndexValue)
	assert.Equal(t, "I:SPX", idx.Symbol)
	assert.Equal(t, 4500.25, idx.Value)

	luld := Normalize(decode(t, `{"ev":"LULD","sym":"GME","tier":1,"halt":true,"t":1640995200000}`)).(LimitState)
	assert.Equal(t, CategoryLimitState, luld.Category())
	assert.Equal(t, int64(1), luld.Tier)
	assert.True(t, luld.Halted)

	fmv := Normalize(decode(t, `{"ev":"FMV","sym":"O:TEST","fmv":0.0,"t":1640995200000}`)).(FairValue)
	assert.Equal(t, CategoryFairValue, fmv.Category())
	assert.Equal(t, 0.0, fmv.FairValue)
	assert.Equal(t, "2022-01-01T00:00:00Z", fmv.Time)
}

func TestNormalize_Generic(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"unknown type", Record{"ev": "UNKNOWN_TYPE", "data": "test"}},
		{"missing type", Record{"data": "test"}},
		{"non-string type", Record{"ev": 42}},
		{"empty", Record{}},
		{"nil", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Normalize(tt.rec)
			require.NotNil(t, ev)
			assert.Equal(t, CategoryGeneric, ev.Category())
			assert.NotNil(t, ev.Raw())
			if tt.rec != nil {
				assert.Equal(t, tt.rec, ev.Raw())
			}
		})
	}
}

func TestNormalize_TimestampNeverFails(t *testing.T) {
	tests := []struct {
		name string
		t    any
	}{
		{"string", "yesterday"},
		{"bool", true},
		{"nested", map[string]any{"ms": 1}},
		{"nan", math.NaN()},
		{"overflow", 1e300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Record{"ev": "T", "sym": "AAPL", "p": 1.0, "s": 1.0, "t": tt.t}
			trade := Normalize(rec).(Trade)
			assert.Empty(t, trade.Time)
			assert.Zero(t, trade.Timestamp)
			assert.Contains(t, trade.Raw(), "t")
		})
	}

	missing := Normalize(Record{"ev": "T", "sym": "AAPL"}).(Trade)
	assert.Empty(t, missing.Time)
}

func TestNormalize_MissingFieldsDefaultToZero(t *testing.T) {
	q := Normalize(Record{"ev": "Q"}).(Quote)
	assert.Empty(t, q.Symbol)
	assert.Zero(t, q.Bid.Price)
	assert.Zero(t, q.Spread)

	trade := Normalize(Record{"ev": "T", "p": "not a number"}).(Trade)
	assert.Zero(t, trade.Price)
}

func TestEvent_JSONIncludesRawRecord(t *testing.T) {
	rec := decode(t, `{"ev":"T","sym":"AAPL","p":150.25,"s":100,"t":1640995200000}`)

	data, err := json.Marshal(Normalize(rec))
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "TRADE", out["event"])
	assert.Equal(t, "AAPL", out["symbol"])
	assert.Equal(t, 150.25, out["price"])
	require.Contains(t, out, "full_data")
	assert.Equal(t, "T", out["full_data"].(map[string]any)["ev"])
}

func TestSymbolAndTimestampOf(t *testing.T) {
	ev := Normalize(Record{"ev": "V", "sym": "I:NDX", "t": int64(1640995200000)})
	assert.Equal(t, "I:NDX", SymbolOf(ev))
	assert.Equal(t, int64(1640995200000), TimestampOf(ev))
}
