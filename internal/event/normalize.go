package event

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Normalize maps a raw record to its typed event. It never fails: records
// it cannot classify come back as Generic.
func Normalize(rec Record) Event {
	if rec == nil {
		rec = Record{}
	}
	evType, _ := rec["ev"].(string)

	switch evType {
	case "T", "XT":
		return normalizeTrade(newHeader(CategoryTrade, evType, rec), rec)
	case "Q", "XQ":
		return normalizeQuote(newHeader(CategoryQuote, evType, rec), rec)
	case "C":
		return normalizeForexQuote(newHeader(CategoryQuote, evType, rec), rec)
	case "AM", "XA", "CA":
		return normalizeAggregate(newHeader(CategoryAggregateMinute, evType, rec), rec)
	case "A", "AS", "XAS", "CAS":
		return normalizeAggregate(newHeader(CategoryAggregateSecond, evType, rec), rec)
	case "V":
		return IndexValue{Header: newHeader(CategoryIndexValue, evType, rec), Value: floatField(rec, "val")}
	case "LULD":
		return normalizeLimitState(newHeader(CategoryLimitState, evType, rec), rec)
	case "FMV":
		return FairValue{Header: newHeader(CategoryFairValue, evType, rec), FairValue: floatField(rec, "fmv")}
	default:
		return Generic{Header: newHeader(CategoryGeneric, evType, rec)}
	}
}

func newHeader(kind Category, evType string, rec Record) Header {
	h := Header{
		Kind:   kind,
		Type:   evType,
		Symbol: symbol(rec, kind),
		Data:   rec,
	}
	if ms, ok := integer(rec["t"]); ok {
		h.Timestamp = ms
		h.Time = readable(ms)
	}
	return h
}

// symbol reads the instrument key. Crypto records use "pair"; forex quotes
// carry the pair in "p", which is a price everywhere else.
func symbol(rec Record, kind Category) string {
	keys := []string{"sym", "pair"}
	switch {
	case kind == CategoryQuote && rec["ev"] == "C":
		keys = append(keys, "p")
	case kind == CategoryLimitState:
		keys = append(keys, "T")
	}
	for _, k := range keys {
		if s, ok := rec[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func normalizeTrade(h Header, rec Record) Trade {
	t := Trade{
		Header:     h,
		Price:      floatField(rec, "p"),
		Size:       floatField(rec, "s"),
		Venue:      intField(rec, "x"),
		Conditions: intList(rec["c"]),
	}
	if id, ok := rec["i"]; ok && id != nil {
		t.TradeID = fmt.Sprint(id)
	}
	return t
}

func normalizeQuote(h Header, rec Record) Quote {
	q := Quote{
		Header: h,
		Bid: QuoteSide{
			Price: floatField(rec, "bp"),
			Size:  floatField(rec, "bs"),
			Venue: intField(rec, "bx"),
		},
		Ask: QuoteSide{
			Price: floatField(rec, "ap"),
			Size:  floatField(rec, "as"),
			Venue: intField(rec, "ax"),
		},
	}
	// Crypto quotes report one exchange for both sides.
	if q.Bid.Venue == 0 && q.Ask.Venue == 0 {
		x := intField(rec, "x")
		q.Bid.Venue, q.Ask.Venue = x, x
	}
	q.Spread = spread(q.Bid.Price, q.Ask.Price)
	return q
}

func normalizeForexQuote(h Header, rec Record) Quote {
	x := intField(rec, "x")
	q := Quote{
		Header: h,
		Bid:    QuoteSide{Price: floatField(rec, "b"), Venue: x},
		Ask:    QuoteSide{Price: floatField(rec, "a"), Venue: x},
	}
	q.Spread = spread(q.Bid.Price, q.Ask.Price)
	return q
}

func normalizeAggregate(h Header, rec Record) Aggregate {
	a := Aggregate{
		Header:            h,
		Open:              floatField(rec, "o"),
		High:              floatField(rec, "h"),
		Low:               floatField(rec, "l"),
		Close:             floatField(rec, "c"),
		Volume:            floatField(rec, "v"),
		AccumulatedVolume: floatField(rec, "av"),
		VWAP:              floatField(rec, "vw"),
	}
	if s, ok := integer(rec["s"]); ok {
		a.Start, a.StartTime = s, readable(s)
	}
	if e, ok := integer(rec["e"]); ok {
		a.End, a.EndTime = e, readable(e)
	}
	return a
}

func normalizeLimitState(h Header, rec Record) LimitState {
	halted, _ := rec["halt"].(bool)
	return LimitState{
		Header:    h,
		Tier:      intField(rec, "tier"),
		Halted:    halted,
		LimitUp:   floatField(rec, "h"),
		LimitDown: floatField(rec, "l"),
	}
}

// spread is ask - bid rounded to 4 places, computed in decimal so that
// 150.10 - 150.00 is 0.1 and not 0.09999999999999432.
func spread(bid, ask float64) float64 {
	return decimal.NewFromFloat(ask).Sub(decimal.NewFromFloat(bid)).Round(4).InexactFloat64()
}

// readable formats epoch milliseconds as RFC 3339 in UTC.
func readable(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

func floatField(rec Record, key string) float64 {
	f, _ := number(rec[key])
	return f
}

func intField(rec Record, key string) int64 {
	n, _ := integer(rec[key])
	return n
}

// number converts any decoded JSON number to float64. NaN and infinities
// are rejected so downstream decimal math cannot panic.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func integer(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	f, ok := number(v)
	if !ok || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func intList(v any) []int64 {
	items, ok := v.([]any)
	if !ok {
		return []int64{}
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		if n, ok := integer(item); ok {
			out = append(out, n)
		}
	}
	return out
}
