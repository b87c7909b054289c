package writer

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// rowNamespace scopes the name-based row ids.
var rowNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/rickgao/marketstream/rows"))

// rowID derives a stable id from the fields that identify an event.
func rowID(parts ...string) string {
	return uuid.NewSHA1(rowNamespace, []byte(strings.Join(parts, "|"))).String()
}

// numeric renders f as exact decimal text for a NUMERIC column.
func numeric(f float64) string {
	return decimal.NewFromFloat(f).String()
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
