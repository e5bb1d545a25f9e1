package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LongDateLayout renders dates like "March 4, 2025".
const LongDateLayout = "January 2, 2006"

var currencySymbols = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
	"jpy": "¥",
}

// Stripe amounts are in the smallest unit; these currencies have none below 1.
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true,
	"kmf": true, "krw": true, "mga": true, "pyg": true, "rwf": true,
	"ugx": true, "vnd": true, "vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// FormatAmount turns a Stripe minor-unit amount into a display string such
// as "$49.00" or "CAD 10.00".
func FormatAmount(minorUnits int64, currency string) string {
	code := strings.ToLower(strings.TrimSpace(currency))
	if code == "" {
		code = "usd"
	}

	amount := decimal.New(minorUnits, -2)
	places := int32(2)
	if zeroDecimalCurrencies[code] {
		amount = decimal.New(minorUnits, 0)
		places = 0
	}

	fixed := amount.Abs().StringFixed(places)
	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	if symbol, ok := currencySymbols[code]; ok {
		return sign + symbol + fixed
	}
	return sign + strings.ToUpper(code) + " " + fixed
}

// FormatDate renders t in UTC with LongDateLayout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(LongDateLayout)
}
