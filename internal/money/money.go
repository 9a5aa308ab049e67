// Package money formats prices stored in the smallest currency unit.
package money

import (
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Format renders cents as a localized amount in the ISO 4217 currency code,
// e.g. Format(1500, "usd") is "$ 15.00". Unknown codes fall back to USD.
func Format(cents int64, code string) string {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		unit = currency.USD
	}
	return printer.Sprint(currency.Symbol(unit.Amount(float64(cents) / 100)))
}

// FormatTierPrice is Format with zero rendered as "Free".
func FormatTierPrice(cents int64, code string) string {
	if cents == 0 {
		return "Free"
	}
	return Format(cents, code)
}
