package domain

import (
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// FormatCents renders an integer-cents amount with its currency symbol for
// logs and user-facing messages, e.g. FormatCents(1850, "USD") -> "$ 18.50".
// Unknown currency codes fall back to USD.
func FormatCents(cents int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.USD
	}
	return moneyPrinter.Sprint(currency.Symbol(unit.Amount(float64(cents) / 100)))
}
