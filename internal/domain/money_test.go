package domain

import (
	"strings"
	"testing"
)

func TestFormatCents(t *testing.T) {
	got := FormatCents(1850, "USD")
	if !strings.Contains(got, "18.50") {
		t.Errorf("expected amount 18.50 in %q", got)
	}

	got = FormatCents(0, "EUR")
	if !strings.Contains(got, "0.00") {
		t.Errorf("expected amount 0.00 in %q", got)
	}
}

func TestFormatCents_UnknownCurrencyFallsBack(t *testing.T) {
	got := FormatCents(500, "???")
	if !strings.Contains(got, "5.00") {
		t.Errorf("expected USD fallback with 5.00, got %q", got)
	}
}
