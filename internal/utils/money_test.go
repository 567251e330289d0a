package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatKES(t *testing.T) {
	cases := map[string]string{
		"50":      "KES 50.00",
		"1250.5":  "KES 1,250.50",
		"1000000": "KES 1,000,000.00",
		"0":       "KES 0.00",
		"-75.25":  "KES -75.25",
	}
	for in, want := range cases {
		if got := FormatKES(decimal.RequireFromString(in)); got != want {
			t.Fatalf("FormatKES(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestWholeUnitsRoundsUp(t *testing.T) {
	if got := WholeUnits(decimal.RequireFromString("49.10")); got != 50 {
		t.Fatalf("WholeUnits = %d, want 50", got)
	}
	if got := WholeUnits(decimal.RequireFromString("50")); got != 50 {
		t.Fatalf("WholeUnits = %d, want 50", got)
	}
}
