package utils

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatKES renders an amount as "KES 1,250.00".
func FormatKES(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	fixed := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return "KES " + sign + fixed
	}
	return "KES " + sign + formatThousand(n) + "." + frac
}

// WholeUnits rounds up to the whole shilling the gateway charges.
func WholeUnits(amount decimal.Decimal) int64 {
	return amount.Ceil().IntPart()
}

func formatThousand(n int64) string {
	if n == 0 {
		return "0"
	}
	str := strconv.FormatInt(n, 10)
	var out strings.Builder
	for i, c := range str {
		if i != 0 && (len(str)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(c)
	}
	return out.String()
}
