// Package utils provides small formatting helpers shared by the CLI.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// FormatMoney formats a dollar amount with sign and thousands separators.
func FormatMoney(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := int64(v)
	frac := int64(math.Round((v - float64(whole)) * 100))
	if frac == 100 {
		whole++
		frac = 0
	}
	return fmt.Sprintf("%s$%s.%02d", sign, groupThousands(whole), frac)
}

// groupThousands inserts commas into a non-negative integer.
func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a fraction as a percentage.
func FormatPercent(fraction float64) string {
	return fmt.Sprintf("%.1f%%", fraction*100)
}

// FormatSigned formats with an explicit + for gains.
func FormatSigned(v float64) string {
	if v > 0 {
		return "+" + FormatMoney(v)
	}
	return FormatMoney(v)
}
