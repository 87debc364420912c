package utils

import (
	"fmt"
	"strings"
	"time"
)

// FormatCurrency formats an amount in euros with thousands separators,
// e.g. 1500000 -> "1 500 000 €" and 15000.50 -> "15 000,50 €".
func FormatCurrency(amount float64) string {
	raw := fmt.Sprintf("%.2f", amount)

	sign := ""
	if strings.HasPrefix(raw, "-") {
		sign = "-"
		raw = raw[1:]
	}

	parts := strings.SplitN(raw, ".", 2)
	intPart, decPart := parts[0], parts[1]

	// Group integer digits by three with a space separator
	var grouped strings.Builder
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(' ')
		}
		grouped.WriteRune(d)
	}

	formatted := grouped.String()
	if decPart != "00" {
		formatted += "," + decPart
	}

	return sign + formatted + " €"
}

// dateLayouts lists accepted input formats, European day-first preferred.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
}

// ParseDate parses a date string in ISO or European format and returns
// it normalized to ISO (YYYY-MM-DD).
func ParseDate(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", fmt.Errorf("empty date")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}

	return "", fmt.Errorf("unrecognized date format: %q", s)
}
