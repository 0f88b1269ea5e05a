package util

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice converts marketplace price text into a decimal using a fixed
// grammar. Spaces and currency markers are ignored; when both separators are
// present the rightmost one is the decimal separator. A lone separator with a
// three-digit tail is ambiguous and resolved by locale: "ru" reads a comma as
// the decimal mark, "en" reads a dot as the decimal mark.
func ParsePrice(text, locale string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return decimal.Zero, fmt.Errorf("no numeric content in %q", text)
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		s = resolveSingle(s, ",", locale == "ru")
	case lastDot >= 0:
		s = resolveSingle(s, ".", locale != "ru")
	}

	parsed, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable price %q: %w", text, err)
	}
	return parsed, nil
}

// resolveSingle decides whether the only separator kind present is a decimal
// mark or a grouping mark. decimalByLocale applies only to the ambiguous
// three-digit-tail case.
func resolveSingle(s, sep string, decimalByLocale bool) string {
	if strings.Count(s, sep) > 1 {
		return strings.ReplaceAll(s, sep, "")
	}
	idx := strings.LastIndex(s, sep)
	tail := len(s) - idx - 1
	isDecimal := tail != 3 || decimalByLocale
	if !isDecimal {
		return strings.ReplaceAll(s, sep, "")
	}
	if sep == "," {
		return strings.Replace(s, ",", ".", 1)
	}
	return s
}
