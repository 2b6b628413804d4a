package inject

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Currency prefix for full price strings.
const Currency = "R$"

// Cents converts a price to integer cents, rounding half away from zero so
// that 19.999 becomes 20,00 rather than 19,100.
func Cents(price float64) (int64, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("invalid price %v", price)
	}
	if price < 0 {
		return 0, fmt.Errorf("negative price %.2f", price)
	}
	return int64(math.Round(price * 100)), nil
}

// SplitPrice renders the integer part with a "." thousands separator and
// the decimal part as a comma followed by two digits: 24.9 → "24", ",90".
func SplitPrice(price float64) (string, string, error) {
	c, err := Cents(price)
	if err != nil {
		return "", "", err
	}
	return groupThousands(c / 100), fmt.Sprintf(",%02d", c%100), nil
}

// FormatPrice is the integer and decimal parts joined: "1.234,50".
func FormatPrice(price float64) (string, error) {
	i, d, err := SplitPrice(price)
	if err != nil {
		return "", err
	}
	return i + d, nil
}

// FormatCurrency prefixes FormatPrice with the currency symbol.
func FormatCurrency(price float64) (string, error) {
	s, err := FormatPrice(price)
	if err != nil {
		return "", err
	}
	return Currency + " " + s, nil
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var sb strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		sb.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}
