package utils

import (
	"fmt"
	"strings"
)

// SupportedCurrencies lists ISO codes accepted for ride prices, with the
// number of minor units per major unit.
var SupportedCurrencies = map[string]int64{
	"usd": 100,
	"eur": 100,
	"gbp": 100,
	"cad": 100,
	"aud": 100,
	"inr": 100,
	"jpy": 1,
}

func NormalizeCurrency(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func IsSupportedCurrency(code string) bool {
	_, ok := SupportedCurrencies[NormalizeCurrency(code)]
	return ok
}

// FormatMinorUnits renders an amount such as 1550 usd as "15.50 USD".
func FormatMinorUnits(amount int64, code string) string {
	code = NormalizeCurrency(code)
	factor, ok := SupportedCurrencies[code]
	if !ok {
		factor = 100
	}
	upper := strings.ToUpper(code)
	if factor == 1 {
		return fmt.Sprintf("%d %s", amount, upper)
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/factor, amount%factor, upper)
}
