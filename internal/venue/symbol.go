package venue

import "strings"

// quoteCurrencies is the ordered list of recognised quote currencies used to
// split a normalised symbol into base/quote when converting to a
// hyphenated venue format. Order matters: USDT must be tried before USD.
var quoteCurrencies = []string{"USDT", "USDC", "USD", "BTC", "ETH", "BNB"}

// NormalizeSymbol converts a venue-formatted symbol to the internal format:
// uppercase, separator-free. Idempotent.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
}

// ToHyphenated converts a normalised symbol to a hyphenated venue format
// (e.g. OKX) by inserting a hyphen before the first matching quote currency
// in quoteCurrencies. Symbols with no recognised quote are returned
// unchanged.
func ToHyphenated(symbol string) string {
	n := NormalizeSymbol(symbol)
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(n, q) && len(n) > len(q) {
			return n[:len(n)-len(q)] + "-" + q
		}
	}
	return n
}
