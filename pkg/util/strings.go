package util

import "strings"

// stable quotes are served as USD equivalents
var quoteAliases = map[string]string{
	"USDT": "USD",
	"USDC": "USD",
	"BUSD": "USD",
}

// NormalizePair upper-cases a BASE/QUOTE pair and folds stablecoin quotes
// into USD so the same feed key is used regardless of the reporting venue.
func NormalizePair(pair string) string {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	base, quote, ok := strings.Cut(pair, "/")
	if !ok {
		return pair
	}
	if alias, found := quoteAliases[quote]; found {
		quote = alias
	}
	return base + "/" + quote
}

// SplitPair splits "BASE/QUOTE" into its parts. ok is false when the
// string is not a slash-separated pair with non-empty sides.
func SplitPair(pair string) (base, quote string, ok bool) {
	base, quote, ok = strings.Cut(strings.ToUpper(strings.TrimSpace(pair)), "/")
	if !ok || base == "" || quote == "" {
		return "", "", false
	}
	return base, quote, true
}
