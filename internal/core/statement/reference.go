package statement

import (
	"regexp"
	"strings"
)

// Narration heuristics. Tune here; nothing else depends on the patterns.
var (
	paymentRefRegex  = regexp.MustCompile(`(?i)\b(?:(?:NEFT|IMPS|UPI|RTGS|UTR)[\s/:#.\-]*)+([A-Z0-9]+)`)
	longRunRegex     = regexp.MustCompile(`[A-Za-z0-9]{10,}`)
	minPaymentRefLen = 6
)

// ExtractReference recovers a best-effort reference from free-text narration:
// first the run following a payment-network prefix (NEFT, IMPS, UPI, RTGS, UTR),
// then the first alphanumeric run of at least ten characters. Results are
// advisory and can be wrong.
func ExtractReference(narration string) string {
	for _, m := range paymentRefRegex.FindAllStringSubmatch(narration, -1) {
		if run := m[1]; len(run) >= minPaymentRefLen && strings.ContainsAny(run, "0123456789") {
			return run
		}
	}
	return longRunRegex.FindString(narration)
}

// isPlaceholder reports dash-only values banks print for "no cheque".
func isPlaceholder(s string) bool {
	return strings.Trim(s, "-–— ") == ""
}
