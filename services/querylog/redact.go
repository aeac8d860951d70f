package querylog

import (
	"regexp"
	"strings"
)

// PIIKind names a category of personal data removed from logged queries.
type PIIKind string

const (
	PIIEmail      PIIKind = "email"
	PIIPhone      PIIKind = "phone"
	PIINRIC       PIIKind = "nric"
	PIICreditCard PIIKind = "credit_card"
	PIIIPAddress  PIIKind = "ip_address"
)

type piiPattern struct {
	kind PIIKind
	re   *regexp.Regexp
	// check filters regex matches; nil accepts all
	check func(string) bool
}

// Order matters: NRIC and card numbers are replaced before the looser
// phone pattern can claim their digits.
var piiPatterns = []piiPattern{
	{kind: PIIEmail, re: regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{kind: PIINRIC, re: regexp.MustCompile(`\b\d{6}-\d{2}-\d{4}\b`)},
	{kind: PIICreditCard, re: regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`), check: luhnValid},
	{kind: PIIIPAddress, re: regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`)},
	{kind: PIIPhone, re: regexp.MustCompile(`(?:\+?60|\b0)1\d[- ]?\d{3,4}[- ]?\d{4}\b`)},
}

// RedactPII replaces personal data in text with "[kind]" placeholders and
// reports which kinds were found. Statistical values such as years and
// decimals are left alone.
func RedactPII(text string) (string, []PIIKind) {
	var found []PIIKind
	for _, p := range piiPatterns {
		hit := false
		text = p.re.ReplaceAllStringFunc(text, func(m string) string {
			if p.check != nil && !p.check(m) {
				return m
			}
			hit = true
			return "[" + string(p.kind) + "]"
		})
		if hit {
			found = append(found, p.kind)
		}
	}
	return text, found
}

// luhnValid runs the Luhn checksum over the digits of s.
func luhnValid(s string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 13 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
