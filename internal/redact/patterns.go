package redact

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Pattern scanning catches PII embedded in free text (notes, item names,
// model output) that no key-based rule can see.
var (
	emailPattern   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	cardPattern    = regexp.MustCompile(`\b(?:\d{4}[ \-]?){3}\d{4}\b`)
	aadhaarPattern = regexp.MustCompile(`\b\d{4}\s?\d{4}\s?\d{4}\b`)
	gstinPattern   = regexp.MustCompile(`\b\d{2}[A-Z]{5}\d{4}[A-Z][0-9A-Z]Z[0-9A-Z]\b`)
	panPattern     = regexp.MustCompile(`\b[A-Z]{5}\d{4}[A-Z]\b`)
	ssnPattern     = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	ukNIPattern    = regexp.MustCompile(`\b[A-CEGHJ-PR-TW-Z]{2}\d{6}[A-D]\b`)
	ipv4Pattern    = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	phonePattern   = regexp.MustCompile(`\+?\d[\d\s\-()]{5,18}\d`)
)

// Regions tried when a phone candidate has no country prefix. Order
// reflects where the product runs.
var phoneRegions = []string{"IN", "US", "GB", "CA", "AU", "DE", "FR", "JP", "SG"}

// ScrubText replaces recognizable PII patterns in free text. Longer, more
// specific patterns run before the generic ones so a GSTIN is not half
// eaten by the PAN rule.
func ScrubText(text string) string {
	if text == "" {
		return text
	}

	out := emailPattern.ReplaceAllString(text, "[EMAIL REDACTED]")
	out = gstinPattern.ReplaceAllString(out, "[GST REDACTED]")
	out = cardPattern.ReplaceAllString(out, "[CARD REDACTED]")
	out = aadhaarPattern.ReplaceAllString(out, "[AADHAAR REDACTED]")
	out = panPattern.ReplaceAllString(out, "[PAN REDACTED]")
	out = ssnPattern.ReplaceAllString(out, "[SSN REDACTED]")
	out = ukNIPattern.ReplaceAllString(out, "[NI REDACTED]")
	out = ipv4Pattern.ReplaceAllString(out, "[IP REDACTED]")
	out = scrubPhones(out)
	return out
}

// scrubPhones validates each numeric candidate semantically instead of
// trusting digit shape; quantities like "5000" or order totals survive.
func scrubPhones(text string) string {
	return phonePattern.ReplaceAllStringFunc(text, func(candidate string) string {
		if digitCount(candidate) < 7 {
			return candidate
		}
		if isValidPhone(candidate) {
			return "[PHONE REDACTED]"
		}
		return candidate
	})
}

func isValidPhone(candidate string) bool {
	if strings.HasPrefix(strings.TrimSpace(candidate), "+") {
		num, err := phonenumbers.Parse(candidate, "")
		return err == nil && phonenumbers.IsValidNumber(num)
	}
	for _, region := range phoneRegions {
		num, err := phonenumbers.Parse(candidate, region)
		if err == nil && phonenumbers.IsValidNumber(num) {
			return true
		}
	}
	return false
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
