// Package redact removes personally identifiable information from API
// response bodies. Redaction is structural (sensitive keys) plus pattern
// based (sensitive-looking values anywhere), and fails closed: when a body
// cannot be parsed the caller must withhold it rather than pass it through.
package redact

import (
	"encoding/json"
	"strings"
)

// Placeholder replaces the entire value of a sensitive key.
const Placeholder = "[REDACTED]"

// sensitiveKeys are matched case-insensitively against JSON object keys.
// Matching is by normalized exact name, not substring, so "description"
// does not trip on "pii".
// "name" alone is deliberately absent: it labels products on invoice
// lines and catalog entries far more often than people.
var sensitiveKeys = map[string]struct{}{
	"customer_name":    {},
	"customername":     {},
	"phone":            {},
	"phone_number":     {},
	"mobile":           {},
	"contact":          {},
	"email":            {},
	"email_address":    {},
	"address":          {},
	"delivery_address": {},
	"street":           {},
	"gst_number":       {},
	"gstin":            {},
	"pan":              {},
	"pan_number":       {},
	"aadhaar":          {},
	"aadhar":           {},
	"ssn":              {},
	"national_id":      {},
	"password":         {},
	"secret":           {},
	"token":            {},
	"api_key":          {},
	"apikey":           {},
	"authorization":    {},
	"cvv":              {},
	"card_number":      {},
}

// IsSensitiveKey reports whether the key names a PII or secret field.
func IsSensitiveKey(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := sensitiveKeys[normalized]
	return ok
}

// Body redacts a JSON response body. The input is never mutated; the
// returned slice is a fresh document. A parse failure returns an error so
// the caller can fail closed.
func Body(raw []byte) ([]byte, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(Value(doc))
}

// Value redacts a decoded JSON value recursively.
func Value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for key, child := range val {
			if IsSensitiveKey(key) {
				out[key] = redactWhole(child)
				continue
			}
			out[key] = Value(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = Value(child)
		}
		return out
	case string:
		return ScrubText(val)
	default:
		return v
	}
}

// redactWhole blanks a sensitive key's value while preserving its shape,
// so clients keying on structure keep working.
func redactWhole(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for key, child := range val {
			out[key] = redactWhole(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = redactWhole(child)
		}
		return out
	case nil:
		return nil
	default:
		return Placeholder
	}
}
