package observe

import "strings"

// RedactedMarker replaces the value of every sensitive field.
const RedactedMarker = "[REDACTED]"

// DefaultSensitiveKeys lists the substrings that mark a field as sensitive.
// Identity fields such as username or email are deliberately absent.
var DefaultSensitiveKeys = []string{
	"password",
	"token",
	"api_key",
	"apikey",
	"secret",
	"credential",
	"authorization",
	"private_key",
}

// RedactionPolicy decides which fields are replaced with RedactedMarker.
// A field is sensitive when its name contains any denylisted substring,
// ignoring case. The zero value redacts nothing.
type RedactionPolicy struct {
	keys []string
}

// NewRedactionPolicy builds a policy from the given substrings.
func NewRedactionPolicy(keys ...string) RedactionPolicy {
	lowered := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			lowered = append(lowered, k)
		}
	}
	return RedactionPolicy{keys: lowered}
}

// DefaultRedactionPolicy returns the policy built from DefaultSensitiveKeys.
func DefaultRedactionPolicy() RedactionPolicy {
	return NewRedactionPolicy(DefaultSensitiveKeys...)
}

// IsSensitive reports whether name matches the denylist.
func (p RedactionPolicy) IsSensitive(name string) bool {
	if len(p.keys) == 0 {
		return false
	}
	lower := strings.ToLower(name)
	for _, k := range p.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Redact returns RedactedMarker for sensitive names and value otherwise.
func (p RedactionPolicy) Redact(name string, value any) any {
	if p.IsSensitive(name) {
		return RedactedMarker
	}
	return value
}

// Sanitize returns a new map with Redact applied to every entry. A nil or
// empty input yields an empty, non-nil map. The input is never modified.
func (p RedactionPolicy) Sanitize(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = p.Redact(k, v)
	}
	return out
}
