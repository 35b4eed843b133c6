package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// MaskedValue is the string used to replace sensitive values.
const MaskedValue = "[REDACTED]"

// SensitiveFields contains attribute keys whose values are masked in logs.
var SensitiveFields = map[string]bool{
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"access_key":    true,
	"secret_key":    true,
	"private_key":   true,
	"credentials":   true,
	"authorization": true,
	"db_password":   true,
}

// IsSensitiveField reports whether an attribute key names a secret.
func IsSensitiveField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	if SensitiveFields[lower] {
		return true
	}
	for sensitive := range SensitiveFields {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

// SensitivePatterns match secrets inside raw feed lines. Each pattern keeps
// its first group and masks the rest of the match.
var SensitivePatterns = []*regexp.Regexp{
	// KEY=value and key: value pairs, as in leaked .env files
	regexp.MustCompile(`(?i)((?:db_)?(?:password|passwd|api[_-]?key|token|secret)\s*[=:]\s*)\S+`),
	// sshpass -p <password>
	regexp.MustCompile(`(?i)(sshpass\s+-p\s*)\S+`),
	// Bearer tokens
	regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9_\-\.]+`),
	// Captured flags
	regexp.MustCompile(`(?i)(flag\{)[^\}]*\}`),
	// AWS access key IDs
	regexp.MustCompile(`()(?:AKIA|ASIA)[A-Z0-9]{16}`),
}

// MaskSecrets masks secret-looking values in a raw feed line before it is
// written to operational logs.
func MaskSecrets(s string) string {
	result := s
	for _, pattern := range SensitivePatterns {
		result = pattern.ReplaceAllString(result, "${1}"+MaskedValue)
	}
	return result
}

// MaskString masks the middle of s, keeping showFirst and showLast bytes.
func MaskString(s string, showFirst, showLast int) string {
	if s == "" {
		return s
	}
	if len(s) <= showFirst+showLast+3 {
		return MaskedValue
	}
	return s[:showFirst] + "***" + s[len(s)-showLast:]
}

// replaceSensitive is a slog ReplaceAttr hook masking sensitive attributes.
func replaceSensitive(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	if IsSensitiveField(a.Key) {
		if a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, MaskedValue)
	}
	return a
}
