package logger

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Sanitizer masks sensitive query parameters to prevent accidental logging of
// secrets. Detection is based on column names appearing in the SQL text.
type Sanitizer struct {
	maskValue string
	patterns  []*regexp.Regexp
}

// NewSanitizer creates a sanitizer for the specified sensitive field names.
// If no fields are provided, a default set of common sensitive names is used.
func NewSanitizer(sensitiveFields []string) *Sanitizer {
	if len(sensitiveFields) == 0 {
		sensitiveFields = []string{
			"password", "passwd", "pwd",
			"token", "api_key", "apikey", "api_token",
			"secret", "auth", "authorization",
			"credit_card", "card_number", "cvv", "cvc",
			"ssn", "social_security",
			"private_key", "priv_key",
		}
	}

	patterns := make([]*regexp.Regexp, 0, len(sensitiveFields))
	for _, field := range sensitiveFields {
		patterns = append(patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(field)+`\b`))
	}

	return &Sanitizer{
		maskValue: "***REDACTED***",
		patterns:  patterns,
	}
}

// MaskParams returns a copy of params with values masked when the SQL text
// references a sensitive field. The original map is not modified.
func (s *Sanitizer) MaskParams(sql string, params map[string]any) map[string]any {
	if len(params) == 0 || !s.containsSensitivePattern(sql) {
		return params
	}

	masked := make(map[string]any, len(params))
	for name := range params {
		masked[name] = s.maskValue
	}
	return masked
}

// containsSensitivePattern checks if SQL contains any sensitive field patterns.
func (s *Sanitizer) containsSensitivePattern(sql string) bool {
	for _, pattern := range s.patterns {
		if pattern.MatchString(sql) {
			return true
		}
	}
	return false
}

// FormatParams converts a parameter map to a stable string representation for
// logging. Keys are sorted so log lines are deterministic.
func (s *Sanitizer) FormatParams(params map[string]any) string {
	if len(params) == 0 {
		return "{}"
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + s.formatValue(params[name])
	}

	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single parameter value, truncating very long strings.
func (s *Sanitizer) formatValue(v any) string {
	if v == nil {
		return "NULL"
	}

	str := fmt.Sprintf("%v", v)

	const maxLen = 100
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}

	return str
}
