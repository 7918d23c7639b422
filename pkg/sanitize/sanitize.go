// Package sanitize scrubs credential material from text before it is
// persisted or returned to clients. Error messages from capability clients
// can embed request URLs, auth headers, or raw payload fragments; Scrub
// removes the secret parts while keeping the rest of the message intact.
package sanitize

import (
	"fmt"
	"regexp"
)

// Redacted is the marker substituted for scrubbed credential material.
const Redacted = "[REDACTED]"

// compiledPattern holds a pre-compiled regex with its replacement.
type compiledPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// builtinPatterns are applied in order. Order matters: header-shaped secrets
// are scrubbed before the generic key/value patterns so the more specific
// replacement wins.
var builtinPatterns = []compiledPattern{
	{
		name:        "bearer_token",
		regex:       regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`),
		replacement: "Bearer " + Redacted,
	},
	{
		name:        "api_key_header",
		regex:       regexp.MustCompile(`(?i)\b(x-api-key|api-key|authorization)\s*:\s*\S+`),
		replacement: "$1: " + Redacted,
	},
	{
		name:        "url_userinfo",
		regex:       regexp.MustCompile(`\b([a-zA-Z][a-zA-Z0-9+.-]*://)[^/@\s]+@`),
		replacement: "$1" + Redacted + "@",
	},
	{
		name:        "query_param_secret",
		regex:       regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|token|secret|password|key)=[^&\s"']+`),
		replacement: "$1=" + Redacted,
	},
	{
		name:        "json_field_secret",
		regex:       regexp.MustCompile(`(?i)"(api[_-]?key|access[_-]?token|token|secret|password|authorization)"\s*:\s*"[^"]*"`),
		replacement: `"$1": "` + Redacted + `"`,
	},
	{
		name:        "sk_prefixed_key",
		regex:       regexp.MustCompile(`\bsk-[A-Za-z0-9._-]{8,}`),
		replacement: Redacted,
	},
}

// Scrub replaces credential material in s with [REDACTED] markers.
// Safe on arbitrary input; returns s unchanged when nothing matches.
func Scrub(s string) string {
	if s == "" {
		return s
	}
	for _, p := range builtinPatterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}

// Error returns the scrubbed message of err, or "" for a nil error.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return Scrub(err.Error())
}

// Errorf formats like fmt.Errorf and scrubs the resulting message.
// The returned error does not wrap its arguments: scrubbing would be
// pointless if callers could recover the original text via Unwrap.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%s", Scrub(fmt.Sprintf(format, args...)))
}
