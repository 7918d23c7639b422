package config

import (
	"os"
	"regexp"
)

// envRef matches ${VAR_NAME} references. Bare $VAR is left untouched so
// values containing literal dollar signs survive expansion.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv expands ${VAR} references in YAML content from the process
// environment. Missing variables expand to the empty string; validation
// catches required fields that end up empty.
//
// Examples:
//   - api_key: ${OPENAI_API_KEY}       → the variable's value
//   - base_url: ${HOST}:${PORT}/v1     → both variables expanded
//   - note: "costs $5"                 → preserved literally
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envRef.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}
