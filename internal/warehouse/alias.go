package warehouse

import (
	"strings"
)

// NormalizeFactoryCode resolves a raw factory code through the alias map.
// Exact alias matches win over case-insensitive ones; unmapped codes are
// returned trimmed and upper-cased. Blank input yields "".
func NormalizeFactoryCode(raw string, aliases map[string]string) string {
	code := strings.TrimSpace(raw)
	if code == "" {
		return ""
	}
	if canonical, ok := lookupAlias(code, aliases); ok {
		return canonical
	}
	return strings.ToUpper(code)
}

// NormalizeEmployeeID resolves a raw employee id through the alias map.
// Unmapped ids are returned trimmed. Blank input yields "".
func NormalizeEmployeeID(raw string, aliases map[string]string) string {
	id := strings.TrimSpace(raw)
	if id == "" {
		return ""
	}
	if canonical, ok := lookupAlias(id, aliases); ok {
		return canonical
	}
	return id
}

func lookupAlias(key string, aliases map[string]string) (string, bool) {
	if canonical, ok := aliases[key]; ok {
		return strings.TrimSpace(canonical), true
	}
	for alias, canonical := range aliases {
		if strings.EqualFold(strings.TrimSpace(alias), key) {
			return strings.TrimSpace(canonical), true
		}
	}
	return "", false
}
