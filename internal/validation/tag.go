package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTagLength matches the tags.name column.
const MaxTagLength = 50

// NormalizeTag trims whitespace and a leading '#'. Empty results are skipped by callers.
func NormalizeTag(raw string) (string, error) {
	name := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxTagLength {
		return "", fmt.Errorf("tag %q exceeds %d characters", name, MaxTagLength)
	}
	return name, nil
}

// ParseNameList reads a form field holding either a JSON array of strings or a
// comma separated list. Invalid JSON is treated as an empty list.
func ParseNameList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "[") {
		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			return nil
		}
		return names
	}

	return strings.Split(raw, ",")
}
