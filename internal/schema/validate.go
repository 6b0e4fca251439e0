package schema

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

func compiledPattern(pattern string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		// Catalog patterns are static; a bad one is a programming error.
		panic(fmt.Sprintf("schema: invalid pattern %q: %v", pattern, err))
	}
	patternCache[pattern] = re
	return re
}

// Validate checks data against the given field definitions and collects every
// violation, keyed by field id. It is total and never fail-fast: N independent
// problems yield N entries. An empty map means the data passed.
func Validate(data map[string]any, fields []FieldDef) map[string]string {
	violations := make(map[string]string)
	for _, fd := range fields {
		validateField(data, fd, fd.ID, violations)
	}
	return violations
}

func validateField(data map[string]any, fd FieldDef, key string, violations map[string]string) {
	value, present := data[fd.ID]
	if !present || value == nil {
		if fd.Required {
			violations[key] = fmt.Sprintf("%s is required", fd.Label)
		}
		return
	}

	switch fd.Type {
	case TypeArray:
		items, ok := value.([]any)
		if !ok {
			violations[key] = fmt.Sprintf("%s must be a list", fd.Label)
			return
		}
		if fd.Required && len(items) == 0 {
			violations[key] = fmt.Sprintf("%s must have at least one entry", fd.Label)
			return
		}
		for i, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				violations[fmt.Sprintf("%s[%d]", key, i)] = fmt.Sprintf("%s entry must be an object", fd.Label)
				continue
			}
			for _, itemDef := range fd.ItemFields {
				validateField(entry, itemDef, fmt.Sprintf("%s[%d].%s", key, i, itemDef.ID), violations)
			}
		}

	case TypeNumber:
		num, ok := asNumber(value)
		if !ok {
			violations[key] = fmt.Sprintf("%s must be a number", fd.Label)
			return
		}
		if fd.Min != nil && num < *fd.Min {
			violations[key] = fmt.Sprintf("%s must be at least %v", fd.Label, *fd.Min)
			return
		}
		if fd.Max != nil && num > *fd.Max {
			violations[key] = fmt.Sprintf("%s must be at most %v", fd.Label, *fd.Max)
		}

	case TypeBoolean, TypeCheckbox:
		if _, ok := value.(bool); !ok {
			violations[key] = fmt.Sprintf("%s must be true or false", fd.Label)
		}

	default:
		str, ok := value.(string)
		if !ok {
			violations[key] = fmt.Sprintf("%s must be a string", fd.Label)
			return
		}
		if fd.Required && strings.TrimSpace(str) == "" {
			violations[key] = fmt.Sprintf("%s is required", fd.Label)
			return
		}
		if fd.MinLength > 0 && len(str) < fd.MinLength {
			violations[key] = fmt.Sprintf("%s must be at least %d characters", fd.Label, fd.MinLength)
			return
		}
		if fd.MaxLength > 0 && len(str) > fd.MaxLength {
			violations[key] = fmt.Sprintf("%s must be at most %d characters", fd.Label, fd.MaxLength)
			return
		}
		if fd.Pattern != "" && !compiledPattern(fd.Pattern).MatchString(str) {
			violations[key] = fmt.Sprintf("%s is not in a valid format", fd.Label)
			return
		}
		if len(fd.Options) > 0 && !contains(fd.Options, str) {
			violations[key] = fmt.Sprintf("%s must be one of the allowed options", fd.Label)
		}
	}
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func contains(options []string, value string) bool {
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}

// ValidateKnown validates only the fields present in data against their
// catalog definitions; unknown keys are rejected so typos surface early.
func ValidateKnown(data map[string]any) map[string]string {
	violations := make(map[string]string)
	for id := range data {
		fd, ok := FieldByID(id)
		if !ok {
			violations[id] = fmt.Sprintf("unknown field: %s", id)
			continue
		}
		// Required-presence is a completeness concern, not a per-update one.
		fd.Required = false
		validateField(data, fd, fd.ID, violations)
	}
	return violations
}
