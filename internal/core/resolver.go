package core

import (
	"strings"
	"unicode"
)

// ColumnMapping maps a canonical field to the original header label it was
// resolved from. A mapping returned by ResolveColumns is always complete.
type ColumnMapping map[string]string

// NormalizeLabel strips surrounding whitespace, lower-cases and removes every
// non-alphanumeric rune, so "Flow Rate", "flow_rate" and "FLOWRATE" all become
// "flowrate".
func NormalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResolveColumns maps the actual header labels onto the canonical schema.
//
// When two labels normalize to the same key the later one wins. Canonical
// fields are tried in CanonicalColumns order and each field's aliases in
// declared order. If any field is unresolved the returned
// *SchemaValidationError names all of them.
func ResolveColumns(labels []string, aliases *AliasTable) (ColumnMapping, error) {
	normalized := make(map[string]string, len(labels))
	for _, label := range labels {
		normalized[NormalizeLabel(label)] = label
	}

	mapping := make(ColumnMapping, len(CanonicalColumns))
	var missing []string

	for _, field := range CanonicalColumns {
		found := false
		for _, alias := range aliases.aliases[field] {
			if actual, ok := normalized[NormalizeLabel(alias)]; ok {
				mapping[field] = actual
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		return nil, &SchemaValidationError{Missing: missing}
	}
	return mapping, nil
}
