package core

// schema.go defines the canonical equipment schema and the alias table used to
// map arbitrary upload headers onto it.

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Canonical field names. Every normalized table exposes exactly these five.
const (
	FieldEquipmentName = "equipment_name"
	FieldType          = "type"
	FieldFlowrate      = "flowrate"
	FieldPressure      = "pressure"
	FieldTemperature   = "temperature"
)

// CanonicalColumns is the fixed column order for normalized tables, summaries
// and CSV re-export.
var CanonicalColumns = []string{
	FieldEquipmentName,
	FieldType,
	FieldFlowrate,
	FieldPressure,
	FieldTemperature,
}

// DisplayHeaders are the human-readable labels written on CSV re-export.
// Each one resolves back to its canonical field through DefaultAliases.
var DisplayHeaders = []string{
	"Equipment Name",
	"Type",
	"Flowrate",
	"Pressure",
	"Temperature",
}

// Columns returns a copy of CanonicalColumns.
func Columns() []string {
	out := make([]string, len(CanonicalColumns))
	copy(out, CanonicalColumns)
	return out
}

// AliasTable maps each canonical field to an ordered list of accepted header
// spellings. Order matters: the first alias that matches an incoming label wins.
//
// An AliasTable is built once at startup and shared read-only.
type AliasTable struct {
	aliases map[string][]string
}

// defaultAliasSpec is the built-in alias list, in canonical field order.
var defaultAliasSpec = map[string][]string{
	FieldEquipmentName: {"equipment name", "equipment", "name", "equipment_name", "equipmentname"},
	FieldType:          {"type", "equipment type", "equipment_type"},
	FieldFlowrate:      {"flowrate", "flow rate", "flow_rate"},
	FieldPressure:      {"pressure"},
	FieldTemperature:   {"temperature", "temp"},
}

// DefaultAliases returns the built-in alias table.
func DefaultAliases() *AliasTable {
	t, err := NewAliasTable(defaultAliasSpec)
	if err != nil {
		// defaultAliasSpec covers every canonical field
		panic(err)
	}
	return t
}

// NewAliasTable builds an AliasTable from a field -> aliases map.
// Every canonical field must have at least one alias and no unknown fields
// are accepted.
func NewAliasTable(spec map[string][]string) (*AliasTable, error) {
	known := make(map[string]bool, len(CanonicalColumns))
	for _, f := range CanonicalColumns {
		known[f] = true
	}
	for field := range spec {
		if !known[field] {
			return nil, fmt.Errorf("alias table: unknown canonical field %q", field)
		}
	}

	t := &AliasTable{aliases: make(map[string][]string, len(CanonicalColumns))}
	for _, field := range CanonicalColumns {
		list := spec[field]
		if len(list) == 0 {
			return nil, fmt.Errorf("alias table: no aliases for %q", field)
		}
		t.aliases[field] = append([]string(nil), list...)
	}
	return t, nil
}

// Aliases returns a copy of the ordered alias list for a canonical field.
func (t *AliasTable) Aliases(field string) []string {
	return append([]string(nil), t.aliases[field]...)
}

// aliasFile is the on-disk shape of an alias override file:
//
//	aliases:
//	  flowrate: ["flowrate", "flow rate", "q"]
type aliasFile struct {
	Aliases map[string][]string `yaml:"aliases"`
}

// LoadAliasTable reads an alias override file. Fields the file omits keep
// their built-in aliases.
func LoadAliasTable(path string) (*AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}

	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse alias file %s: %w", path, err)
	}

	merged := make(map[string][]string, len(defaultAliasSpec))
	for field, list := range defaultAliasSpec {
		merged[field] = list
	}
	for field, list := range f.Aliases {
		merged[field] = list
	}
	return NewAliasTable(merged)
}
