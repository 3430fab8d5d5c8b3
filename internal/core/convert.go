package core

// convert.go turns raw cell values into the typed NormalizedRow model.
//
// Cells arrive already decoded as text, numbers or nil (empty). Numeric fields
// never fail: anything that does not parse to a finite number becomes an
// invalid pgtype.Float8, which is the missing marker and encodes as JSON null.

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// RawRow is one decoded source row keyed by original header label.
type RawRow map[string]any

// RawTable is a decoded upload: ordered header labels plus data rows.
type RawTable struct {
	Columns []string
	Rows    []RawRow
}

// NormalizedRow is one record expressed in canonical fields.
type NormalizedRow struct {
	EquipmentName string        `json:"equipment_name"`
	Type          string        `json:"type"`
	Flowrate      pgtype.Float8 `json:"flowrate"`
	Pressure      pgtype.Float8 `json:"pressure"`
	Temperature   pgtype.Float8 `json:"temperature"`
}

// Values returns the row in CanonicalColumns order. Missing numerics are nil.
func (r NormalizedRow) Values() []any {
	return []any{
		r.EquipmentName,
		r.Type,
		float8Value(r.Flowrate),
		float8Value(r.Pressure),
		float8Value(r.Temperature),
	}
}

// Record returns the row as CSV cells in CanonicalColumns order.
// Missing numerics become empty cells.
func (r NormalizedRow) Record() []string {
	return []string{
		r.EquipmentName,
		r.Type,
		FormatFloat8(r.Flowrate),
		FormatFloat8(r.Pressure),
		FormatFloat8(r.Temperature),
	}
}

// CoerceRow converts one raw row into a NormalizedRow using a complete mapping.
func CoerceRow(raw RawRow, mapping ColumnMapping) NormalizedRow {
	return NormalizedRow{
		EquipmentName: ToText(raw[mapping[FieldEquipmentName]]),
		Type:          ToLabel(raw[mapping[FieldType]]),
		Flowrate:      ToFloat8(raw[mapping[FieldFlowrate]]),
		Pressure:      ToFloat8(raw[mapping[FieldPressure]]),
		Temperature:   ToFloat8(raw[mapping[FieldTemperature]]),
	}
}

// ToText converts a cell to text. Empty and NaN-like values become "".
func ToText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(t) {
			return ""
		}
	case float32:
		if math.IsNaN(float64(t)) {
			return ""
		}
	}
	return stringify(v)
}

// ToLabel converts a categorical cell to text, keeping whatever string form
// the value has. A NaN float becomes "nan"; the summarizer buckets it.
func ToLabel(v any) string {
	if v == nil {
		return ""
	}
	return stringify(v)
}

// ToFloat8 parses a numeric cell. Non-numeric text, empty cells and
// non-finite values yield Valid=false.
func ToFloat8(v any) pgtype.Float8 {
	var f float64
	switch t := v.(type) {
	case nil:
		return pgtype.Float8{}
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" || isHexLiteral(s) {
			return pgtype.Float8{}
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return pgtype.Float8{}
		}
		f = parsed
	default:
		return pgtype.Float8{}
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: f, Valid: true}
}

// isHexLiteral reports a 0x-prefixed number, which ParseFloat would accept.
func isHexLiteral(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// FormatFloat8 renders a Float8 for CSV output. Missing values are "".
func FormatFloat8(f pgtype.Float8) string {
	if !f.Valid {
		return ""
	}
	return strconv.FormatFloat(f.Float64, 'f', -1, 64)
}

func float8Value(f pgtype.Float8) any {
	if !f.Valid {
		return nil
	}
	return f.Float64
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if math.IsNaN(t) {
			return "nan"
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		if math.IsNaN(float64(t)) {
			return "nan"
		}
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
