package core

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
)

func TestToFloat8(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want pgtype.Float8
	}{
		{"nil", nil, pgtype.Float8{}},
		{"empty string", "", pgtype.Float8{}},
		{"whitespace", "   ", pgtype.Float8{}},
		{"integer text", "42", pgtype.Float8{Float64: 42, Valid: true}},
		{"padded decimal", " 3.5 ", pgtype.Float8{Float64: 3.5, Valid: true}},
		{"negative", "-0.25", pgtype.Float8{Float64: -0.25, Valid: true}},
		{"exponent", "1e3", pgtype.Float8{Float64: 1000, Valid: true}},
		{"non numeric", "abc", pgtype.Float8{}},
		{"units suffix", "12 bar", pgtype.Float8{}},
		{"nan text", "NaN", pgtype.Float8{}},
		{"inf text", "inf", pgtype.Float8{}},
		{"hex float", "0x1p4", pgtype.Float8{}},
		{"signed hex", "-0X10", pgtype.Float8{}},
		{"leading zero decimal", "0.5", pgtype.Float8{Float64: 0.5, Valid: true}},
		{"float64", 2.5, pgtype.Float8{Float64: 2.5, Valid: true}},
		{"float64 nan", math.NaN(), pgtype.Float8{}},
		{"int", 7, pgtype.Float8{Float64: 7, Valid: true}},
		{"int64", int64(9), pgtype.Float8{Float64: 9, Valid: true}},
		{"bool", true, pgtype.Float8{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToFloat8(tt.in))
		})
	}
}

func TestToText(t *testing.T) {
	assert.Equal(t, "", ToText(nil))
	assert.Equal(t, "", ToText(math.NaN()))
	assert.Equal(t, "Pump-1", ToText("Pump-1"))
	assert.Equal(t, "12", ToText(12))
	assert.Equal(t, "1.5", ToText(1.5))
}

func TestToLabel(t *testing.T) {
	assert.Equal(t, "", ToLabel(nil))
	assert.Equal(t, "nan", ToLabel(math.NaN()))
	assert.Equal(t, " Valve ", ToLabel(" Valve "))
}

func TestCoerceRow(t *testing.T) {
	mapping := ColumnMapping{
		FieldEquipmentName: "Name",
		FieldType:          "Kind",
		FieldFlowrate:      "Q",
		FieldPressure:      "P",
		FieldTemperature:   "T",
	}
	raw := RawRow{"Name": "Pump-1", "Kind": "Pump", "Q": "120.5", "P": "n/a", "T": nil, "extra": "x"}

	got := CoerceRow(raw, mapping)

	assert.Equal(t, NormalizedRow{
		EquipmentName: "Pump-1",
		Type:          "Pump",
		Flowrate:      pgtype.Float8{Float64: 120.5, Valid: true},
	}, got)
	assert.Equal(t, []any{"Pump-1", "Pump", 120.5, nil, nil}, got.Values())
	assert.Equal(t, []string{"Pump-1", "Pump", "120.5", "", ""}, got.Record())
}

func TestNormalizedRowJSON(t *testing.T) {
	row := NormalizedRow{
		EquipmentName: "Valve-2",
		Type:          "Valve",
		Pressure:      pgtype.Float8{Float64: 4.5, Valid: true},
	}

	data, err := json.Marshal(row)
	assert.NoError(t, err)
	assert.JSONEq(t,
		`{"equipment_name":"Valve-2","type":"Valve","flowrate":null,"pressure":4.5,"temperature":null}`,
		string(data),
	)
}

func TestFormatFloat8(t *testing.T) {
	assert.Equal(t, "", FormatFloat8(pgtype.Float8{}))
	assert.Equal(t, "100", FormatFloat8(pgtype.Float8{Float64: 100, Valid: true}))
	assert.Equal(t, "0.1", FormatFloat8(pgtype.Float8{Float64: 0.1, Valid: true}))
}
