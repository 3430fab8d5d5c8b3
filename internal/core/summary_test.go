package core

import (
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f8(v float64) pgtype.Float8 {
	return pgtype.Float8{Float64: v, Valid: true}
}

func TestSummarize_TwoRowScenario(t *testing.T) {
	rows := []NormalizedRow{
		{EquipmentName: "Pump A", Type: "Pump", Flowrate: f8(120.5), Pressure: f8(2.3), Temperature: f8(65.0)},
		{EquipmentName: "Reactor R1", Type: "Reactor", Flowrate: f8(45.2), Pressure: f8(5.8), Temperature: f8(180.0)},
	}

	s := Summarize(rows)

	assert.Equal(t, 2, s.TotalCount)
	require.NotNil(t, s.Averages.Flowrate)
	require.NotNil(t, s.Averages.Pressure)
	require.NotNil(t, s.Averages.Temperature)
	assert.InDelta(t, 82.85, *s.Averages.Flowrate, 1e-9)
	assert.InDelta(t, 4.05, *s.Averages.Pressure, 1e-9)
	assert.InDelta(t, 122.5, *s.Averages.Temperature, 1e-9)
	assert.Equal(t, TypeDistribution{{"Pump", 1}, {"Reactor", 1}}, s.TypeDistribution)
	assert.Equal(t, CanonicalColumns, s.Columns)
}

func TestSummarize_AllMissingAverageIsNull(t *testing.T) {
	rows := []NormalizedRow{
		{EquipmentName: "A", Type: "Pump", Pressure: f8(0)},
		{EquipmentName: "B", Type: "Pump"},
	}

	s := Summarize(rows)

	assert.Nil(t, s.Averages.Flowrate)
	assert.Nil(t, s.Averages.Temperature)
	require.NotNil(t, s.Averages.Pressure)
	assert.Equal(t, 0.0, *s.Averages.Pressure)

	data, err := json.Marshal(s.Averages)
	require.NoError(t, err)
	assert.JSONEq(t, `{"flowrate":null,"pressure":0,"temperature":null}`, string(data))
}

func TestSummarize_MeanSkipsMissing(t *testing.T) {
	rows := []NormalizedRow{
		{Flowrate: f8(10)},
		{},
		{Flowrate: f8(20)},
	}

	s := Summarize(rows)
	require.NotNil(t, s.Averages.Flowrate)
	assert.InDelta(t, 15.0, *s.Averages.Flowrate, 1e-9)
}

func TestSummarize_TypeDistribution(t *testing.T) {
	rows := []NormalizedRow{
		{Type: "Valve"},
		{Type: " Pump "},
		{Type: ""},
		{Type: "nan"},
		{Type: "Pump"},
		{Type: "pump"},
	}

	s := Summarize(rows)

	assert.Equal(t, TypeDistribution{
		{"Valve", 1},
		{"Pump", 2},
		{UnknownType, 2},
		{"pump", 1},
	}, s.TypeDistribution)
	assert.Equal(t, s.TotalCount, s.TypeDistribution.Total())
}

func TestTypeDistributionJSON(t *testing.T) {
	dist := TypeDistribution{{"Reactor", 3}, {"Pump", 1}, {UnknownType, 2}}

	data, err := json.Marshal(dist)
	require.NoError(t, err)
	assert.Equal(t, `{"Reactor":3,"Pump":1,"Unknown":2}`, string(data))

	var back TypeDistribution
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, dist, back)

	count, ok := back.Get("Pump")
	assert.True(t, ok)
	assert.Equal(t, 1, count)
	assert.Equal(t, map[string]int{"Reactor": 3, "Pump": 1, "Unknown": 2}, back.Map())
}

func TestTypeDistributionJSON_Empty(t *testing.T) {
	data, err := json.Marshal(TypeDistribution{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	var d TypeDistribution
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &d))
}

func TestTypeBucket(t *testing.T) {
	assert.Equal(t, UnknownType, TypeBucket(""))
	assert.Equal(t, UnknownType, TypeBucket("   "))
	assert.Equal(t, UnknownType, TypeBucket("nan"))
	assert.Equal(t, "NaN", TypeBucket("NaN"))
	assert.Equal(t, "Heat Exchanger", TypeBucket(" Heat Exchanger "))
}
