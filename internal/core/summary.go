package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// UnknownType is the distribution bucket for empty or "nan" type labels.
const UnknownType = "Unknown"

// Averages holds per-field means. A nil pointer means every value was missing.
type Averages struct {
	Flowrate    *float64 `json:"flowrate"`
	Pressure    *float64 `json:"pressure"`
	Temperature *float64 `json:"temperature"`
}

// TypeCount is one bucket of the type distribution.
type TypeCount struct {
	Label string
	Count int
}

// TypeDistribution is an ordered label -> count mapping. Buckets keep the
// order in which their label was first seen. It encodes as a JSON object.
type TypeDistribution []TypeCount

// Total returns the sum of all bucket counts.
func (d TypeDistribution) Total() int {
	n := 0
	for _, tc := range d {
		n += tc.Count
	}
	return n
}

// Get returns the count for a label.
func (d TypeDistribution) Get(label string) (int, bool) {
	for _, tc := range d {
		if tc.Label == label {
			return tc.Count, true
		}
	}
	return 0, false
}

// Map returns the distribution as an unordered map.
func (d TypeDistribution) Map() map[string]int {
	m := make(map[string]int, len(d))
	for _, tc := range d {
		m[tc.Label] = tc.Count
	}
	return m
}

// MarshalJSON writes the buckets as an object in first-seen order.
func (d TypeDistribution) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tc := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(tc.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", tc.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping key order as written.
func (d *TypeDistribution) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*d = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("type_distribution: expected object, got %v", tok)
	}

	out := TypeDistribution{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		label, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("type_distribution: expected string key, got %v", keyTok)
		}
		var count int
		if err := dec.Decode(&count); err != nil {
			return fmt.Errorf("type_distribution[%q]: %w", label, err)
		}
		out = append(out, TypeCount{Label: label, Count: count})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}

// DatasetSummary is the derived, persisted description of a dataset.
type DatasetSummary struct {
	TotalCount       int              `json:"total_count"`
	Averages         Averages         `json:"averages"`
	TypeDistribution TypeDistribution `json:"type_distribution"`
	Columns          []string         `json:"columns"`
}

// Summarize computes the summary for an ordered row sequence.
func Summarize(rows []NormalizedRow) DatasetSummary {
	var flow, pres, temp meanAccumulator
	dist := TypeDistribution{}
	index := make(map[string]int)

	for _, row := range rows {
		flow.add(row.Flowrate)
		pres.add(row.Pressure)
		temp.add(row.Temperature)

		label := TypeBucket(row.Type)
		if i, ok := index[label]; ok {
			dist[i].Count++
			continue
		}
		index[label] = len(dist)
		dist = append(dist, TypeCount{Label: label, Count: 1})
	}

	return DatasetSummary{
		TotalCount: len(rows),
		Averages: Averages{
			Flowrate:    flow.mean(),
			Pressure:    pres.mean(),
			Temperature: temp.mean(),
		},
		TypeDistribution: dist,
		Columns:          Columns(),
	}
}

// TypeBucket returns the distribution label for a coerced type value.
func TypeBucket(t string) string {
	t = strings.TrimSpace(t)
	if t == "" || t == "nan" {
		return UnknownType
	}
	return t
}

type meanAccumulator struct {
	sum   float64
	count int
}

func (m *meanAccumulator) add(v pgtype.Float8) {
	if !v.Valid {
		return
	}
	m.sum += v.Float64
	m.count++
}

func (m *meanAccumulator) mean() *float64 {
	if m.count == 0 {
		return nil
	}
	v := m.sum / float64(m.count)
	return &v
}
