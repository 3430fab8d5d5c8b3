package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/equipstat/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func render(t *testing.T, ds core.Dataset) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Dataset(ds).Render(context.Background(), &buf))
	return buf.String()
}

func TestDataset_FullSummary(t *testing.T) {
	ds := core.Dataset{
		ID:               7,
		OriginalFilename: "plant.csv",
		UploadedAt:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Summary: core.DatasetSummary{
			TotalCount: 2,
			Averages: core.Averages{
				Flowrate:    ptr(82.85),
				Pressure:    ptr(4.05),
				Temperature: ptr(122.5),
			},
			TypeDistribution: core.TypeDistribution{
				{Label: "Pump", Count: 1},
				{Label: "Reactor", Count: 1},
			},
		},
	}

	html := render(t, ds)

	assert.Contains(t, html, "<title>Equipment Dataset Report (#7)</title>")
	assert.Contains(t, html, "<h1>Equipment Dataset Report (#7)</h1>")
	assert.Contains(t, html, "plant.csv")
	assert.Contains(t, html, "2024-03-01T12:00:00Z")
	assert.Contains(t, html, "<td>Flowrate</td><td>82.85</td>")
	assert.Contains(t, html, "<td>Pressure</td><td>4.05</td>")
	assert.Contains(t, html, "<td>Temperature</td><td>122.50</td>")
	assert.Less(t, strings.Index(html, "<td>Pump</td>"), strings.Index(html, "<td>Reactor</td>"))
	assert.NotContains(t, html, NoData)
}

func TestDataset_MissingValues(t *testing.T) {
	ds := core.Dataset{ID: 3, Summary: core.DatasetSummary{TotalCount: 0}}

	html := render(t, ds)

	assert.Contains(t, html, "<td>Flowrate</td><td>-</td>")
	assert.Contains(t, html, "<td>Temperature</td><td>-</td>")
	assert.Contains(t, html, NoData)
}

func TestDataset_EscapesUserText(t *testing.T) {
	ds := core.Dataset{
		ID:               1,
		OriginalFilename: `<script>alert("x")</script>.csv`,
		Summary: core.DatasetSummary{
			TotalCount:       1,
			TypeDistribution: core.TypeDistribution{{Label: "<b>Pump</b>", Count: 1}},
		},
	}

	html := render(t, ds)

	assert.NotContains(t, html, "<script>")
	assert.NotContains(t, html, "<b>Pump</b>")
	assert.Contains(t, html, "&lt;b&gt;Pump&lt;/b&gt;")
}

func TestFormatAverage(t *testing.T) {
	assert.Equal(t, Missing, FormatAverage(nil))
	assert.Equal(t, "0.00", FormatAverage(ptr(0)))
	assert.Equal(t, "1.24", FormatAverage(ptr(1.236)))
}
