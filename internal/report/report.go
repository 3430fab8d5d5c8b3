// Package report renders a persisted dataset summary as a standalone HTML page.
//
// The report reads only the stored summary. It never touches the raw upload,
// so it stays available even when the blob store is degraded.
package report

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/JonMunkholm/equipstat/internal/core"
	"github.com/a-h/templ"
)

// Missing is shown in place of an average with no valid values.
const Missing = "-"

// NoData is shown when the type distribution is empty.
const NoData = "(no data)"

// Title returns the report heading for a dataset.
func Title(ds core.Dataset) string {
	return fmt.Sprintf("Equipment Dataset Report (#%d)", ds.ID)
}

// FormatAverage renders a mean with two decimals, or Missing when nil.
func FormatAverage(v *float64) string {
	if v == nil {
		return Missing
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// Dataset returns a component rendering the summary report for ds.
func Dataset(ds core.Dataset) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		title := Title(ds)
		sum := ds.Summary

		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`)
		p.text(title)
		p.raw(`</title><style>` + stylesheet + `</style></head><body>`)

		p.raw(`<h1>`)
		p.text(title)
		p.raw(`</h1><dl>`)
		p.field("File", ds.OriginalFilename)
		p.field("Uploaded", ds.UploadedAt.UTC().Format(time.RFC3339))
		p.field("Total equipment", strconv.Itoa(sum.TotalCount))
		p.raw(`</dl>`)

		p.raw(`<h2>Averages</h2><table class="averages"><tbody>`)
		p.row("Flowrate", FormatAverage(sum.Averages.Flowrate))
		p.row("Pressure", FormatAverage(sum.Averages.Pressure))
		p.row("Temperature", FormatAverage(sum.Averages.Temperature))
		p.raw(`</tbody></table>`)

		p.raw(`<h2>Type distribution</h2>`)
		if len(sum.TypeDistribution) == 0 {
			p.raw(`<p class="empty">`)
			p.text(NoData)
			p.raw(`</p>`)
		} else {
			p.raw(`<table class="distribution"><thead><tr><th>Type</th><th>Count</th></tr></thead><tbody>`)
			for _, tc := range sum.TypeDistribution {
				p.row(tc.Label, strconv.Itoa(tc.Count))
			}
			p.raw(`</tbody></table>`)
		}

		p.raw(`</body></html>`)
		return p.err
	})
}

const stylesheet = `body{font-family:sans-serif;margin:2rem;color:#1f2937}` +
	`table{border-collapse:collapse;margin-bottom:1.5rem}` +
	`th,td{border:1px solid #d1d5db;padding:.35rem .75rem;text-align:left}` +
	`dt{font-weight:bold}dd{margin:0 0 .5rem 0}.empty{color:#6b7280}`

// printer accumulates the first write error so rendering code stays linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) text(s string) {
	p.raw(templ.EscapeString(s))
}

func (p *printer) field(name, value string) {
	p.raw(`<dt>`)
	p.text(name)
	p.raw(`</dt><dd>`)
	p.text(value)
	p.raw(`</dd>`)
}

func (p *printer) row(label, value string) {
	p.raw(`<tr><td>`)
	p.text(label)
	p.raw(`</td><td>`)
	p.text(value)
	p.raw(`</td></tr>`)
}
