package core

// decode.go turns uploaded bytes into a RawTable.
//
// The reader is wrapped so that a UTF-8 or UTF-16 byte order mark is honoured
// and stripped, and invalid UTF-8 is replaced with U+FFFD instead of failing
// the whole upload. Blank lines are skipped, short rows are padded with empty
// cells and extra trailing cells are ignored. Rows of empty cells such as
// ",,,," before the header are skipped; after it they are data rows with
// every value missing. A repeated header label gets a ".N" suffix so each
// column keeps its own values.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// errNoColumns is returned for input with no header row at all.
var errNoColumns = errors.New("no columns to parse from file")

// NewSourceReader wraps r with BOM handling and UTF-8 sanitization.
func NewSourceReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// DecodeCSV reads a CSV stream into a RawTable. Empty cells decode as nil.
func DecodeCSV(r io.Reader) (RawTable, error) {
	cr := csv.NewReader(NewSourceReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	var table RawTable
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return RawTable{}, &DecodeError{Err: err}
		}
		if isBlankLine(record) {
			continue
		}

		if table.Columns == nil {
			if isEmptyRow(record) {
				continue
			}
			table.Columns = dedupeLabels(record)
			continue
		}

		row := make(RawRow, len(table.Columns))
		for i, label := range table.Columns {
			if i < len(record) && record[i] != "" {
				row[label] = record[i]
			} else {
				row[label] = nil
			}
		}
		table.Rows = append(table.Rows, row)
	}

	if table.Columns == nil {
		return RawTable{}, &DecodeError{Err: errNoColumns}
	}
	return table, nil
}

// isBlankLine reports a line holding nothing but whitespace.
func isBlankLine(record []string) bool {
	return len(record) == 1 && strings.TrimSpace(record[0]) == ""
}

// dedupeLabels renames repeated labels to "label.1", "label.2" and so on,
// skipping any name already taken.
func dedupeLabels(labels []string) []string {
	out := make([]string, len(labels))
	taken := make(map[string]bool, len(labels))
	for _, l := range labels {
		taken[l] = true
	}
	seen := make(map[string]int, len(labels))
	for i, l := range labels {
		n := seen[l]
		seen[l] = n + 1
		if n == 0 {
			out[i] = l
			continue
		}
		name := fmt.Sprintf("%s.%d", l, n)
		for taken[name] {
			n++
			name = fmt.Sprintf("%s.%d", l, n)
		}
		seen[l] = n + 1
		taken[name] = true
		out[i] = name
	}
	return out
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
