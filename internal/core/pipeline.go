package core

import "io"

// IngestResult is the output of a successful ingestion.
type IngestResult struct {
	Mapping ColumnMapping
	Rows    []NormalizedRow
	Summary DatasetSummary
}

// RowCount returns the number of normalized rows.
func (r *IngestResult) RowCount() int {
	return len(r.Rows)
}

// Ingest normalizes and summarizes a decoded table.
//
// A table with no data rows fails with *EmptyTableError and an unresolvable
// header with *SchemaValidationError; nothing is coerced in either case. Once
// the header resolves every row is accepted. Ingest has no side effects, so
// calling it again on the same table yields identical rows and summary.
func Ingest(table RawTable, aliases *AliasTable) (*IngestResult, error) {
	if len(table.Rows) == 0 {
		return nil, &EmptyTableError{}
	}

	mapping, err := ResolveColumns(table.Columns, aliases)
	if err != nil {
		return nil, err
	}

	rows := make([]NormalizedRow, len(table.Rows))
	for i, raw := range table.Rows {
		rows[i] = CoerceRow(raw, mapping)
	}

	return &IngestResult{
		Mapping: mapping,
		Rows:    rows,
		Summary: Summarize(rows),
	}, nil
}

// IngestCSV decodes a CSV stream and ingests it.
func IngestCSV(r io.Reader, aliases *AliasTable) (*IngestResult, error) {
	table, err := DecodeCSV(r)
	if err != nil {
		return nil, err
	}
	return Ingest(table, aliases)
}
