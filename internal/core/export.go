package core

import (
	"encoding/csv"
	"io"
)

// WriteCSV writes rows with the canonical header in fixed column order,
// whatever the original upload's labels or column order were.
func WriteCSV(w io.Writer, rows []NormalizedRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DisplayHeaders); err != nil {
		return err
	}

	const flushInterval = 1000
	for i, row := range rows {
		if err := cw.Write(row.Record()); err != nil {
			return err
		}
		if (i+1)%flushInterval == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
