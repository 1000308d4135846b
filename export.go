package dbconsole

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

const CSVContentType = "text/csv"

// CSVBlob is a rendered CSV document ready to be written or handed to a client.
type CSVBlob struct {
	ContentType string
	Data        []byte
}

// CSVFromRecords renders a header row of columns followed by one row per record.
// A missing key or a NULL value becomes an empty cell.
func CSVFromRecords(columns []string, records []map[string]interface{}) (CSVBlob, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return CSVBlob{}, fmt.Errorf("could not write csv header: %w", err)
	}

	row := make([]string, len(columns))
	for i, record := range records {
		for j, col := range columns {
			row[j] = cellText(record[col])
		}
		if err := w.Write(row); err != nil {
			return CSVBlob{}, fmt.Errorf("could not write csv row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return CSVBlob{}, err
	}

	return CSVBlob{
		ContentType: CSVContentType,
		Data:        buf.Bytes(),
	}, nil
}

func (r *QueryResult) CSV() (CSVBlob, error) {
	return CSVFromRecords(r.Columns, r.Records())
}
