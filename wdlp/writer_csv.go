package wdlp

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// csvEncoder writes a header of field names followed by one row per record.
// Empty values stay empty.
type csvEncoder struct {
	w   *csv.Writer
	row []string
}

func newCSVEncoder(w io.Writer, schema *Schema, _ WriterOptions) (encoder, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(schema.FieldNames()); err != nil {
		return nil, err
	}
	return &csvEncoder{w: cw, row: make([]string, len(schema.Fields))}, nil
}

func (e *csvEncoder) encode(rec TypedRecord) error {
	for i := range e.row {
		switch v := rec.Value(i).(type) {
		case nil:
			e.row[i] = ""
		case string:
			e.row[i] = v
		case int64:
			e.row[i] = strconv.FormatInt(v, 10)
		case time.Time:
			e.row[i] = formatDate(v)
		}
	}
	return e.w.Write(e.row)
}

func (e *csvEncoder) close() error {
	e.w.Flush()
	return e.w.Error()
}
