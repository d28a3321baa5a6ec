package wdlp

import (
	"encoding/json"
	"io"
	"strconv"
	"time"
)

// jsonlEncoder writes one JSON object per line with keys in schema order.
// encoding/json sorts map keys, so objects are assembled by hand.
type jsonlEncoder struct {
	w    io.Writer
	keys [][]byte
	buf  []byte
}

func newJSONLEncoder(w io.Writer, schema *Schema, _ WriterOptions) (encoder, error) {
	keys := make([][]byte, len(schema.Fields))
	for i, f := range schema.Fields {
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		keys[i] = append(k, ':')
	}
	return &jsonlEncoder{w: w, keys: keys}, nil
}

func (e *jsonlEncoder) encode(rec TypedRecord) error {
	b := append(e.buf[:0], '{')
	for i := 0; i < rec.Len(); i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, e.keys[i]...)

		switch v := rec.Value(i).(type) {
		case nil:
			b = append(b, "null"...)
		case int64:
			b = strconv.AppendInt(b, v, 10)
		case time.Time:
			b = append(b, '"')
			b = append(b, formatDate(v)...)
			b = append(b, '"')
		default:
			s, err := json.Marshal(v)
			if err != nil {
				return err
			}
			b = append(b, s...)
		}
	}
	b = append(b, '}', '\n')
	e.buf = b

	_, err := e.w.Write(b)
	return err
}

func (e *jsonlEncoder) close() error {
	return nil
}
