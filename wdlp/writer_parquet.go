package wdlp

import (
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// parquetEncoder buffers rows in an arrow record builder and writes a row
// group every batch. The footer goes out on close, so a partial file is never
// a readable one.
type parquetEncoder struct {
	schema  *arrow.Schema
	builder *array.RecordBuilder
	fw      *pqarrow.FileWriter

	batchSize int
	pending   int
}

// ArrowSchema is the arrow schema a record type is written with. Every column
// is nullable; the discriminator is never null in practice.
func ArrowSchema(s *Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = arrow.Field{Name: f.Name, Type: arrowType(f.Kind), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(k FieldKind) arrow.DataType {
	switch k {
	case KindNumeric:
		return arrow.PrimitiveTypes.Int64
	case KindDate:
		return arrow.FixedWidthTypes.Date32
	default:
		return arrow.BinaryTypes.String
	}
}

func newParquetEncoder(w io.Writer, schema *Schema, opts WriterOptions) (encoder, error) {
	as := ArrowSchema(schema)

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	fw, err := pqarrow.NewFileWriter(as, w, props, arrowProps)
	if err != nil {
		return nil, err
	}

	return &parquetEncoder{
		schema:    as,
		builder:   array.NewRecordBuilder(memory.NewGoAllocator(), as),
		fw:        fw,
		batchSize: opts.batchSize(),
	}, nil
}

func (e *parquetEncoder) encode(rec TypedRecord) error {
	for i := 0; i < rec.Len(); i++ {
		fb := e.builder.Field(i)
		v := rec.Value(i)
		if v == nil {
			fb.AppendNull()
			continue
		}

		switch b := fb.(type) {
		case *array.StringBuilder:
			b.Append(v.(string))
		case *array.Int64Builder:
			b.Append(v.(int64))
		case *array.Date32Builder:
			b.Append(arrow.Date32FromTime(v.(time.Time)))
		}
	}

	e.pending++
	if e.pending >= e.batchSize {
		return e.flush()
	}
	return nil
}

func (e *parquetEncoder) flush() error {
	rec := e.builder.NewRecord()
	defer rec.Release()
	e.pending = 0
	return e.fw.Write(rec)
}

func (e *parquetEncoder) close() error {
	defer e.builder.Release()
	if e.pending > 0 {
		if err := e.flush(); err != nil {
			return err
		}
	}
	// The session's buffered writer isn't a Closer, so this only writes the
	// footer.
	return e.fw.Close()
}

func (e *parquetEncoder) release() {
	e.builder.Release()
}
