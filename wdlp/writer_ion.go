package wdlp

import (
	"io"
	"time"

	"github.com/amazon-ion/ion-go/ion"
)

// ionEncoder writes one Ion text struct per record. Empty values become
// typed nulls so readers still see the field's type.
type ionEncoder struct {
	w     ion.Writer
	names []ion.SymbolToken
	nulls []ion.Type
}

func newIonEncoder(w io.Writer, schema *Schema, _ WriterOptions) (encoder, error) {
	e := &ionEncoder{
		w:     ion.NewTextWriter(w),
		names: make([]ion.SymbolToken, len(schema.Fields)),
		nulls: make([]ion.Type, len(schema.Fields)),
	}
	for i, f := range schema.Fields {
		e.names[i] = ion.NewSymbolTokenFromString(f.Name)
		e.nulls[i] = ionNullType(f.Kind)
	}
	return e, nil
}

func ionNullType(k FieldKind) ion.Type {
	switch k {
	case KindNumeric:
		return ion.IntType
	case KindDate:
		return ion.TimestampType
	default:
		return ion.StringType
	}
}

func (e *ionEncoder) encode(rec TypedRecord) error {
	if err := e.w.BeginStruct(); err != nil {
		return err
	}
	for i := 0; i < rec.Len(); i++ {
		if err := e.w.FieldName(e.names[i]); err != nil {
			return err
		}

		var err error
		switch v := rec.Value(i).(type) {
		case nil:
			err = e.w.WriteNullType(e.nulls[i])
		case string:
			err = e.w.WriteString(v)
		case int64:
			err = e.w.WriteInt(v)
		case time.Time:
			err = e.w.WriteTimestamp(ion.NewDateTimestamp(v, ion.TimestampPrecisionDay))
		}
		if err != nil {
			return err
		}
	}
	return e.w.EndStruct()
}

func (e *ionEncoder) close() error {
	return e.w.Finish()
}
