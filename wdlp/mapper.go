package wdlp

import (
	"strconv"
	"time"
	"unicode/utf8"
)

// A Mapper validates raw records against one schema and types their values.
type Mapper struct {
	schema *Schema
}

func NewMapper(schema *Schema) *Mapper {
	return &Mapper{schema: schema}
}

func (m *Mapper) Schema() *Schema {
	return m.schema
}

// Map converts raw into a TypedRecord. The first failing check aborts the
// record with a *MappingError; no partial record is returned.
func (m *Mapper) Map(raw RawRecord) (TypedRecord, error) {
	s := m.schema

	if len(raw.Fields) != len(s.Fields) {
		return TypedRecord{}, &MappingError{
			Kind:       ErrColumnCount,
			SourceLine: raw.StartLine,
			Expected:   strconv.Itoa(len(s.Fields)) + " fields",
			Received:   strconv.Itoa(len(raw.Fields)) + " fields",
			Record:     raw,
		}
	}

	if code := raw.Fields[0]; code != string(s.Code) {
		return TypedRecord{}, &MappingError{
			Kind:       ErrDiscriminatorMismatch,
			SourceLine: raw.StartLine,
			FieldName:  s.Fields[0].Name,
			Expected:   "record type " + string(s.Code),
			Received:   code,
			Record:     raw,
		}
	}

	values := make([]interface{}, len(s.Fields))
	values[0] = string(s.Code)
	for i := 1; i < len(s.Fields); i++ {
		value := raw.Fields[i]
		if value == "" {
			continue
		}

		v, ok := convert(s.Fields[i], value)
		if !ok {
			return TypedRecord{}, &MappingError{
				Kind:       ErrFieldValidation,
				SourceLine: raw.StartLine,
				FieldName:  s.Fields[i].Name,
				Expected:   s.Fields[i].Constraint(),
				Received:   value,
				Record:     raw,
			}
		}
		values[i] = v
	}

	return TypedRecord{Schema: s, StartLine: raw.StartLine, values: values}, nil
}

// convert validates a non-empty value against its field. Text must be valid
// UTF-8.
func convert(f FieldSpec, s string) (interface{}, bool) {
	switch f.Kind {
	case KindChar, KindVarchar:
		if !utf8.ValidString(s) {
			return nil, false
		}
	}

	switch f.Kind {
	case KindChar:
		if utf8.RuneCountInString(s) != f.Length {
			return nil, false
		}
		return s, matches(f, s)
	case KindVarchar:
		if utf8.RuneCountInString(s) > f.MaxLength {
			return nil, false
		}
		return s, matches(f, s)
	case KindNumeric:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < f.Min || n > f.Max {
			return nil, false
		}
		return n, true
	case KindDate:
		t, err := time.Parse(f.layout(), s)
		if err != nil {
			return nil, false
		}
		return t, true
	}
	return nil, false
}

func matches(f FieldSpec, s string) bool {
	return f.Pattern == nil || f.Pattern.MatchString(s)
}
