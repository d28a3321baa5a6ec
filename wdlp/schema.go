package wdlp

import (
	"fmt"
	"regexp"
	"sort"
)

// FieldKind is the closed set of field types a schema can declare.
type FieldKind int

const (
	// KindChar is a fixed-length string.
	KindChar FieldKind = iota + 1
	// KindVarchar is a string with a maximum length.
	KindVarchar
	// KindNumeric is a base-10 integer within [Min, Max].
	KindNumeric
	// KindDate is a date in Layout (default m/d/yyyy).
	KindDate
)

var kindNames = map[FieldKind]string{
	KindChar:    "char",
	KindVarchar: "varchar",
	KindNumeric: "numeric",
	KindDate:    "date",
}

func (k FieldKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

func ParseFieldKind(s string) (FieldKind, error) {
	for k, n := range kindNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown field kind %q", ErrInvalidSchema, s)
}

// DefaultDateLayout is the date format of the license files, e.g. 12/31/2024
// or 1/1/2025.
const DefaultDateLayout = "1/2/2006"

// A FieldSpec describes one field of a record type.
type FieldSpec struct {
	Name string
	Kind FieldKind

	// Length is the exact length of a char field; MaxLength bounds a varchar.
	// Both count characters, not bytes.
	Length    int
	MaxLength int

	// Min and Max bound a numeric field.
	Min int64
	Max int64

	// Pattern, if set, must match the whole of a char or varchar value.
	Pattern *regexp.Regexp

	// Layout is the time.Parse layout of a date field.
	Layout string
}

// Char declares a fixed-length string field.
func Char(name string, length int) FieldSpec {
	return FieldSpec{Name: name, Kind: KindChar, Length: length}
}

// Varchar declares a string field of at most maxLength characters.
func Varchar(name string, maxLength int) FieldSpec {
	return FieldSpec{Name: name, Kind: KindVarchar, MaxLength: maxLength}
}

// Numeric declares an integer field in [min, max].
func Numeric(name string, min, max int64) FieldSpec {
	return FieldSpec{Name: name, Kind: KindNumeric, Min: min, Max: max}
}

// Date declares a date field in the default layout.
func Date(name string) FieldSpec {
	return FieldSpec{Name: name, Kind: KindDate, Layout: DefaultDateLayout}
}

// Constraint describes what the field accepts, for error messages.
func (f FieldSpec) Constraint() string {
	switch f.Kind {
	case KindChar:
		if f.Pattern != nil {
			return fmt.Sprintf("char(%d) matching %s", f.Length, f.Pattern)
		}
		return fmt.Sprintf("char(%d)", f.Length)
	case KindVarchar:
		if f.Pattern != nil {
			return fmt.Sprintf("varchar(%d) matching %s", f.MaxLength, f.Pattern)
		}
		return fmt.Sprintf("varchar(%d)", f.MaxLength)
	case KindNumeric:
		return fmt.Sprintf("integer in [%d, %d]", f.Min, f.Max)
	case KindDate:
		return fmt.Sprintf("date in layout %s", f.layout())
	}
	return f.Kind.String()
}

func (f FieldSpec) layout() string {
	if f.Layout == "" {
		return DefaultDateLayout
	}
	return f.Layout
}

// A Schema is the field table of one record type. Fields[0] is always the
// discriminator holding Code.
type Schema struct {
	Code   RecordType
	Fields []FieldSpec

	index map[string]int
}

// NewSchema builds and validates a schema.
func NewSchema(code RecordType, fields ...FieldSpec) (*Schema, error) {
	s := &Schema{Code: code, Fields: fields}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustSchema is NewSchema for static tables.
func MustSchema(code RecordType, fields ...FieldSpec) *Schema {
	s, err := NewSchema(code, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate is the structural check a schema table must pass before use.
func (s *Schema) Validate() error {
	if len(s.Code) != 2 {
		return fmt.Errorf("%w: record type code %q must be 2 characters", ErrInvalidSchema, s.Code)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: %s has no fields", ErrInvalidSchema, s.Code)
	}
	if d := s.Fields[0]; d.Kind != KindChar || d.Length != 2 {
		return fmt.Errorf("%w: %s discriminator %q must be char(2), is %s",
			ErrInvalidSchema, s.Code, d.Name, d.Constraint())
	}

	index := make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: %s field %d has no name", ErrInvalidSchema, s.Code, i)
		}
		if _, dup := index[f.Name]; dup {
			return fmt.Errorf("%w: %s field %q declared twice", ErrInvalidSchema, s.Code, f.Name)
		}
		index[f.Name] = i

		switch f.Kind {
		case KindChar:
			if f.Length <= 0 {
				return fmt.Errorf("%w: %s.%s needs a positive length", ErrInvalidSchema, s.Code, f.Name)
			}
		case KindVarchar:
			if f.MaxLength <= 0 {
				return fmt.Errorf("%w: %s.%s needs a positive max length", ErrInvalidSchema, s.Code, f.Name)
			}
		case KindNumeric:
			if f.Min > f.Max {
				return fmt.Errorf("%w: %s.%s has min %d > max %d", ErrInvalidSchema, s.Code, f.Name, f.Min, f.Max)
			}
		case KindDate:
		default:
			return fmt.Errorf("%w: %s.%s has %s", ErrInvalidSchema, s.Code, f.Name, f.Kind)
		}
	}
	s.index = index
	return nil
}

// FieldNames returns the names in schema order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// A SchemaSet maps record type codes to schemas.
type SchemaSet map[RecordType]*Schema

// Codes returns the record types in the set, sorted.
func (ss SchemaSet) Codes() []RecordType {
	codes := make([]RecordType, 0, len(ss))
	for c := range ss {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Merge returns a new set with other's schemas added to, or replacing, ours.
func (ss SchemaSet) Merge(other SchemaSet) SchemaSet {
	out := make(SchemaSet, len(ss)+len(other))
	for c, s := range ss {
		out[c] = s
	}
	for c, s := range other {
		out[c] = s
	}
	return out
}
