// Package wdlp turns the pipe-delimited .dat files of the FCC wireless license
// database into validated, typed output files.
package wdlp

import (
	"errors"
	"fmt"
	"time"

	"github.com/tinylib/msgp/msgp"
)

// Some types to make sure our lists of func args don't get confused
type RecordType string
type Format string

const (
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
	FormatIon     Format = "ion"
	FormatCSV     Format = "csv"
)

// A RawRecord is one unvalidated record as it came off the wire: the line it
// started on and its fields in order.
type RawRecord struct {
	StartLine uint64
	Fields    []string
}

func (r RawRecord) String() string {
	return fmt.Sprintf("Record(line=%d, fields=%q)", r.StartLine, r.Fields)
}

// A TypedRecord is the schema-typed projection of a RawRecord. Values are held
// in schema field order; a nil value means the field was empty.
//
// Values are one of nil, string, int64 or time.Time (a UTC date).
type TypedRecord struct {
	Schema    *Schema
	StartLine uint64
	values    []interface{}
}

func (t TypedRecord) Len() int {
	return len(t.values)
}

// Value returns the value at schema position i.
func (t TypedRecord) Value(i int) interface{} {
	return t.values[i]
}

// Get looks a value up by field name. ok is false only for names the schema
// doesn't have.
func (t TypedRecord) Get(name string) (v interface{}, ok bool) {
	idx, ok := t.Schema.index[name]
	if !ok {
		return nil, false
	}
	return t.values[idx], true
}

// Map returns the record as a name => value map.
func (t TypedRecord) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(t.values))
	for i, f := range t.Schema.Fields {
		m[f.Name] = t.values[i]
	}
	return m
}

const isoDate = "2006-01-02"

func formatDate(d time.Time) string {
	return d.Format(isoDate)
}

// Detail is the error context we persist alongside a failed entry.
type Detail map[string]interface{}

// MarshalDetail encodes a detail map as msgpack.
func MarshalDetail(d Detail) ([]byte, error) {
	return msgp.AppendMapStrIntf([]byte{}, d)
}

func UnmarshalDetail(data []byte) (Detail, error) {
	d, _, err := msgp.ReadMapStrIntfBytes(data, nil)
	return d, err
}

// detailFor flattens the context of a data error into a Detail.
func detailFor(err error) Detail {
	d := Detail{"error": err.Error()}

	var pe *ParseError
	var me *MappingError
	switch {
	case errors.As(err, &pe):
		d["line"] = pe.Line
		d["column"] = pe.Column
		d["offset"] = pe.Offset
		d["expected"] = pe.Expected
		d["received"] = pe.Received
		d["fields"] = stringsToIntf(pe.PartialFields)
		d["partial_field"] = pe.PartialField
	case errors.As(err, &me):
		d["line"] = me.SourceLine
		d["field"] = me.FieldName
		d["expected"] = me.Expected
		d["received"] = me.Received
		d["fields"] = stringsToIntf(me.Record.Fields)
	}
	return d
}

func stringsToIntf(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
