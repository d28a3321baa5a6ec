package wdlp

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amazon-ion/ion-go/ion"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Three records: a full one, an all-null one, and one with text that needs
// escaping in every format.
func writerRecords(t *testing.T) []TypedRecord {
	return []TypedRecord{
		mustMap(t, exSchema, exLine),
		mustMap(t, exSchema, "EX|||||||\n"),
		mustMap(t, exSchema, "EX|3||say \"hi\"|a,b\nc|||\n"),
	}
}

func writeAll(t *testing.T, format Format, dest string, opts WriterOptions) {
	t.Helper()
	opts.Logger = testLogger()
	w, err := NewWriter(format, dest, exSchema, opts)
	require.NoError(t, err)
	for _, rec := range writerRecords(t) {
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Close())
}

func TestWriteJSONL(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "EX.jsonl")
	writeAll(t, FormatJSONL, dest, WriterOptions{})

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)

	// Keys come out in schema order.
	assert.Equal(t,
		`{"record_type":"EX","Number1":1,"Number2":2,"String1":"A","String2":"B","Date1":"2024-12-31","Date2":"2025-01-01"}`,
		lines[0])
	assert.Equal(t,
		`{"record_type":"EX","Number1":null,"Number2":null,"String1":null,"String2":null,"Date1":null,"Date2":null}`,
		lines[1])

	var v map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &v))
	assert.Equal(t, "say \"hi\"", v["String1"])
	assert.Equal(t, "a,b\nc", v["String2"])
	assert.Equal(t, float64(3), v["Number1"])
	assert.Nil(t, v["Number2"])
}

func TestWriteCSV(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "EX.csv")
	writeAll(t, FormatCSV, dest, WriterOptions{})

	f, err := os.Open(dest)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		exSchema.FieldNames(),
		{"EX", "1", "2", "A", "B", "2024-12-31", "2025-01-01"},
		{"EX", "", "", "", "", "", ""},
		{"EX", "3", "", "say \"hi\"", "a,b\nc", "", ""},
	}, rows)
}

func readIon(t *testing.T, data []byte) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}

	r := ion.NewReaderBytes(data)
	for r.Next() {
		require.Equal(t, ion.StructType, r.Type())
		require.NoError(t, r.StepIn())

		m := map[string]interface{}{}
		for r.Next() {
			name, err := r.FieldName()
			require.NoError(t, err)
			key := *name.Text

			if r.IsNull() {
				m[key] = r.Type()
				continue
			}
			switch r.Type() {
			case ion.StringType:
				s, err := r.StringValue()
				require.NoError(t, err)
				m[key] = *s
			case ion.IntType:
				i, err := r.Int64Value()
				require.NoError(t, err)
				m[key] = *i
			case ion.TimestampType:
				ts, err := r.TimestampValue()
				require.NoError(t, err)
				m[key] = ts.GetDateTime().Format(isoDate)
			}
		}
		require.NoError(t, r.StepOut())
		out = append(out, m)
	}
	require.NoError(t, r.Err())
	return out
}

func TestWriteIon(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "EX.ion")
	writeAll(t, FormatIon, dest, WriterOptions{})

	data, err := os.ReadFile(dest)
	require.NoError(t, err)

	recs := readIon(t, data)
	require.Len(t, recs, 3)
	assert.Equal(t, map[string]interface{}{
		"record_type": "EX",
		"Number1":     int64(1),
		"Number2":     int64(2),
		"String1":     "A",
		"String2":     "B",
		"Date1":       "2024-12-31",
		"Date2":       "2025-01-01",
	}, recs[0])

	// Nulls keep their field's type.
	assert.Equal(t, ion.IntType, recs[1]["Number1"])
	assert.Equal(t, ion.StringType, recs[1]["String1"])
	assert.Equal(t, ion.TimestampType, recs[1]["Date1"])

	assert.Equal(t, "a,b\nc", recs[2]["String2"])
}

// parquetColumn collects one column across every chunk.
func parquetColumn(t *testing.T, tbl arrow.Table, i int) []interface{} {
	var out []interface{}
	for _, chunk := range tbl.Column(i).Data().Chunks() {
		for j := 0; j < chunk.Len(); j++ {
			if chunk.IsNull(j) {
				out = append(out, nil)
				continue
			}
			switch a := chunk.(type) {
			case *array.String:
				out = append(out, a.Value(j))
			case *array.Int64:
				out = append(out, a.Value(j))
			case *array.Date32:
				out = append(out, a.Value(j).ToTime().Format(isoDate))
			default:
				t.Fatalf("unexpected column type %T", chunk)
			}
		}
	}
	return out
}

func TestWriteParquet(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "EX.parquet")
	// A batch size smaller than the record count means more than one row group.
	writeAll(t, FormatParquet, dest, WriterOptions{BatchSize: 2, Compress: true})

	f, err := os.Open(dest)
	require.NoError(t, err)
	defer f.Close()

	pf, err := file.NewParquetReader(f, file.WithReadProps(&parquet.ReaderProperties{}))
	require.NoError(t, err)
	defer pf.Close()
	assert.Equal(t, 2, pf.NumRowGroups())

	rdr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	require.NoError(t, err)
	tbl, err := rdr.ReadTable(context.Background())
	require.NoError(t, err)
	defer tbl.Release()

	require.Equal(t, int64(3), tbl.NumRows())
	want := ArrowSchema(exSchema)
	for i, f := range tbl.Schema().Fields() {
		assert.Equal(t, want.Field(i).Name, f.Name)
		assert.Equal(t, want.Field(i).Type.ID(), f.Type.ID())
	}

	assert.Equal(t, []interface{}{"EX", "EX", "EX"}, parquetColumn(t, tbl, 0))
	assert.Equal(t, []interface{}{int64(1), nil, int64(3)}, parquetColumn(t, tbl, 1))
	assert.Equal(t, []interface{}{"A", nil, "say \"hi\""}, parquetColumn(t, tbl, 3))
	assert.Equal(t, []interface{}{"2024-12-31", nil, nil}, parquetColumn(t, tbl, 5))
}

func TestWriteCompressed(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "EX.jsonl.sz")
	writeAll(t, FormatJSONL, dest, WriterOptions{Compress: true})

	raw, err := os.ReadFile(dest)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(snappy.NewReader(bytes.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))
	assert.True(t, strings.HasPrefix(buf.String(), `{"record_type":"EX","Number1":1,`))
}

func TestWriterAbortAfterWrites(t *testing.T) {
	for _, format := range Formats() {
		t.Run(string(format), func(t *testing.T) {
			dir := t.TempDir()
			dest := filepath.Join(dir, "EX."+string(format))

			w, err := NewWriter(format, dest, exSchema, WriterOptions{Logger: testLogger(), BatchSize: 1})
			require.NoError(t, err)
			for _, rec := range writerRecords(t) {
				require.NoError(t, w.Write(rec))
			}
			require.NoError(t, w.Abort())

			assert.Empty(t, dirNames(t, dir), "nothing may be left behind")
			assert.Equal(t, ErrSessionClosed, w.Write(writerRecords(t)[0]))
		})
	}
}

func TestWriterAbortKeepsNothingOfPrevious(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "EX.jsonl")
	require.NoError(t, os.WriteFile(dest, []byte("previous run\n"), 0644))

	w, err := NewWriter(FormatJSONL, dest, exSchema, WriterOptions{Logger: testLogger()})
	require.NoError(t, err)
	require.NoError(t, w.Write(writerRecords(t)[0]))
	require.NoError(t, w.Abort())

	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
}

func TestWriterRejectsOtherSchema(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "EX.jsonl")
	w, err := NewWriter(FormatJSONL, dest, AMSchema, WriterOptions{Logger: testLogger()})
	require.NoError(t, err)
	defer w.Abort()

	assert.Error(t, w.Write(writerRecords(t)[0]))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" Parquet ")
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, f)

	_, err = ParseFormat("xml")
	assert.True(t, errors.Is(err, ErrUnknownFormat))

	_, err = NewWriter("xml", filepath.Join(t.TempDir(), "EX.xml"), exSchema, WriterOptions{})
	assert.True(t, errors.Is(err, ErrUnknownFormat))

	assert.Equal(t, []Format{FormatCSV, FormatIon, FormatJSONL, FormatParquet}, Formats())
}

func TestWriterBatchSize(t *testing.T) {
	assert.Equal(t, DefaultBatchSize, WriterOptions{}.batchSize())
	assert.Equal(t, 1, WriterOptions{BatchSize: 1}.batchSize())
	assert.Equal(t, maxBatchSize, WriterOptions{BatchSize: 1 << 20}.batchSize())
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2025-01-01", formatDate(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}
