package wdlp

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// exSchema is a small record type covering every field kind.
var exSchema = MustSchema("EX",
	Char("record_type", 2),
	Numeric("Number1", 0, 1000000),
	Numeric("Number2", 0, 1000000),
	Varchar("String1", 20),
	Varchar("String2", 20),
	Date("Date1"),
	Date("Date2"),
)

const exLine = "EX|1|2|A|B|12/31/2024|1/1/2025|\n"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// readAll drains a RecordReader, returning the records and the terminal
// error (nil on a clean end).
func readAll(r RecordReader) ([]RawRecord, error) {
	var recs []RawRecord
	for {
		rec, err := r.ReadRecord()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}

func mustMap(t *testing.T, s *Schema, line string) TypedRecord {
	t.Helper()
	raw, err := NewParser(bytes.NewBufferString(line)).ReadRecord()
	require.NoError(t, err)
	rec, err := NewMapper(s).Map(raw)
	require.NoError(t, err)
	return rec
}

type zipEntry struct {
	name string
	body string
}

// writeZip builds an archive at dir/name holding entries in order.
func writeZip(t *testing.T, dir, name string, entries ...zipEntry) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = io.WriteString(w, e.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

// dirNames lists the file names in dir.
func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	des, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(des))
	for _, de := range des {
		names = append(names, de.Name())
	}
	return names
}

// failingReader returns data, then err.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

// chunkReader hands out its data in the given chunk sizes, cycling.
type chunkReader struct {
	data  []byte
	sizes []int
	next  int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.sizes[r.next%len(r.sizes)]
	r.next++
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}
