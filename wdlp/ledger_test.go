package wdlp

import (
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) (*Ledger, *sql.DB) {
	t.Helper()
	db, err := OpenLedgerDB(LedgerConfig{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l, err := NewLedger(db, testLogger())
	require.NoError(t, err)
	return l, db
}

func TestOpenLedgerDBUnreachable(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "missing", "test.db")

	start := time.Now()
	_, err := OpenLedgerDB(LedgerConfig{Driver: "sqlite3", DSN: dsn, ConnectTimeout: 300 * time.Millisecond})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	_, err = OpenLedgerDB(LedgerConfig{Driver: "sqlite3", DSN: dsn})
	assert.Error(t, err)
}

func TestLedgerRecord(t *testing.T) {
	l, _ := openTestLedger(t)
	require.Len(t, l.RunID(), 36)

	now := time.Now()
	require.NoError(t, l.Record(&LedgerEntry{
		Archive: "l_amat.zip", Entry: "EN.dat", RecordType: "EN", Format: FormatJSONL,
		Destination: "out/EN.jsonl", CRC32: 0xdeadbeef, Records: 12, Status: StatusCommitted,
		StartedAt: now.Add(-time.Second), FinishedAt: now,
	}))

	entries, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, l.RunID(), e.RunID)
	assert.Equal(t, RecordType("EN"), e.RecordType)
	assert.Equal(t, uint32(0xdeadbeef), e.CRC32)
	assert.Equal(t, int64(12), e.Records)
	assert.Equal(t, StatusCommitted, e.Status)
	assert.Nil(t, e.Detail)
	assert.WithinDuration(t, now, e.FinishedAt, time.Second)
}

func TestLedgerDetail(t *testing.T) {
	l, _ := openTestLedger(t)

	_, perr := NewMapper(exSchema).Map(RawRecord{StartLine: 4, Fields: []string{"EX", "x", "", "", "", "", ""}})
	require.Error(t, perr)

	now := time.Now()
	require.NoError(t, l.Record(&LedgerEntry{
		Entry: "EX.dat", RecordType: "EX", Format: FormatCSV, Status: StatusFailed,
		ErrorKind: ErrorKind(perr), Detail: detailFor(perr), StartedAt: now, FinishedAt: now,
	}))

	entries, err := l.Recent(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "field_validation", e.ErrorKind)
	assert.Equal(t, "Number1", e.Detail["field"])
	assert.Equal(t, "x", e.Detail["received"])
	assert.EqualValues(t, 4, e.Detail["line"])
}

func TestLedgerLastChecksum(t *testing.T) {
	l, _ := openTestLedger(t)

	_, ok, err := l.LastChecksum("EN", FormatJSONL)
	require.NoError(t, err)
	assert.False(t, ok)

	base := time.Now().Add(-time.Hour)
	for i, e := range []LedgerEntry{
		{Entry: "a/EN.dat", CRC32: 1, Status: StatusCommitted},
		{Entry: "b/EN.dat", CRC32: 2, Status: StatusCommitted},
		{Entry: "c/EN.dat", CRC32: 3, Status: StatusFailed},
		{Entry: "d/EN.dat", CRC32: 4, Status: StatusCommitted, Format: FormatCSV},
	} {
		e := e
		e.RecordType = "EN"
		if e.Format == "" {
			e.Format = FormatJSONL
		}
		e.StartedAt = base.Add(time.Duration(i) * time.Minute)
		e.FinishedAt = e.StartedAt
		require.NoError(t, l.Record(&e))
	}

	crc, ok, err := l.LastChecksum("EN", FormatJSONL)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), crc)

	entries, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "d/EN.dat", entries[0].Entry)
	assert.Equal(t, "c/EN.dat", entries[1].Entry)
}

func TestDetailRoundTrip(t *testing.T) {
	_, err := NewParser(strings.NewReader("A|B")).ReadRecord()
	var pe *ParseError
	require.True(t, errors.As(err, &pe))

	data, err := MarshalDetail(detailFor(pe))
	require.NoError(t, err)

	d, err := UnmarshalDetail(data)
	require.NoError(t, err)
	assert.EqualValues(t, 1, d["line"])
	assert.EqualValues(t, 4, d["column"])
	assert.Equal(t, "B", d["partial_field"])
	assert.Equal(t, []interface{}{"A"}, d["fields"])
}
