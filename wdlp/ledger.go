package wdlp

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
)

// Entry outcomes recorded in the ledger.
const (
	StatusCommitted = "committed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// A LedgerEntry is what happened to one archive entry in one run.
type LedgerEntry struct {
	RunID       string
	Archive     string
	Entry       string
	RecordType  RecordType
	Format      Format
	Destination string
	CRC32       uint32
	Records     int64
	Status      string
	ErrorKind   string
	Detail      Detail
	StartedAt   time.Time
	FinishedAt  time.Time
}

// A Ledger keeps a row per processed entry in a SQL database. It expects a
// reasonably compliant database; on first use it creates its table.
type Ledger struct {
	db     *sql.DB
	runID  string
	logger *slog.Logger
}

const createLedgerTable = `
CREATE TABLE IF NOT EXISTS wdlp_ledger (
	run_id VARCHAR(36),
	archive VARCHAR(1024),
	entry VARCHAR(255),
	record_type VARCHAR(2),
	format VARCHAR(16),
	destination VARCHAR(1024),
	crc32 BIGINT,
	records BIGINT,
	status VARCHAR(16),
	error_kind VARCHAR(32),
	error_detail BYTEA,
	started_at TIMESTAMP,
	finished_at TIMESTAMP,
	PRIMARY KEY (run_id, archive, entry))
`

// OpenLedgerDB opens the configured database and waits for it to answer,
// backing off for up to cfg.ConnectTimeout. sqlite only gets one connection.
func OpenLedgerDB(cfg LedgerConfig) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite3"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s ledger: %w", driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if cfg.ConnectTimeout > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 100 * time.Millisecond
		eb.MaxElapsedTime = cfg.ConnectTimeout
		b = eb
	}
	if err := backoff.Retry(db.Ping, b); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach %s ledger: %w", driver, err)
	}
	return db, nil
}

// NewLedger prepares db and starts a new run.
func NewLedger(db *sql.DB, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(createLedgerTable); err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}

	return &Ledger{db: db, runID: uuid.NewString(), logger: logger}, nil
}

func (l *Ledger) RunID() string {
	return l.runID
}

// Record appends e under the current run.
func (l *Ledger) Record(e *LedgerEntry) error {
	e.RunID = l.runID

	var detail []byte
	if len(e.Detail) > 0 {
		var err error
		if detail, err = MarshalDetail(e.Detail); err != nil {
			return fmt.Errorf("failed to encode detail for %s: %w", e.Entry, err)
		}
	}

	l.logger.Debug("Recording entry", "run", l.runID, "entry", e.Entry, "status", e.Status)
	_, err := l.db.Exec(
		`INSERT INTO wdlp_ledger VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.RunID, e.Archive, e.Entry, string(e.RecordType), string(e.Format), e.Destination,
		int64(e.CRC32), e.Records, e.Status, e.ErrorKind, detail,
		e.StartedAt.UTC(), e.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", e.Entry, err)
	}
	return nil
}

// LastChecksum is the CRC-32 of the input behind the most recent committed
// output for (code, format). ok is false when there is none.
func (l *Ledger) LastChecksum(code RecordType, format Format) (crc uint32, ok bool, err error) {
	var v int64
	err = l.db.QueryRow(
		`SELECT crc32 FROM wdlp_ledger
		WHERE record_type=$1 AND format=$2 AND status=$3
		ORDER BY finished_at DESC LIMIT 1`,
		string(code), string(format), StatusCommitted).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint32(v), true, nil
}

// Recent returns up to limit entries, newest first.
func (l *Ledger) Recent(limit int) ([]LedgerEntry, error) {
	rows, err := l.db.Query(
		`SELECT run_id, archive, entry, record_type, format, destination, crc32, records,
			status, error_kind, error_detail, started_at, finished_at
		FROM wdlp_ledger ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var (
			e            LedgerEntry
			code, format string
			crc          int64
			detail       []byte
		)
		err := rows.Scan(&e.RunID, &e.Archive, &e.Entry, &code, &format, &e.Destination, &crc,
			&e.Records, &e.Status, &e.ErrorKind, &detail, &e.StartedAt, &e.FinishedAt)
		if err != nil {
			return nil, err
		}
		e.RecordType, e.Format, e.CRC32 = RecordType(code), Format(format), uint32(crc)

		if len(detail) > 0 {
			if e.Detail, err = UnmarshalDetail(detail); err != nil {
				l.logger.Warn("Skipping undecodable detail", "entry", e.Entry, "error", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
