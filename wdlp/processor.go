package wdlp

import (
	"archive/zip"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/getsentry/raven-go"
)

var LogInterval = 10 * time.Second

// An ErrorReporter is told about every entry that fails.
type ErrorReporter interface {
	Report(err error, tags map[string]string)
}

type nopReporter struct{}

func (nopReporter) Report(error, map[string]string) {}

type sentryReporter struct{}

func (sentryReporter) Report(err error, tags map[string]string) {
	raven.CaptureError(err, tags)
}

// NewErrorReporter reports to Sentry when dsn is set, and nowhere otherwise.
func NewErrorReporter(dsn string) (ErrorReporter, error) {
	if dsn == "" {
		return nopReporter{}, nil
	}
	if err := raven.SetDSN(dsn); err != nil {
		return nil, err
	}
	return sentryReporter{}, nil
}

// ProcessorOptions say where output goes and how input is read.
type ProcessorOptions struct {
	OutputDir string
	Format    Format
	Compress  bool
	BatchSize int
	Limits    Limits
	ChunkSize int

	// SkipUnchanged skips an entry whose checksum matches the last committed
	// output of the same record type and format, if that output still exists.
	// It needs a ledger.
	SkipUnchanged bool
}

type ProcessorOption func(*Processor)

func WithLedger(l *Ledger) ProcessorOption {
	return func(p *Processor) {
		p.ledger = l
	}
}

func WithMetrics(m *Metrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

func WithReporter(r ErrorReporter) ProcessorOption {
	return func(p *Processor) {
		p.reporter = r
	}
}

func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = l
	}
}

// A Processor runs parse, map and write over every record file in an
// archive. Entries are processed one at a time and independently: a failed
// entry discards its own output and leaves the others alone.
type Processor struct {
	opts    ProcessorOptions
	schemas SchemaSet

	logger   *slog.Logger
	ledger   *Ledger
	metrics  *Metrics
	reporter ErrorReporter
	stats    *Stats

	quit     chan struct{}
	stopOnce sync.Once
}

func NewProcessor(schemas SchemaSet, opts ProcessorOptions, options ...ProcessorOption) *Processor {
	if opts.Format == "" {
		opts.Format = FormatJSONL
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}

	p := &Processor{
		opts:     opts,
		schemas:  schemas,
		logger:   slog.Default(),
		reporter: nopReporter{},
		stats:    NewStats(),
		quit:     make(chan struct{}),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Stop asks the processor to quit. The record being processed is finished,
// then the open output is aborted.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
}

func (p *Processor) stopped() bool {
	select {
	case <-p.quit:
		return true
	default:
		return false
	}
}

func (p *Processor) Stats() *Stats {
	return p.stats
}

// EntryResult is the outcome of one archive entry.
type EntryResult struct {
	Entry       string
	Code        RecordType
	Destination string
	Records     int64
	Status      string
	Err         error
}

// Failed reports whether any entry failed.
func Failed(results []EntryResult) bool {
	for _, r := range results {
		if r.Status == StatusFailed {
			return true
		}
	}
	return false
}

// ProcessArchive processes every .dat entry of the ZIP archive at path, in
// archive order. The error is only non-nil when the archive itself can't be
// read, the output directory can't be created, or the run was stopped; entry
// failures are in the results.
func (p *Processor) ProcessArchive(path string) ([]EntryResult, error) {
	defer p.stats.finish()

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, resourceError("open", path, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(p.opts.OutputDir, 0755); err != nil {
		return nil, resourceError("create", p.opts.OutputDir, err)
	}

	p.logger.Info("Opening archive", "path", path, "entries", len(zr.File))

	var results []EntryResult
	for _, f := range zr.File {
		if p.stopped() {
			p.logger.Info("Quit signal received", "archive", path)
			return results, ErrInterrupted
		}
		if f.FileInfo().IsDir() || !IsRecordFile(f.Name) {
			p.logger.Debug("Skipping non-record entry", "entry", f.Name)
			continue
		}

		res := p.processEntry(path, f)
		results = append(results, res)
		if errors.Is(res.Err, ErrInterrupted) {
			return results, ErrInterrupted
		}
	}

	return results, nil
}

func (p *Processor) processEntry(archive string, f *zip.File) (res EntryResult) {
	res.Entry = f.Name

	en, err := DecodeEntryName(f.Name)
	if err != nil {
		p.logger.Warn("Skipping entry", "entry", f.Name, "error", err)
		res.Status = StatusSkipped
		return res
	}
	res.Code = en.Code

	schema, ok := p.schemas[en.Code]
	if !ok {
		p.logger.Warn("Skipping entry with no schema", "entry", f.Name, "record_type", en.Code)
		p.stats.noteSkipped(en.Code)
		res.Status = StatusSkipped
		return res
	}

	key := OutputKey{Code: en.Code, Format: p.opts.Format, Compressed: p.opts.Compress}
	res.Destination = key.Path(p.opts.OutputDir)

	started := time.Now()
	defer func() {
		p.finishEntry(archive, f, &res, started)
	}()

	if p.unchanged(en.Code, f.CRC32, res.Destination) {
		p.logger.Info("Skipping unchanged entry", "entry", f.Name, "dest", res.Destination)
		p.stats.noteSkipped(en.Code)
		res.Status = StatusSkipped
		return res
	}

	rc, err := f.Open()
	if err != nil {
		res.Status, res.Err = StatusFailed, resourceError("open", f.Name, err)
		return res
	}
	defer rc.Close()

	p.logger.Info("Processing entry", "entry", f.Name, "record_type", en.Code, "dest", res.Destination)
	res.Records, res.Err = p.ProcessStream(rc, schema, res.Destination)
	if res.Err != nil {
		res.Status = StatusFailed
		return res
	}
	res.Status = StatusCommitted
	return res
}

func (p *Processor) unchanged(code RecordType, crc uint32, dest string) bool {
	if !p.opts.SkipUnchanged || p.ledger == nil {
		return false
	}
	last, ok, err := p.ledger.LastChecksum(code, p.opts.Format)
	if err != nil {
		p.logger.Warn("Failed to load last checksum", "record_type", code, "error", err)
		return false
	}
	if !ok || last != crc {
		return false
	}
	_, err = os.Stat(dest)
	return err == nil
}

func (p *Processor) finishEntry(archive string, f *zip.File, res *EntryResult, started time.Time) {
	finished := time.Now()
	code := string(res.Code)

	if res.Err != nil {
		kind := ErrorKind(res.Err)
		p.stats.noteError(res.Code)
		p.logger.Error("Failed to process entry",
			"entry", f.Name, "record_type", code, "kind", kind, "records", res.Records, "error", res.Err)
		if !errors.Is(res.Err, ErrInterrupted) {
			p.reporter.Report(res.Err, map[string]string{
				"archive":     archive,
				"entry":       f.Name,
				"record_type": code,
				"kind":        kind,
			})
		}
		if p.metrics != nil {
			p.metrics.DataErrors.WithLabelValues(code, kind).Inc()
		}
	} else if res.Status == StatusCommitted {
		p.logger.Info("Wrote entry", "entry", f.Name, "records", res.Records, "dest", res.Destination)
	}

	if p.metrics != nil {
		p.metrics.Entries.WithLabelValues(code, res.Status).Inc()
		p.metrics.RecordsWritten.WithLabelValues(code, string(p.opts.Format)).Add(float64(res.Records))
		p.metrics.EntryDuration.WithLabelValues(code).Observe(finished.Sub(started).Seconds())
	}

	if p.ledger != nil {
		e := &LedgerEntry{
			Archive:     archive,
			Entry:       f.Name,
			RecordType:  res.Code,
			Format:      p.opts.Format,
			Destination: res.Destination,
			CRC32:       f.CRC32,
			Records:     res.Records,
			Status:      res.Status,
			ErrorKind:   ErrorKind(res.Err),
			StartedAt:   started,
			FinishedAt:  finished,
		}
		if res.Err != nil {
			e.Detail = detailFor(res.Err)
		}
		if err := p.ledger.Record(e); err != nil {
			p.logger.Warn("Failed to update ledger", "entry", f.Name, "error", err)
		}
	}
}

// ProcessStream parses r, maps every record with schema and writes the
// result to dest. dest is only created if every record made it; on any error
// the output is aborted and n is how many records had been written.
func (p *Processor) ProcessStream(r io.Reader, schema *Schema, dest string) (n int64, err error) {
	w, err := NewWriter(p.opts.Format, dest, schema, WriterOptions{
		Compress:  p.opts.Compress,
		BatchSize: p.opts.BatchSize,
		Logger:    p.logger,
	})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			w.Abort()
		}
	}()

	parser := NewParser(r, WithLimits(p.opts.Limits), WithChunkSize(p.opts.ChunkSize))
	mapper := NewMapper(schema)

	var firstLine, lastLine uint64
	logTime := time.Now()
	recCount := 0
	for {
		if p.stopped() {
			return n, ErrInterrupted
		}
		if time.Since(logTime) >= LogInterval {
			p.logger.Info("Recorded records", "count", recCount, "record_type", schema.Code, "line", parser.Line())
			logTime = time.Now()
			recCount = 0
		}

		raw, err := parser.ReadRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}

		rec, err := mapper.Map(raw)
		if err != nil {
			return n, err
		}
		if err := w.Write(rec); err != nil {
			return n, err
		}

		n++
		recCount++
		if firstLine == 0 {
			firstLine = raw.StartLine
		}
		lastLine = raw.StartLine
	}

	if err := w.Close(); err != nil {
		return n, err
	}
	p.stats.noteCommitted(schema.Code, n, firstLine, lastLine)
	return n, nil
}
