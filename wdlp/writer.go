package wdlp

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

const (
	// DefaultBatchSize is how many rows a columnar writer buffers before
	// writing a row group.
	DefaultBatchSize = 1000
	maxBatchSize     = 65536
)

// A RecordWriter puts typed records into one destination. Nothing is visible
// at the destination until Close succeeds; Abort throws everything away.
type RecordWriter interface {
	Write(rec TypedRecord) error
	Close() error
	Abort() error
}

// WriterOptions are the knobs shared by every output format.
type WriterOptions struct {
	// Compress snappy-frames the text formats. Parquet compresses its own
	// column chunks and ignores it.
	Compress  bool
	BatchSize int
	Logger    *slog.Logger
}

func (o WriterOptions) batchSize() int {
	switch {
	case o.BatchSize <= 0:
		return DefaultBatchSize
	case o.BatchSize > maxBatchSize:
		return maxBatchSize
	}
	return o.BatchSize
}

// An encoder serializes records onto a session's stream.
type encoder interface {
	encode(rec TypedRecord) error
	// close writes any trailer. It must not close the underlying writer.
	close() error
}

// Encoders holding memory that must be handed back on abort.
type releaser interface {
	release()
}

type encoderFactory func(w io.Writer, schema *Schema, opts WriterOptions) (encoder, error)

var encoders = map[Format]encoderFactory{
	FormatJSONL:   newJSONLEncoder,
	FormatParquet: newParquetEncoder,
	FormatIon:     newIonEncoder,
	FormatCSV:     newCSVEncoder,
}

// Formats lists the supported output formats.
func Formats() []Format {
	formats := make([]Format, 0, len(encoders))
	for f := range encoders {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := encoders[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
	return f, nil
}

// Compressible reports whether the format is written through the snappy
// framing option.
func (f Format) Compressible() bool {
	return f != FormatParquet
}

// NewWriter opens a write session on dest and an encoder for format on top of
// it.
func NewWriter(format Format, dest string, schema *Schema, opts WriterOptions) (RecordWriter, error) {
	factory, ok := encoders[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	session, err := OpenWriteSession(dest, SessionOptions{
		Compress: opts.Compress && format.Compressible(),
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	enc, err := factory(session.Writer(), schema, opts)
	if err != nil {
		session.Abort()
		return nil, resourceError("start "+string(format)+" output", dest, err)
	}

	return &sessionWriter{session: session, enc: enc, schema: schema}, nil
}

type sessionWriter struct {
	session *WriteSession
	enc     encoder
	schema  *Schema
	written int
	closed  bool
}

func (w *sessionWriter) Write(rec TypedRecord) error {
	if w.closed {
		return ErrSessionClosed
	}
	if rec.Schema == nil {
		return fmt.Errorf("untyped record written to %s output", w.schema.Code)
	}
	if rec.Schema != w.schema {
		return fmt.Errorf("record of type %s written to %s output", rec.Schema.Code, w.schema.Code)
	}
	if err := w.enc.encode(rec); err != nil {
		return resourceError("write", w.session.StagingPath(), err)
	}
	w.written++
	return nil
}

// Close finishes the encoding and commits the session.
func (w *sessionWriter) Close() error {
	if w.closed {
		return ErrSessionClosed
	}
	w.closed = true

	if err := w.enc.close(); err != nil {
		w.session.Abort()
		return resourceError("finish", w.session.StagingPath(), err)
	}
	return w.session.Commit()
}

func (w *sessionWriter) Abort() error {
	if !w.closed {
		if r, ok := w.enc.(releaser); ok {
			r.release()
		}
	}
	w.closed = true
	return w.session.Abort()
}

// Written is how many records have been accepted so far.
func (w *sessionWriter) Written() int {
	return w.written
}
