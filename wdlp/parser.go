package wdlp

import (
	"io"
	"iter"
)

// DefaultChunkSize is how much the parser asks its reader for at a time.
const DefaultChunkSize = 8192

// Give up on readers that keep returning nothing.
const maxEmptyReads = 100

// A RecordReader produces raw records until io.EOF.
type RecordReader interface {
	ReadRecord() (RawRecord, error)
}

// A Parser turns a byte stream into RawRecords.
//
// Once ReadRecord has returned an error (io.EOF included), every later call
// returns that same error. The input is never scanned again.
type Parser struct {
	r       io.Reader
	g       *grammar
	buf     []byte
	pos     int
	n       int
	readErr error
	empty   int

	done error
}

type ParserOption func(*Parser)

// WithLimits sets the field length and field count limits.
func WithLimits(l Limits) ParserOption {
	return func(p *Parser) {
		p.g = newGrammar(l)
	}
}

// WithChunkSize sets the read size. It has no effect on what is parsed.
func WithChunkSize(n int) ParserOption {
	return func(p *Parser) {
		if n > 0 {
			p.buf = make([]byte, n)
		}
	}
}

func NewParser(r io.Reader, opts ...ParserOption) *Parser {
	p := &Parser{
		r:   r,
		g:   newGrammar(DefaultLimits()),
		buf: make([]byte, DefaultChunkSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ReadRecord returns the next record, io.EOF after the last one, or the
// terminal *ParseError / *ResourceError.
func (p *Parser) ReadRecord() (rec RawRecord, err error) {
	if p.done != nil {
		return RawRecord{}, p.done
	}

	for {
		for p.pos < p.n {
			c := p.buf[p.pos]
			p.pos++

			r, perr := p.g.step(c)
			if perr != nil {
				p.done = perr
				return RawRecord{}, p.done
			}
			if r != nil {
				return *r, nil
			}
		}

		if p.readErr != nil {
			return p.finish()
		}

		p.fill()
	}
}

func (p *Parser) finish() (RawRecord, error) {
	if p.readErr != io.EOF {
		p.done = resourceError("read", "", p.readErr)
		return RawRecord{}, p.done
	}

	r, perr := p.g.finish()
	if perr != nil {
		p.done = perr
		return RawRecord{}, p.done
	}
	if r != nil {
		return *r, nil
	}

	p.done = io.EOF
	return RawRecord{}, p.done
}

func (p *Parser) fill() {
	n, err := p.r.Read(p.buf)
	p.pos, p.n = 0, n
	p.readErr = err

	if n == 0 && err == nil {
		p.empty++
		if p.empty >= maxEmptyReads {
			p.readErr = io.ErrNoProgress
		}
		return
	}
	p.empty = 0
}

// Line is the line number of the next unread byte.
func (p *Parser) Line() uint64 {
	return p.g.line
}

// Records adapts the parser to a range-over-func sequence. The sequence ends
// after the first error, which is yielded; io.EOF is not.
func (p *Parser) Records() iter.Seq2[RawRecord, error] {
	return func(yield func(RawRecord, error) bool) {
		for {
			rec, err := p.ReadRecord()
			if err == io.EOF {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}
