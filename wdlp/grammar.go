package wdlp

import (
	"fmt"
	"strconv"
)

const (
	// DefaultMaxFieldLen is the largest field, in bytes, the parser accepts.
	DefaultMaxFieldLen = 1024
	// DefaultMaxFields is the largest number of fields in one record.
	DefaultMaxFields = 256

	fieldSeparator = '|'

	// How much of an in-progress field a ParseError keeps.
	previewLen = 64
)

// Limits bound the size of what the parser will accept.
type Limits struct {
	MaxFieldLen int `yaml:"max_field_length"`
	MaxFields   int `yaml:"max_fields"`
}

func DefaultLimits() Limits {
	return Limits{MaxFieldLen: DefaultMaxFieldLen, MaxFields: DefaultMaxFields}
}

func (l Limits) withDefaults() Limits {
	if l.MaxFieldLen <= 0 {
		l.MaxFieldLen = DefaultMaxFieldLen
	}
	if l.MaxFields <= 0 {
		l.MaxFields = DefaultMaxFields
	}
	return l
}

type grammarState int

const (
	// No bytes consumed for the current record.
	stateStart grammarState = iota
	// Accumulating field bytes. CR and LF are field bytes here.
	stateInField
	// Just consumed "|". The next bytes either end the record or start a field.
	stateAfterSeparator
	// Consumed "|" CR; only LF may follow.
	stateAfterCR
	// Terminal.
	stateError
)

var stateNames = map[grammarState]string{
	stateStart:          "START",
	stateInField:        "IN_FIELD",
	stateAfterSeparator: "AFTER_TERMINATOR",
	stateAfterCR:        "AFTER_CR",
	stateError:          "ERROR",
}

func (s grammarState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// grammar is the record/field state machine. It is fed one byte at a time and
// knows nothing about where the bytes come from, so the way the input is
// chunked can never change its output.
type grammar struct {
	limits Limits
	state  grammarState

	// Position of the next byte.
	line   uint64
	column uint64
	offset uint64

	startLine uint64
	field     []byte
	fields    []string

	err *ParseError
}

func newGrammar(limits Limits) *grammar {
	return &grammar{
		limits: limits.withDefaults(),
		line:   1,
	}
}

// step consumes one byte. It returns a record when c completes one, and the
// terminal error once the grammar has failed.
func (g *grammar) step(c byte) (*RawRecord, *ParseError) {
	if g.state == stateError {
		return nil, g.err
	}

	line, col, off := g.line, g.column+1, g.offset
	g.offset++
	if c == '\n' {
		g.line++
		g.column = 0
	} else {
		g.column++
	}

	switch g.state {
	case stateStart, stateInField:
		if g.state == stateStart {
			g.startLine = line
		}
		if c == fieldSeparator {
			return nil, g.closeField(line, col, off)
		}
		g.state = stateInField
		return nil, g.appendByte(c, line, col, off)

	case stateAfterSeparator:
		switch c {
		case fieldSeparator:
			// "||" is an empty field
			return nil, g.closeField(line, col, off)
		case '\n':
			return g.emit(), nil
		case '\r':
			g.state = stateAfterCR
			return nil, nil
		default:
			g.state = stateInField
			return nil, g.appendByte(c, line, col, off)
		}

	case stateAfterCR:
		if c != '\n' {
			return nil, g.fail(ErrFraming, line, col, off, "LF after CR", describeByte(c))
		}
		return g.emit(), nil
	}

	return nil, g.fail(ErrFraming, line, col, off, "valid parser state", g.state.String())
}

// finish handles end of input. A nil record and nil error means a clean end.
func (g *grammar) finish() (*RawRecord, *ParseError) {
	switch g.state {
	case stateStart:
		return nil, nil
	case stateAfterSeparator:
		// Last record without a line terminator. The trailing "|" is there,
		// so the record is complete.
		return g.emit(), nil
	case stateInField:
		return nil, g.fail(ErrFraming, g.line, g.column+1, g.offset, `"|"`, "EOF (unterminated field)")
	case stateAfterCR:
		return nil, g.fail(ErrFraming, g.line, g.column+1, g.offset, "LF after CR", "EOF")
	}
	return nil, g.err
}

func (g *grammar) appendByte(c byte, line, col, off uint64) *ParseError {
	if len(g.field) >= g.limits.MaxFieldLen {
		return g.fail(ErrConstraint, line, col, off,
			fmt.Sprintf("field length <= %d bytes", g.limits.MaxFieldLen),
			"byte "+strconv.Itoa(len(g.field)+1))
	}
	g.field = append(g.field, c)
	return nil
}

func (g *grammar) closeField(line, col, off uint64) *ParseError {
	if len(g.fields) >= g.limits.MaxFields {
		return g.fail(ErrConstraint, line, col, off,
			fmt.Sprintf("at most %d fields", g.limits.MaxFields),
			"field "+strconv.Itoa(len(g.fields)+1))
	}
	g.fields = append(g.fields, string(g.field))
	g.field = g.field[:0]
	g.state = stateAfterSeparator
	return nil
}

func (g *grammar) emit() *RawRecord {
	rec := &RawRecord{StartLine: g.startLine, Fields: g.fields}
	g.fields = nil
	g.state = stateStart
	return rec
}

func (g *grammar) fail(kind error, line, col, off uint64, expected, received string) *ParseError {
	partial := g.field
	if len(partial) > previewLen {
		partial = partial[:previewLen]
	}
	g.err = &ParseError{
		Kind:          kind,
		Line:          line,
		Column:        col,
		Offset:        off,
		Expected:      expected,
		Received:      received,
		PartialFields: append([]string(nil), g.fields...),
		PartialField:  string(partial),
	}
	g.state = stateError
	return g.err
}

func describeByte(c byte) string {
	if c >= 0x20 && c < 0x7f {
		return strconv.QuoteRune(rune(c))
	}
	return fmt.Sprintf("0x%02X", c)
}
