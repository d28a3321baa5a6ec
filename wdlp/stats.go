package wdlp

import (
	"sort"
	"sync"
	"time"
)

// Stats accumulates what a run did, per record type.
type Stats struct {
	// record type => TypeStats
	Types      map[RecordType]*TypeStats `json:"types"`
	StartedAt  time.Time                 `json:"started_at"`
	Elapsed    time.Duration             `json:"elapsed"`
	sync.Mutex `json:"-"`
}

type TypeStats struct {
	// Records only counts records of committed outputs.
	Records   int64  `json:"records"`
	Errors    int64  `json:"errors"`
	Skipped   int64  `json:"skipped"`
	FirstLine uint64 `json:"first_line"`
	LastLine  uint64 `json:"last_line"`
}

func NewStats() *Stats {
	return &Stats{
		Types:     make(map[RecordType]*TypeStats),
		StartedAt: time.Now(),
	}
}

func (s *Stats) typeStats(code RecordType) *TypeStats {
	ts := s.Types[code]
	if ts == nil {
		ts = &TypeStats{}
		s.Types[code] = ts
	}
	return ts
}

// noteCommitted counts n records, first through last source line, once their
// output has been committed.
func (s *Stats) noteCommitted(code RecordType, n int64, first, last uint64) {
	s.Lock()
	defer s.Unlock()
	s.typeStats(code).noteRecords(n, first, last)
}

func (s *Stats) noteError(code RecordType) {
	s.Lock()
	defer s.Unlock()
	s.typeStats(code).Errors++
}

func (s *Stats) noteSkipped(code RecordType) {
	s.Lock()
	defer s.Unlock()
	s.typeStats(code).Skipped++
}

func (s *Stats) finish() {
	s.Lock()
	defer s.Unlock()
	s.Elapsed = time.Since(s.StartedAt)
}

func (t *TypeStats) noteRecords(n int64, first, last uint64) {
	if n == 0 {
		return
	}
	t.Records += n
	if t.FirstLine == 0 || first < t.FirstLine {
		t.FirstLine = first
	}
	if last > t.LastLine {
		t.LastLine = last
	}
}

// Codes returns the record types seen, sorted.
func (s *Stats) Codes() []RecordType {
	s.Lock()
	defer s.Unlock()
	codes := make([]RecordType, 0, len(s.Types))
	for c := range s.Types {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Totals sums records and errors over every type.
func (s *Stats) Totals() (records, errors int64) {
	s.Lock()
	defer s.Unlock()
	for _, t := range s.Types {
		records += t.Records
		errors += t.Errors
	}
	return
}
