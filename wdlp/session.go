package wdlp

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
)

const sessionBufferSize = 1024 * 1024

// Destinations with an open session. Two sessions may never stage output for
// the same path.
var openSessions = struct {
	sync.Mutex
	paths map[string]struct{}
}{paths: make(map[string]struct{})}

func claimDestination(path string) error {
	openSessions.Lock()
	defer openSessions.Unlock()
	if _, ok := openSessions.paths[path]; ok {
		return ErrSessionOpen
	}
	openSessions.paths[path] = struct{}{}
	return nil
}

func releaseDestination(path string) {
	openSessions.Lock()
	defer openSessions.Unlock()
	delete(openSessions.paths, path)
}

// SessionOptions configure a WriteSession.
type SessionOptions struct {
	// Compress wraps the staged bytes in a snappy framed stream.
	Compress bool
	Logger   *slog.Logger
}

// A WriteSession stages output for one destination. Commit makes the staged
// file the destination in a single rename; Abort removes it. Either way the
// destination is never seen half written.
type WriteSession struct {
	dest    string
	key     string
	staging string

	file *os.File
	buf  *bufio.Writer
	sz   *snappy.Writer
	w    io.Writer

	logger *slog.Logger
	closed bool
}

// OpenWriteSession removes any existing file at dest and creates a staging
// file next to it. The staging file lives in the same directory so the final
// rename never crosses a filesystem.
func OpenWriteSession(dest string, opts SessionOptions) (s *WriteSession, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	key, err := filepath.Abs(dest)
	if err != nil {
		return nil, resourceError("resolve", dest, err)
	}
	if err = claimDestination(key); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			releaseDestination(key)
		}
	}()

	if _, err = os.Lstat(dest); err == nil {
		logger.Info("Removing previous output", "path", dest)
		if err = os.Remove(dest); err != nil {
			return nil, resourceError("remove", dest, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, resourceError("stat", dest, err)
	}

	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return nil, resourceError("create staging file for", dest, err)
	}
	logger.Debug("Opening file", "staging", f.Name(), "dest", dest)

	s = &WriteSession{
		dest:    dest,
		key:     key,
		staging: f.Name(),
		file:    f,
		buf:     bufio.NewWriterSize(f, sessionBufferSize),
		logger:  logger,
	}
	s.w = s.buf
	if opts.Compress {
		s.sz = snappy.NewBufferedWriter(s.buf)
		s.w = s.sz
	}
	return s, nil
}

// Writer is where encoders put the output.
func (s *WriteSession) Writer() io.Writer {
	return s.w
}

func (s *WriteSession) Destination() string {
	return s.dest
}

func (s *WriteSession) StagingPath() string {
	return s.staging
}

// Commit flushes, syncs and closes the staging file, then renames it onto the
// destination. If any step fails the staging file is removed.
func (s *WriteSession) Commit() (err error) {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	defer releaseDestination(s.key)
	defer func() {
		if err != nil {
			s.discard()
		}
	}()

	if s.sz != nil {
		if err = s.sz.Close(); err != nil {
			return resourceError("flush", s.staging, err)
		}
	}
	if err = s.buf.Flush(); err != nil {
		return resourceError("flush", s.staging, err)
	}
	if err = s.file.Sync(); err != nil {
		return resourceError("sync", s.staging, err)
	}
	if err = s.file.Close(); err != nil {
		return resourceError("close", s.staging, err)
	}
	if err = os.Rename(s.staging, s.dest); err != nil {
		return resourceError("rename", s.dest, err)
	}

	s.logger.Debug("Closing file", "dest", s.dest)
	return nil
}

// Abort discards everything staged. It is safe to call more than once, and
// after Commit.
func (s *WriteSession) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer releaseDestination(s.key)

	s.logger.Debug("Discarding file", "staging", s.staging, "dest", s.dest)
	return s.discard()
}

func (s *WriteSession) discard() error {
	// The file may already be closed on a failed commit.
	s.file.Close()

	if err := os.Remove(s.staging); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return resourceError("remove", s.staging, err)
	}
	return nil
}
