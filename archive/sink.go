package archive

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/tliron/commonlog"
)

// Sink receives single-line diagnostic messages. Emit must not block for
// long and must not panic; errors are the sink's own business.
type Sink interface {
	Emit(line string)
}

// LoggerSink writes lines to a commonlog logger at info level.
type LoggerSink struct {
	logger commonlog.Logger
}

// NewLoggerSink wraps logger.
func NewLoggerSink(logger commonlog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

// Emit implements Sink.
func (s *LoggerSink) Emit(line string) {
	s.logger.Infof("%s", line)
}

// ClassListSink appends lines to a class list file, one per line, in the
// order they are emitted.
type ClassListSink struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	failed bool
}

// OpenClassList opens (creating or appending to) the class list at path.
func OpenClassList(path string) (*ClassListSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open class list %s: %w", path, err)
	}
	return &ClassListSink{f: f, w: bufio.NewWriter(f)}, nil
}

// Emit implements Sink. The first write error is logged; later lines are
// dropped.
func (s *ClassListSink) Emit(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed || s.w == nil {
		return
	}
	if _, err := s.w.WriteString(line + "\n"); err != nil {
		s.failed = true
		log.Errorf("class list write failed, dropping further lines: %v", err)
	}
}

// Close flushes and closes the file.
func (s *ClassListSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	ferr := s.w.Flush()
	cerr := s.f.Close()
	s.w = nil
	if ferr != nil {
		return ferr
	}
	return cerr
}

// MultiSink fans a line out to several sinks.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(line string) {
	for _, s := range m {
		s.Emit(line)
	}
}
