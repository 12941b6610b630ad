package pipeline

import (
	"log/slog"
	"sync"
)

// Sink is the append-only activity log. Producers on any goroutine call
// Append; a single consumer drains Events and reads the history with Lines
// or Since. Events are wake-ups only: when the consumer lags, sends are
// dropped but the history stays complete.
type Sink struct {
	logger *slog.Logger

	mu      sync.Mutex
	lines   []string
	closed  bool
	dropped int64

	events    chan string
	closeOnce sync.Once
}

// NewSink builds a sink with the given event buffer. A nil logger disables
// mirroring lines to structured logs.
func NewSink(buffer int, logger *slog.Logger) *Sink {
	if buffer <= 0 {
		buffer = 1
	}
	return &Sink{
		logger: logger,
		events: make(chan string, buffer),
	}
}

// Append records msg and notifies the consumer without blocking.
func (s *Sink) Append(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.lines = append(s.lines, msg)
	if s.logger != nil {
		s.logger.Info("activity", slog.String("line", msg))
	}

	select {
	case s.events <- msg:
	default:
		s.dropped++
	}
}

// Events is closed by Close.
func (s *Sink) Events() <-chan string {
	return s.events
}

// Lines returns a copy of every line appended so far.
func (s *Sink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

// Since returns the lines appended after the first n.
func (s *Sink) Since(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n >= len(s.lines) {
		return nil
	}
	out := make([]string, len(s.lines)-n)
	copy(out, s.lines[n:])
	return out
}

// Len returns the number of lines appended so far.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// Dropped reports how many notifications were skipped for a slow consumer.
func (s *Sink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops accepting lines and closes the event channel.
func (s *Sink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		close(s.events)
	})
}
