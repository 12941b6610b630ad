// Package pipeline carries scrape output: the text file writer and the log
// sink shown to the user.
package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// TextWriter writes UTF-8 lines to a truncated output file.
type TextWriter struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	lines  int
	closed bool
	mu     sync.Mutex
}

// NewTextWriter creates (or truncates) filename and any missing parent
// directories.
func NewTextWriter(filename string) (*TextWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	return &TextWriter{
		path:   filename,
		file:   f,
		writer: bufio.NewWriter(f),
	}, nil
}

// WriteLine appends line and a newline, then flushes to disk.
func (tw *TextWriter) WriteLine(line string) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return os.ErrClosed
	}
	if _, err := tw.writer.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	tw.lines++
	return nil
}

// Lines returns the number of lines written so far.
func (tw *TextWriter) Lines() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.lines
}

// Path returns the output file path.
func (tw *TextWriter) Path() string {
	return tw.path
}

// Close flushes buffers and closes the file. Calling it twice is a no-op.
func (tw *TextWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return nil
	}
	tw.closed = true

	flushErr := tw.writer.Flush()
	closeErr := tw.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush output: %w", flushErr)
	}
	return closeErr
}

// Validate ensures the output file still exists.
func (tw *TextWriter) Validate() error {
	if _, err := os.Stat(tw.path); err != nil {
		return fmt.Errorf("stat output file: %w", err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
