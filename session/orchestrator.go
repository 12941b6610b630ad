package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-selectors/models"
	"github.com/aluiziolira/go-scrape-selectors/parser"
	"github.com/aluiziolira/go-scrape-selectors/pipeline"
	"github.com/aluiziolira/go-scrape-selectors/registry"
	"github.com/aluiziolira/go-scrape-selectors/scraper"
	"github.com/google/uuid"
)

// DefaultIterations is the number of fetch-and-extract rounds per session.
const DefaultIterations = 100

// Extractor performs one fetch-and-extract round.
type Extractor interface {
	Extract(ctx context.Context, url string, selectors []string) (*models.Extraction, error)
}

// Orchestrator owns the session state. All transitions go through its
// mutex, which is held only for the check-and-set; network and file I/O
// run unlocked on the background goroutine.
type Orchestrator struct {
	extractor  Extractor
	registry   *registry.Registry
	sink       *pipeline.Sink
	iterations int

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	done      chan struct{}
	completed int
	last      *models.SessionResult
}

// New wires an orchestrator. iterations <= 0 selects DefaultIterations.
func New(extractor Extractor, reg *registry.Registry, sink *pipeline.Sink, iterations int) *Orchestrator {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &Orchestrator{
		extractor:  extractor,
		registry:   reg,
		sink:       sink,
		iterations: iterations,
		state:      Idle,
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Busy reports whether a scrape is running.
func (o *Orchestrator) Busy() bool {
	return o.State() == Busy
}

// Progress returns completed and total iterations of the running (or last)
// session.
func (o *Orchestrator) Progress() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed, o.iterations
}

// Selectors returns the current selector sequence.
func (o *Orchestrator) Selectors() []string {
	return o.registry.Selectors()
}

// BeginElements opens element selection unless a scrape is running.
func (o *Orchestrator) BeginElements() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == Busy {
		o.sink.Append(msgBusyChoosing)
		return ErrBusy
	}
	o.state = ElementsPending
	return nil
}

// ConfirmElements replaces the selector list with the lines of text and
// returns to Idle.
func (o *Orchestrator) ConfirmElements(text string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case Busy:
		o.sink.Append(msgBusyChoosing)
		return nil, ErrBusy
	case Idle:
		return nil, ErrNotPending
	}

	selectors := o.registry.Replace(text)
	o.state = Idle
	return selectors, nil
}

// CancelElements closes element selection without changing the selectors.
func (o *Orchestrator) CancelElements() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == ElementsPending {
		o.state = Idle
	}
}

// CheckStart runs the start preconditions that do not depend on a save
// path, logging the first one that fails.
func (o *Orchestrator) CheckStart(url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.checkLocked(url, "", false)
}

// Start launches a scrape of url into path on a fresh goroutine. It
// returns a precondition error without touching the filesystem, or the
// error from creating the output file.
func (o *Orchestrator) Start(ctx context.Context, url, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	o.mu.Lock()
	if err := o.checkLocked(url, path, true); err != nil {
		o.mu.Unlock()
		return err
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	result := &models.SessionResult{
		ID:         uuid.NewString(),
		URL:        url,
		OutputFile: path,
		Selectors:  o.registry.Selectors(),
		Iterations: o.iterations,
		StartTime:  time.Now(),
	}
	o.state = Busy
	o.cancel = cancel
	o.done = done
	o.completed = 0
	o.mu.Unlock()

	writer, err := pipeline.NewTextWriter(path)
	if err != nil {
		result.Err = err
		o.sink.Append(fmt.Sprintf("An error occurred: %v", err))
		o.finish(result, done, cancel)
		return fmt.Errorf("open output: %w", err)
	}

	slog.Info("scrape session started",
		slog.String("session", result.ID),
		slog.String("url", url),
		slog.String("output", path),
		slog.Int("selectors", len(result.Selectors)),
		slog.Int("iterations", result.Iterations),
	)

	go o.run(sessionCtx, result, writer, done, cancel)
	return nil
}

// Cancel asks the running session to stop before its next iteration. It
// reports whether a session was running.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != Busy || o.cancel == nil {
		return false
	}
	o.cancel()
	o.sink.Append("Cancelling scrape...")
	return true
}

// Wait blocks until the current session, if any, has finished and returns
// the summary of the most recent session.
func (o *Orchestrator) Wait() *models.SessionResult {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	if done != nil {
		<-done
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Last returns the summary of the most recently finished session.
func (o *Orchestrator) Last() *models.SessionResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *Orchestrator) checkLocked(url, path string, needPath bool) error {
	switch {
	case o.state == Busy:
		o.sink.Append(msgBusyStarting)
		return ErrBusy
	case url == "":
		o.sink.Append(msgMissingURL)
		return ErrMissingURL
	case o.registry.Len() == 0:
		o.sink.Append(msgMissingSelectors)
		return ErrMissingSelectors
	case needPath && path == "":
		o.sink.Append(msgMissingPath)
		return ErrMissingPath
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, result *models.SessionResult, writer *pipeline.TextWriter, done chan struct{}, cancel context.CancelFunc) {
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("panic: %v", r)
			o.sink.Append(fmt.Sprintf("An error occurred: %v", r))
		}
		if err := writer.Close(); err != nil && result.Err == nil {
			result.Err = fmt.Errorf("close output: %w", err)
			o.sink.Append(fmt.Sprintf("An error occurred: %v", err))
		}
		result.LinesWritten = writer.Lines()
		o.finish(result, done, cancel)
	}()

	for i := 0; i < result.Iterations; i++ {
		if ctx.Err() != nil {
			o.markCancelled(result)
			return
		}

		extraction, err := o.extractor.Extract(ctx, result.URL, result.Selectors)
		if err != nil {
			if code, ok := scraper.IsStatusError(err); ok {
				result.HTTPErrors++
				o.sink.Append(parser.StatusLine(code))
				o.advance(result)
				continue
			}
			if errors.Is(err, context.Canceled) {
				o.markCancelled(result)
				return
			}
			result.Err = err
			o.sink.Append(fmt.Sprintf("An error occurred: %v", err))
			return
		}

		for _, selected := range extraction.Results {
			line := parser.ResultLine(selected)
			if err := writer.WriteLine(line); err != nil {
				result.Err = err
				o.sink.Append(fmt.Sprintf("An error occurred: %v", err))
				return
			}
			o.sink.Append(line)
		}
		o.advance(result)
	}

	o.sink.Append(fmt.Sprintf("Scraping completed: %d iterations, %d lines written to %s.",
		result.Completed, writer.Lines(), result.OutputFile))
}

func (o *Orchestrator) advance(result *models.SessionResult) {
	result.Completed++
	o.mu.Lock()
	o.completed = result.Completed
	o.mu.Unlock()
}

func (o *Orchestrator) markCancelled(result *models.SessionResult) {
	result.Cancelled = true
	o.sink.Append(fmt.Sprintf("Scraping cancelled after %d iterations.", result.Completed))
}

func (o *Orchestrator) finish(result *models.SessionResult, done chan struct{}, cancel context.CancelFunc) {
	result.EndTime = time.Now()

	o.mu.Lock()
	o.state = Idle
	o.cancel = nil
	o.last = result
	o.mu.Unlock()

	cancel()
	close(done)

	attrs := []any{
		slog.String("session", result.ID),
		slog.Int("completed", result.Completed),
		slog.Int("lines", result.LinesWritten),
		slog.Int("http_errors", result.HTTPErrors),
		slog.Bool("cancelled", result.Cancelled),
		slog.Duration("duration", result.EndTime.Sub(result.StartTime)),
	}
	if result.Err != nil {
		slog.Error("scrape session failed", append(attrs, slog.Any("error", result.Err))...)
		return
	}
	slog.Info("scrape session finished", attrs...)
}
