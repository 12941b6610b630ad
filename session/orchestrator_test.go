package session

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-selectors/config"
	"github.com/aluiziolira/go-scrape-selectors/models"
	"github.com/aluiziolira/go-scrape-selectors/pipeline"
	"github.com/aluiziolira/go-scrape-selectors/registry"
	"github.com/aluiziolira/go-scrape-selectors/scraper"
	"github.com/jarcoal/httpmock"
)

const testURL = "http://example.test/article"

const testPage = `<html><body><h1>Title</h1><p>one</p><p>two</p></body></html>`

type harness struct {
	orch      *Orchestrator
	sink      *pipeline.Sink
	transport *httpmock.MockTransport
	output    string
}

func newHarness(t *testing.T, iterations int, responder httpmock.Responder) *harness {
	t.Helper()

	s, err := scraper.NewScraper(config.DefaultConfig())
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testURL, responder)
	s.WithTransport(transport)

	sink := pipeline.NewSink(16, nil)
	reg := registry.New(sink)
	return &harness{
		orch:      New(s, reg, sink, iterations),
		sink:      sink,
		transport: transport,
		output:    filepath.Join(t.TempDir(), "out.txt"),
	}
}

func (h *harness) chooseElements(t *testing.T, text string) {
	t.Helper()
	chooseElements(t, h.orch, text)
}

func chooseElements(t *testing.T, orch *Orchestrator, text string) {
	t.Helper()
	if err := orch.BeginElements(); err != nil {
		t.Fatalf("begin elements: %v", err)
	}
	if got := orch.State(); got != ElementsPending {
		t.Fatalf("state=%s, want elements_pending", got)
	}
	if _, err := orch.ConfirmElements(text); err != nil {
		t.Fatalf("confirm elements: %v", err)
	}
	if got := orch.State(); got != Idle {
		t.Fatalf("state=%s, want idle", got)
	}
}

func startAndWait(t *testing.T, orch *Orchestrator, output string) *models.SessionResult {
	t.Helper()
	if err := orch.Start(context.Background(), testURL, output); err != nil {
		t.Fatalf("start: %v", err)
	}
	result := orch.Wait()
	if result == nil {
		t.Fatal("no session result")
	}
	return result
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("read output: %v", err)
	}
	return lines
}

func lastLine(t *testing.T, sink *pipeline.Sink) string {
	t.Helper()
	lines := sink.Lines()
	if len(lines) == 0 {
		t.Fatal("log is empty")
	}
	return lines[len(lines)-1]
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func TestStartPreconditions(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		selectors string
		path      func(h *harness) string
		wantErr   error
		wantLog   string
	}{
		{
			name:      "empty url",
			url:       "",
			selectors: "h1",
			path:      func(h *harness) string { return h.output },
			wantErr:   ErrMissingURL,
			wantLog:   "Please enter a valid URL.",
		},
		{
			name:      "no selectors",
			url:       testURL,
			selectors: "",
			path:      func(h *harness) string { return h.output },
			wantErr:   ErrMissingSelectors,
			wantLog:   "Please choose elements for scraping.",
		},
		{
			name:      "no save path",
			url:       testURL,
			selectors: "h1",
			path:      func(*harness) string { return "" },
			wantErr:   ErrMissingPath,
			wantLog:   "Please choose a valid save path.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1, httpmock.NewStringResponder(200, testPage))
			if tt.selectors != "" {
				h.chooseElements(t, tt.selectors)
			}

			err := h.orch.Start(context.Background(), tt.url, tt.path(h))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v, want %v", err, tt.wantErr)
			}
			if got := h.orch.State(); got != Idle {
				t.Fatalf("state=%s, want idle", got)
			}
			if got := lastLine(t, h.sink); got != tt.wantLog {
				t.Fatalf("last log=%q, want %q", got, tt.wantLog)
			}
			if _, statErr := os.Stat(h.output); !os.IsNotExist(statErr) {
				t.Fatalf("output file must not be created (stat err=%v)", statErr)
			}
			if got := h.transport.GetTotalCallCount(); got != 0 {
				t.Fatalf("transport calls=%d, want 0", got)
			}
		})
	}
}

func TestCheckStartDoesNotNeedPath(t *testing.T) {
	h := newHarness(t, 1, httpmock.NewStringResponder(200, testPage))
	if err := h.orch.CheckStart(""); !errors.Is(err, ErrMissingURL) {
		t.Fatalf("err=%v, want ErrMissingURL", err)
	}

	h.chooseElements(t, "h1")
	if err := h.orch.CheckStart(testURL); err != nil {
		t.Fatalf("check start: %v", err)
	}
	if got := h.orch.State(); got != Idle {
		t.Fatalf("state=%s, want idle", got)
	}
}

func TestSessionWritesOneLinePerSelectorPerIteration(t *testing.T) {
	h := newHarness(t, 3, httpmock.NewStringResponder(200, testPage))
	h.chooseElements(t, "h1\np")

	result := startAndWait(t, h.orch, h.output)
	if result.Err != nil {
		t.Fatalf("session error: %v", result.Err)
	}
	if !result.Succeeded() {
		t.Fatalf("session did not succeed: %+v", result)
	}
	if got := h.orch.State(); got != Idle {
		t.Fatalf("state=%s, want idle", got)
	}

	lines := readLines(t, h.output)
	if len(lines) != 6 {
		t.Fatalf("lines=%d, want 6", len(lines))
	}
	for i := 0; i < len(lines); i += 2 {
		if lines[i] != "Selected Data for 'h1': [<h1>Title</h1>]" {
			t.Fatalf("line %d=%q", i, lines[i])
		}
		if lines[i+1] != "Selected Data for 'p': [<p>one</p>, <p>two</p>]" {
			t.Fatalf("line %d=%q", i+1, lines[i+1])
		}
	}
	if result.LinesWritten != 6 {
		t.Fatalf("lines written=%d, want 6", result.LinesWritten)
	}
	if got := h.transport.GetTotalCallCount(); got != 3 {
		t.Fatalf("transport calls=%d, want 3 (one per iteration)", got)
	}

	logged := h.sink.Lines()
	if got := countPrefix(logged, "Selected Data for 'h1':"); got != 3 {
		t.Fatalf("logged h1 lines=%d, want 3", got)
	}
	if got := countPrefix(logged, "Selected Data for 'p':"); got != 3 {
		t.Fatalf("logged p lines=%d, want 3", got)
	}
	if last := logged[len(logged)-1]; !strings.HasPrefix(last, "Scraping completed: 3 iterations") {
		t.Fatalf("last log=%q", last)
	}
}

func TestFullSessionProducesHundredLines(t *testing.T) {
	h := newHarness(t, 0, httpmock.NewStringResponder(200, testPage))
	h.chooseElements(t, "h1")

	result := startAndWait(t, h.orch, h.output)
	if result.Err != nil {
		t.Fatalf("session error: %v", result.Err)
	}
	if result.Completed != DefaultIterations {
		t.Fatalf("completed=%d, want %d", result.Completed, DefaultIterations)
	}
	if got := len(readLines(t, h.output)); got != 100 {
		t.Fatalf("lines=%d, want 100", got)
	}
	if got := h.transport.GetTotalCallCount(); got != 100 {
		t.Fatalf("transport calls=%d, want 100", got)
	}

	done, total := h.orch.Progress()
	if done != 100 || total != 100 {
		t.Fatalf("progress=%d/%d, want 100/100", done, total)
	}
}

func TestNon200EveryIteration(t *testing.T) {
	h := newHarness(t, 0, httpmock.NewStringResponder(500, "boom"))
	h.chooseElements(t, "h1")

	result := startAndWait(t, h.orch, h.output)
	if result.Err != nil {
		t.Fatalf("session error: %v", result.Err)
	}
	if result.HTTPErrors != 100 || result.Completed != 100 {
		t.Fatalf("http errors=%d completed=%d, want 100/100", result.HTTPErrors, result.Completed)
	}
	if got := h.orch.State(); got != Idle {
		t.Fatalf("state=%s, want idle", got)
	}
	if lines := readLines(t, h.output); len(lines) != 0 {
		t.Fatalf("output=%v, want empty", lines)
	}
	if got := countPrefix(h.sink.Lines(), "Error: 500"); got != 100 {
		t.Fatalf("status lines=%d, want 100", got)
	}
}

func TestTransportErrorEndsSession(t *testing.T) {
	h := newHarness(t, 10, httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))
	h.chooseElements(t, "h1")

	result := startAndWait(t, h.orch, h.output)
	if result.Err == nil {
		t.Fatal("expected a session error")
	}
	if result.Completed != 0 {
		t.Fatalf("completed=%d, want 0", result.Completed)
	}
	if got := h.transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("transport calls=%d, want 1 (loop stops on a terminal error)", got)
	}
	if got := h.orch.State(); got != Idle {
		t.Fatalf("state=%s, want idle", got)
	}
	if got := countPrefix(h.sink.Lines(), "An error occurred:"); got != 1 {
		t.Fatalf("error lines=%d, want 1", got)
	}
	if _, err := os.Stat(h.output); err != nil {
		t.Fatalf("output file should be kept: %v", err)
	}
}

func TestOutputFileErrorReturnsToIdle(t *testing.T) {
	h := newHarness(t, 1, httpmock.NewStringResponder(200, testPage))
	h.chooseElements(t, "h1")

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	if err := h.orch.Start(context.Background(), testURL, filepath.Join(blocker, "out.txt")); err == nil {
		t.Fatal("expected an error opening the output file")
	}
	if got := h.orch.State(); got != Idle {
		t.Fatalf("state=%s, want idle", got)
	}
	last := h.orch.Last()
	if last == nil || last.Err == nil {
		t.Fatalf("last result=%+v, want an error", last)
	}
	if got := h.transport.GetTotalCallCount(); got != 0 {
		t.Fatalf("transport calls=%d, want 0", got)
	}
}

// blockingExtractor parks every call until release is closed.
type blockingExtractor struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func newBlockingExtractor() *blockingExtractor {
	return &blockingExtractor{
		entered: make(chan struct{}, 128),
		release: make(chan struct{}),
	}
}

func (b *blockingExtractor) Extract(ctx context.Context, url string, selectors []string) (*models.Extraction, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()

	b.entered <- struct{}{}
	<-b.release

	results := make([]models.SelectorResult, 0, len(selectors))
	for _, s := range selectors {
		results = append(results, models.SelectorResult{Selector: s})
	}
	return &models.Extraction{URL: url, StatusCode: 200, Results: results}, nil
}

func (b *blockingExtractor) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func newBlockingOrchestrator(t *testing.T, iterations int) (*Orchestrator, *blockingExtractor, *pipeline.Sink, string) {
	t.Helper()
	sink := pipeline.NewSink(16, nil)
	extractor := newBlockingExtractor()
	orch := New(extractor, registry.New(sink), sink, iterations)
	chooseElements(t, orch, "h1")
	return orch, extractor, sink, filepath.Join(t.TempDir(), "out.txt")
}

func TestSecondStartWhileBusyIsRejected(t *testing.T) {
	orch, extractor, sink, output := newBlockingOrchestrator(t, 1)

	if err := orch.Start(context.Background(), testURL, output); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-extractor.entered
	if got := orch.State(); got != Busy {
		t.Fatalf("state=%s, want busy", got)
	}

	other := filepath.Join(filepath.Dir(output), "other.txt")
	if err := orch.Start(context.Background(), testURL, other); !errors.Is(err, ErrBusy) {
		t.Fatalf("second start err=%v, want ErrBusy", err)
	}
	if got := lastLine(t, sink); got != "Scraping is already in progress." {
		t.Fatalf("last log=%q", got)
	}

	if err := orch.BeginElements(); !errors.Is(err, ErrBusy) {
		t.Fatalf("begin elements err=%v, want ErrBusy", err)
	}
	if got := lastLine(t, sink); got != "Scraping is in progress. Please wait or cancel the process." {
		t.Fatalf("last log=%q", got)
	}

	close(extractor.release)
	if result := orch.Wait(); result.Err != nil {
		t.Fatalf("session error: %v", result.Err)
	}

	if got := extractor.Calls(); got != 1 {
		t.Fatalf("extract calls=%d, want 1 (no second worker)", got)
	}
	if _, err := os.Stat(other); !os.IsNotExist(err) {
		t.Fatalf("rejected start must not create %s (stat err=%v)", other, err)
	}
	if got := orch.State(); got != Idle {
		t.Fatalf("state=%s, want idle", got)
	}
}

func TestCancelStopsBetweenIterations(t *testing.T) {
	orch, extractor, sink, output := newBlockingOrchestrator(t, 50)

	if err := orch.Start(context.Background(), testURL, output); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-extractor.entered
	if !orch.Cancel() {
		t.Fatal("cancel reported no running session")
	}
	close(extractor.release)

	result := orch.Wait()
	if result.Err != nil {
		t.Fatalf("session error: %v", result.Err)
	}
	if !result.Cancelled || result.Completed != 1 {
		t.Fatalf("cancelled=%v completed=%d, want true/1", result.Cancelled, result.Completed)
	}
	if got := extractor.Calls(); got != 1 {
		t.Fatalf("extract calls=%d, want 1", got)
	}
	if got := len(readLines(t, output)); got != 1 {
		t.Fatalf("lines=%d, want 1 (written before cancel)", got)
	}
	found := false
	for _, line := range sink.Lines() {
		if line == "Scraping cancelled after 1 iterations." {
			found = true
		}
	}
	if !found {
		t.Fatalf("cancel line missing from log %v", sink.Lines())
	}
	if orch.Cancel() {
		t.Fatal("cancel after finish should report nothing to cancel")
	}
}

func TestConfirmElementsRequiresPending(t *testing.T) {
	sink := pipeline.NewSink(4, nil)
	orch := New(newBlockingExtractor(), registry.New(sink), sink, 1)

	if _, err := orch.ConfirmElements("h1"); !errors.Is(err, ErrNotPending) {
		t.Fatalf("err=%v, want ErrNotPending", err)
	}

	if err := orch.BeginElements(); err != nil {
		t.Fatalf("begin elements: %v", err)
	}
	orch.CancelElements()
	if got := orch.State(); got != Idle {
		t.Fatalf("state=%s, want idle", got)
	}
	if got := orch.Selectors(); len(got) != 0 {
		t.Fatalf("selectors=%v, want none", got)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Idle:            "idle",
		ElementsPending: "elements_pending",
		Busy:            "busy",
		State(42):       "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String()=%q, want %q", int(state), got, want)
		}
	}
}
