package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-selectors/config"
	"github.com/aluiziolira/go-scrape-selectors/models"
	"github.com/aluiziolira/go-scrape-selectors/pipeline"
	"github.com/aluiziolira/go-scrape-selectors/registry"
	"github.com/aluiziolira/go-scrape-selectors/session"
	"github.com/briandowns/spinner"
	charmlog "github.com/charmbracelet/log"
)

// runHeadless runs a single session from flags and prints the activity log
// as it grows.
func runHeadless(ctx context.Context, cfg *config.Config, extractor session.Extractor, stdin io.Reader, out io.Writer) error {
	text, err := readSelectors(cfg.SelectorsFile, stdin)
	if err != nil {
		return fmt.Errorf("reading selectors: %w", err)
	}

	sink := pipeline.NewSink(sinkBuffer, nil)
	defer sink.Close()
	printer := newActivityPrinter(out)

	orch := session.New(extractor, registry.New(sink), sink, cfg.Iterations)
	if err := orch.BeginElements(); err != nil {
		return err
	}
	if _, err := orch.ConfirmElements(text); err != nil {
		return err
	}

	if err := orch.Start(ctx, cfg.URL, cfg.OutputFile); err != nil {
		printer.flush(sink)
		return err
	}

	spin := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	spin.Suffix = " scraping " + cfg.URL
	spin.Start()

	done := make(chan *models.SessionResult, 1)
	go func() {
		done <- orch.Wait()
	}()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sink.Events():
		case <-ticker.C:
		case result := <-done:
			spin.Stop()
			printer.flush(sink)
			printSummary(out, result)
			return sessionError(result)
		}

		completed, total := orch.Progress()
		if printer.pending(sink) {
			spin.Stop()
			printer.flush(sink)
			spin.Start()
		}
		spin.Suffix = fmt.Sprintf(" scraping %s (%d/%d)", cfg.URL, completed, total)
	}
}

func readSelectors(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func sessionError(result *models.SessionResult) error {
	switch {
	case result == nil:
		return errors.New("no session ran")
	case result.Err != nil:
		return result.Err
	case result.Cancelled:
		return context.Canceled
	case !result.Succeeded():
		return fmt.Errorf("session stopped after %d of %d iterations", result.Completed, result.Iterations)
	}
	return nil
}

// activityPrinter echoes sink lines it has not printed yet.
type activityPrinter struct {
	logger  *charmlog.Logger
	printed int
}

func newActivityPrinter(out io.Writer) *activityPrinter {
	return &activityPrinter{
		logger: charmlog.NewWithOptions(out, charmlog.Options{ReportTimestamp: false}),
	}
}

func (p *activityPrinter) pending(sink *pipeline.Sink) bool {
	return sink.Len() > p.printed
}

func (p *activityPrinter) flush(sink *pipeline.Sink) {
	for _, line := range sink.Since(p.printed) {
		p.printed++
		switch {
		case strings.HasPrefix(line, "An error occurred"), strings.HasPrefix(line, "Error: "):
			p.logger.Error(line)
		case strings.HasPrefix(line, "Please "), strings.HasPrefix(line, "Scraping is"), strings.HasPrefix(line, "Scraping cancelled"):
			p.logger.Warn(line)
		default:
			p.logger.Print(line)
		}
	}
}

func printSummary(out io.Writer, result *models.SessionResult) {
	if result == nil {
		return
	}
	separator := "--------------------------------------------------"
	fmt.Fprintln(out, "\n"+separator)
	fmt.Fprintln(out, "Scrape complete")
	fmt.Fprintf(out, "  Session:       %s\n", result.ID)
	fmt.Fprintf(out, "  URL:           %s\n", result.URL)
	fmt.Fprintf(out, "  Selectors:     %d\n", len(result.Selectors))
	fmt.Fprintf(out, "  Iterations:    %d/%d\n", result.Completed, result.Iterations)
	fmt.Fprintf(out, "  Lines written: %d\n", result.LinesWritten)
	fmt.Fprintf(out, "  HTTP errors:   %d\n", result.HTTPErrors)
	if result.Cancelled {
		fmt.Fprintln(out, "  Cancelled:     yes")
	}
	fmt.Fprintf(out, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Fprintf(out, "  Output file:   %s\n", result.OutputFile)
	fmt.Fprintln(out, separator)
}
