package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-selectors/config"
	"github.com/aluiziolira/go-scrape-selectors/models"
	"github.com/gocolly/colly/v2"
)

const (
	startKey    = "start"
	responseKey = "response"
)

// Scraper fetches a page with a colly collector and applies CSS selectors
// to the parsed body.
type Scraper struct {
	cfg       *config.Config
	collector *colly.Collector
	matchers  *matcherCache
	Metrics   *Metrics

	requestCount int64
	errorCount   int64
}

// NewScraper builds a scraper instance configured from cfg. The collector
// revisits the same URL on every call, hands non-2xx responses back
// instead of failing, reads bodies of any size and never retries.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	options := []colly.CollectorOption{
		colly.AllowURLRevisit(),
	}
	if cfg.UserAgent != "" {
		options = append(options, colly.UserAgent(cfg.UserAgent))
	}

	collector := colly.NewCollector(options...)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.ParseHTTPErrorResponse = true
	collector.IgnoreRobotsTxt = true
	// colly caps bodies at 10 MiB by default and truncates silently.
	collector.MaxBodySize = 0

	metrics := NewMetrics()
	matchers, err := newMatcherCache(cfg.CacheSize, metrics)
	if err != nil {
		return nil, err
	}

	s := &Scraper{
		cfg:       cfg,
		collector: collector,
		matchers:  matchers,
		Metrics:   metrics,
	}
	s.configureHandlers()
	return s, nil
}

// WithTransport swaps the HTTP transport used by the collector.
func (s *Scraper) WithTransport(rt http.RoundTripper) {
	s.collector.WithTransport(rt)
}

// RequestCount returns the number of requests issued so far.
func (s *Scraper) RequestCount() int {
	return int(atomic.LoadInt64(&s.requestCount))
}

// ErrorCount returns the number of failed or non-200 fetches.
func (s *Scraper) ErrorCount() int {
	return int(atomic.LoadInt64(&s.errorCount))
}

// Extract issues one GET for url and returns, for each selector in order,
// the outer HTML of every matching node. A non-200 response yields the
// extraction (without results) together with a *StatusError.
func (s *Scraper) Extract(ctx context.Context, url string, selectors []string) (*models.Extraction, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	reqCtx := colly.NewContext()
	reqCtx.Put(startKey, start)

	if err := s.collector.Request(http.MethodGet, url, nil, reqCtx, nil); err != nil {
		classified := classifyError(err, 0)
		s.recordError(classified)
		return nil, fmt.Errorf("fetch %s: %w", url, classified)
	}

	resp, ok := reqCtx.GetAny(responseKey).(*colly.Response)
	if !ok || resp == nil {
		return nil, fmt.Errorf("fetch %s: no response received", url)
	}

	extraction := &models.Extraction{
		URL:        url,
		StatusCode: resp.StatusCode,
		FetchedAt:  start,
		Duration:   time.Since(start),
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := classifyError(nil, resp.StatusCode)
		s.recordError(statusErr)
		return extraction, statusErr
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		s.recordError(err)
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}

	extraction.Results = make([]models.SelectorResult, 0, len(selectors))
	for _, selector := range selectors {
		extraction.Results = append(extraction.Results, models.SelectorResult{
			Selector: selector,
			Matches:  s.render(doc, selector),
		})
	}
	return extraction, nil
}

func (s *Scraper) render(doc *goquery.Document, selector string) []string {
	nodes := doc.FindMatcher(s.matchers.get(selector))
	matches := make([]string, 0, nodes.Length())
	nodes.Each(func(_ int, node *goquery.Selection) {
		outer, err := goquery.OuterHtml(node)
		if err != nil {
			slog.Debug("render node failed",
				slog.String("selector", selector),
				slog.Any("error", err),
			)
			return
		}
		matches = append(matches, softenQuotes(outer))
	})
	s.Metrics.AddMatches(len(matches))
	return matches
}

// softenQuotes undoes the &#39; and &#34; escapes html.Render applies to
// text. Inside tags &#34; stays, since attribute values are double quoted.
func softenQuotes(rendered string) string {
	if !strings.Contains(rendered, "&#") {
		return rendered
	}

	var b strings.Builder
	b.Grow(len(rendered))
	inTag := false
	for i := 0; i < len(rendered); {
		c := rendered[i]
		switch {
		case c == '<':
			inTag = true
		case c == '>':
			inTag = false
		case strings.HasPrefix(rendered[i:], "&#39;"):
			b.WriteByte('\'')
			i += len("&#39;")
			continue
		case !inTag && strings.HasPrefix(rendered[i:], "&#34;"):
			b.WriteByte('"')
			i += len("&#34;")
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func (s *Scraper) configureHandlers() {
	s.collector.OnRequest(func(r *colly.Request) {
		current := atomic.AddInt64(&s.requestCount, 1)
		s.Metrics.IncRequest("started")
		slog.Debug("scraper request",
			slog.Int64("requests", current),
			slog.String("url", r.URL.String()),
		)
	})

	s.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(responseKey, r)
		s.Metrics.IncRequest("completed")
		if start, ok := r.Ctx.GetAny(startKey).(time.Time); ok {
			s.Metrics.ObserveDuration(time.Since(start))
		}
		if r.StatusCode != http.StatusOK {
			slog.Warn("non-200 response",
				slog.Int("status", r.StatusCode),
				slog.String("url", r.Request.URL.String()),
			)
		}
	})
}

func (s *Scraper) recordError(err error) {
	atomic.AddInt64(&s.errorCount, 1)
	category := errorTypeLabel(err)
	s.Metrics.IncError(category)
	slog.Debug("extraction error",
		slog.String("category", category),
		slog.Any("error", err),
	)
}
