// Package models defines data structures for the scraper.
package models

import "time"

// SelectorResult pairs a selector with the rendered nodes it matched.
type SelectorResult struct {
	Selector string   `json:"selector"`
	Matches  []string `json:"matches"`
}

// Extraction is the outcome of one fetch-and-extract round.
type Extraction struct {
	URL        string           `json:"url"`
	StatusCode int              `json:"status_code"`
	Results    []SelectorResult `json:"results"`
	FetchedAt  time.Time        `json:"fetched_at"`
	Duration   time.Duration    `json:"duration"`
}

// SessionResult summarises one scrape session.
type SessionResult struct {
	ID           string
	URL          string
	OutputFile   string
	Selectors    []string
	Iterations   int
	Completed    int
	LinesWritten int
	HTTPErrors   int
	Cancelled    bool
	Err          error
	StartTime    time.Time
	EndTime      time.Time
}

// Succeeded reports whether the session ran every iteration without a
// terminal error.
func (r *SessionResult) Succeeded() bool {
	return r != nil && r.Err == nil && !r.Cancelled && r.Completed == r.Iterations
}
