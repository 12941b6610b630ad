// Package session runs scrape sessions: one background unit of work at a
// time, guarded state transitions, and activity reporting to the log sink.
package session

import "errors"

// State is the orchestrator's position in its lifecycle.
type State int

const (
	Idle State = iota
	ElementsPending
	Busy
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ElementsPending:
		return "elements_pending"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// Precondition failures. Each is logged with a user-facing message and
// leaves the state unchanged.
var (
	ErrBusy             = errors.New("session: scrape in progress")
	ErrMissingURL       = errors.New("session: url is empty")
	ErrMissingSelectors = errors.New("session: no selectors chosen")
	ErrMissingPath      = errors.New("session: no save path chosen")
	ErrNotPending       = errors.New("session: element selection is not open")
)

const (
	msgBusyChoosing     = "Scraping is in progress. Please wait or cancel the process."
	msgBusyStarting     = "Scraping is already in progress."
	msgMissingURL       = "Please enter a valid URL."
	msgMissingSelectors = "Please choose elements for scraping."
	msgMissingPath      = "Please choose a valid save path."
)
