// Package registry holds the ordered selector list entered by the user.
package registry

import (
	"sync"

	"github.com/aluiziolira/go-scrape-selectors/parser"
)

// Appender receives human-readable activity lines.
type Appender interface {
	Append(msg string)
}

// Registry stores the current selector sequence.
type Registry struct {
	mu        sync.RWMutex
	selectors []string
	log       Appender
}

// New returns an empty registry that reports changes to log.
func New(log Appender) *Registry {
	return &Registry{log: log}
}

// Replace parses text and swaps in the resulting selectors in one step.
func (r *Registry) Replace(text string) []string {
	selectors := parser.ParseSelectors(text)

	r.mu.Lock()
	r.selectors = selectors
	r.mu.Unlock()

	if r.log != nil {
		r.log.Append(parser.SelectionSummary(selectors))
	}
	return r.Selectors()
}

// Selectors returns a copy of the current sequence.
func (r *Registry) Selectors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.selectors))
	copy(out, r.selectors)
	return out
}

// Len returns the number of stored selectors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.selectors)
}
