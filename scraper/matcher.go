package scraper

import (
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html"
)

// matcherCache keeps compiled selectors keyed by their source text. Only
// the compiled form is cached; documents are parsed fresh on every fetch.
type matcherCache struct {
	cache   *lru.Cache[string, goquery.Matcher]
	metrics *Metrics
}

func newMatcherCache(size int, metrics *Metrics) (*matcherCache, error) {
	cache, err := lru.New[string, goquery.Matcher](size)
	if err != nil {
		return nil, fmt.Errorf("create selector cache: %w", err)
	}
	return &matcherCache{cache: cache, metrics: metrics}, nil
}

// get returns the matcher for selector. Selectors that fail to compile
// yield a matcher with no results.
func (mc *matcherCache) get(selector string) goquery.Matcher {
	if m, ok := mc.cache.Get(selector); ok {
		return m
	}

	var m goquery.Matcher
	compiled, err := cascadia.Compile(selector)
	if err != nil {
		slog.Debug("selector did not compile",
			slog.String("selector", selector),
			slog.Any("error", err),
		)
		mc.metrics.IncCompile("invalid")
		m = noMatch{}
	} else {
		mc.metrics.IncCompile("ok")
		m = compiled
	}

	mc.cache.Add(selector, m)
	return m
}

func (mc *matcherCache) len() int {
	return mc.cache.Len()
}

type noMatch struct{}

func (noMatch) Match(*html.Node) bool { return false }

func (noMatch) MatchAll(*html.Node) []*html.Node { return nil }

func (noMatch) Filter([]*html.Node) []*html.Node { return nil }
