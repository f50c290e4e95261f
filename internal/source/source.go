// Package source discovers candidate content items from configured locations.
// A location is either a web page that links to a downloadable data file or
// a syndication feed whose entries are candidates in their own right.
package source

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Kind selects how a configured location is listed.
type Kind int

const (
	KindPage Kind = iota // scrape the page for the first data-file link
	KindFeed             // parse as RSS/Atom
)

func (k Kind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindFeed:
		return "feed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Spec is one configured source location. The kind is decided once when the
// source list is parsed.
type Spec struct {
	Kind Kind
	URL  string
}

func (s Spec) String() string {
	if s.Kind == KindFeed {
		return "rss:" + s.URL
	}
	return s.URL
}

// ItemKind distinguishes downloaded files from feed entries.
type ItemKind int

const (
	RemoteFile ItemKind = iota
	FeedEntry
)

func (k ItemKind) String() string {
	if k == FeedEntry {
		return "feed-entry"
	}
	return "remote-file"
}

// Item is one candidate discovered during a scan. It is never persisted.
type Item struct {
	Location string   // absolute URL of the file or the entry link
	Kind     ItemKind // remote file or feed entry
	Name     string   // last path segment, used for type sniffing
	FeedText string   // inline content or description supplied by the feed
	EntryID  string   // feed GUID, falling back to the link
	Title    string   // feed entry title
	Origin   string   // URL of the configured source
}

// Fetcher retrieves the body at a URL.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Lister turns source specs into candidate items.
type Lister struct {
	fetcher Fetcher
	log     zerolog.Logger
}

// NewLister creates a Lister that fetches through f.
func NewLister(f Fetcher, logger zerolog.Logger) *Lister {
	return &Lister{fetcher: f, log: logger}
}

// List returns the candidates for one source. A page yields at most one
// item; a feed yields every usable entry in feed order. Any error means the
// source is skipped for this cycle.
func (l *Lister) List(ctx context.Context, spec Spec) ([]Item, error) {
	switch spec.Kind {
	case KindPage:
		return l.listPage(ctx, spec)
	case KindFeed:
		return l.listFeed(ctx, spec)
	default:
		return nil, fmt.Errorf("unknown source kind %v", spec.Kind)
	}
}
