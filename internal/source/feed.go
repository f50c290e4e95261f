package source

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/mmcdole/gofeed"
)

func (l *Lister) listFeed(ctx context.Context, spec Spec) ([]Item, error) {
	body, err := l.fetcher.Get(ctx, spec.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]Item, 0, len(feed.Items))
	for i, it := range feed.Items {
		if it == nil {
			continue
		}
		id := itemID(it)
		if id == "" {
			l.log.Warn().Str("source", spec.URL).Int("entry", i).Msg("feed entry has no id or link, skipped")
			continue
		}
		link := strings.TrimSpace(it.Link)
		items = append(items, Item{
			Location: link,
			Kind:     FeedEntry,
			Name:     linkName(link),
			FeedText: itemText(it),
			EntryID:  id,
			Title:    strings.TrimSpace(it.Title),
			Origin:   spec.URL,
		})
	}
	return items, nil
}

func itemID(item *gofeed.Item) string {
	if id := strings.TrimSpace(item.GUID); id != "" {
		return id
	}
	return strings.TrimSpace(item.Link)
}

// itemText returns the richest inline body the feed supplies, still as markup.
func itemText(item *gofeed.Item) string {
	if strings.TrimSpace(item.Content) != "" {
		return item.Content
	}
	return item.Description
}

func linkName(link string) string {
	if link == "" {
		return ""
	}
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	return path.Base(link)
}
