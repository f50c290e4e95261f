package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// AllowedExtensions are the downloadable file types a page source may link to.
var AllowedExtensions = []string{".csv", ".xlsx", ".xls", ".pdf"}

func (l *Lister) listPage(ctx context.Context, spec Spec) ([]Item, error) {
	body, err := l.fetcher.Get(ctx, spec.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	link, err := firstFileLink(body, spec.URL)
	if err != nil {
		return nil, err
	}
	if link == nil {
		l.log.Debug().Str("source", spec.URL).Msg("no matching file link")
		return nil, nil
	}

	return []Item{{
		Location: link.String(),
		Kind:     RemoteFile,
		Name:     path.Base(link.Path),
		Origin:   spec.URL,
	}}, nil
}

// firstFileLink returns the first anchor whose target path carries an allowed
// extension, resolved against <base href> or the page URL. nil means no match.
func firstFileLink(body []byte, pageURL string) (*url.URL, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	var found *url.URL
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		u, err := base.Parse(href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return true
		}
		if !allowedExtension(u.Path) {
			return true
		}
		u.Fragment = ""
		found = u
		return false
	})
	return found, nil
}

func allowedExtension(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}
