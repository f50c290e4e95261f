// Package summarize turns extracted text into a headline and a short article.
package summarize

import (
	"context"
	"errors"
)

// Request is the input to a summarizer.
type Request struct {
	Source string // location the text came from
	Text   string // extracted, size-bounded text
}

// Article is a summarizer result.
type Article struct {
	Title    string
	Body     string
	Degraded bool // produced by a fallback rather than the primary summarizer
}

// Summarizer produces an article from extracted text.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (Article, error)
}

// ErrEmptyResponse is returned when the model answers with nothing usable.
var ErrEmptyResponse = errors.New("empty summarizer response")

const (
	placeholderTitle = "New data published"
	placeholderBody  = "An automatic summary could not be generated for this item. Open the source link for the full data."
)

// Placeholder is the fixed article delivered when summarization fails.
func Placeholder() Article {
	return Article{Title: placeholderTitle, Body: placeholderBody, Degraded: true}
}
