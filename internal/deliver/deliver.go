// Package deliver presents finished articles to readers over chat and push
// channels.
package deliver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Message is one finished article.
type Message struct {
	Title  string
	Body   string
	Source string    // location the article was built from
	Image  []byte    // optional illustration
	Date   time.Time // publication date shown in the header
}

// Text renders the message as plain text with the standard header.
func (m Message) Text() string {
	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(m.Title))
	b.WriteString("\nPureFact Article – ")
	b.WriteString(date.Format(dateLayout))
	if m.Source != "" {
		b.WriteString("\nSource: ")
		b.WriteString(m.Source)
	}
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(m.Body))
	return b.String()
}

// Channel delivers messages to one destination.
type Channel interface {
	Name() string
	// Deliver sends an article, image first when present, then text chunks in order.
	Deliver(ctx context.Context, m Message) error
	// Notify sends a short operational notice such as a scan summary.
	Notify(ctx context.Context, text string) error
}

// Multi fans out to several channels. Every channel is attempted; errors are joined.
type Multi []Channel

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, c := range m {
		names[i] = c.Name()
	}
	return strings.Join(names, "+")
}

func (m Multi) Deliver(ctx context.Context, msg Message) error {
	var errs []error
	for _, c := range m {
		if err := c.Deliver(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, c := range m {
		if err := c.Notify(ctx, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}
