package deliver

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Writer prints messages to w. Used for dry runs and --to stdout.
type Writer struct {
	W io.Writer
}

func (w *Writer) Name() string { return "stdout" }

func (w *Writer) Deliver(_ context.Context, m Message) error {
	if len(m.Image) > 0 {
		if _, err := fmt.Fprintf(w.W, "[image: %d bytes]\n", len(m.Image)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w.W, "%s\n%s\n", m.Text(), strings.Repeat("─", 40))
	return err
}

func (w *Writer) Notify(_ context.Context, text string) error {
	_, err := fmt.Fprintln(w.W, text)
	return err
}
