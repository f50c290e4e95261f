package extract

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// fromPDF reads the leading maxPages pages, keeping pageChars characters of
// each page's text.
func fromPDF(data []byte, maxPages, pageChars int) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	n := r.NumPage()
	if n > maxPages {
		n = maxPages
	}

	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		parts = append(parts, firstNRunes(strings.TrimSpace(txt), pageChars))
	}
	return strings.Join(parts, "\n"), nil
}
