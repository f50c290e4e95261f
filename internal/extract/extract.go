// Package extract turns raw document bytes into bounded plain text.
//
// Every function in this package is pure: the same bytes always produce the
// same text, and no input (truncated, corrupt or hostile) makes them fail.
// Anything that cannot be read degrades to Sentinel.
package extract

import (
	"errors"
	"path"
	"strings"
)

// Sentinel is returned for unknown or unreadable documents.
const Sentinel = "Could not read file"

const (
	CSVRows      = 60   // data rows kept from a CSV file
	SheetRows    = 40   // data rows kept from the first spreadsheet sheet
	PDFPages     = 10   // leading pages read from a PDF
	PDFPageChars = 2000 // characters kept per PDF page
	MarkupChars  = 5000 // characters kept from an HTML document
	maxCellChars = 200
)

var (
	errEmpty       = errors.New("no content")
	errUnsupported = errors.New("unsupported document")
)

// Extract dispatches on the lowercase suffix of name and returns normalized
// text, or Sentinel when the type is unknown or the document cannot be parsed.
func Extract(data []byte, name string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = Sentinel
		}
	}()

	if len(data) == 0 {
		return Sentinel
	}

	var err error
	switch Suffix(name) {
	case ".csv":
		text, err = fromCSV(data, CSVRows)
	case ".xlsx", ".xlsm":
		text, err = fromXLSX(data, SheetRows)
	case ".xls":
		text, err = fromXLS(data, SheetRows)
	case ".pdf":
		text, err = fromPDF(data, PDFPages, PDFPageChars)
	case ".html", ".htm":
		text = Markup(data)
	default:
		return Sentinel
	}
	if err != nil || strings.TrimSpace(text) == "" {
		return Sentinel
	}
	return text
}

// Suffix returns the lowercase extension of a declared file name, ignoring
// any query string or fragment.
func Suffix(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(path.Ext(name))
}

// Supported reports whether Extract knows how to read files with this name.
func Supported(name string) bool {
	switch Suffix(name) {
	case ".csv", ".xlsx", ".xlsm", ".xls", ".pdf", ".html", ".htm":
		return true
	}
	return false
}

func firstNRunes(s string, n int) string {
	if n <= 0 || s == "" {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
