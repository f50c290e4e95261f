package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/xuri/excelize/v2"
)

var (
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
	zipMagic = []byte("PK\x03\x04")
)

// fromCSV reads the header plus at most maxRows data rows.
func fromCSV(data []byte, maxRows int) (string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for len(rows) < maxRows+1 {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(rows) == 0 {
				return "", err
			}
			break
		}
		rows = append(rows, rec)
	}
	return renderTable(rows)
}

// fromXLSX reads the first sheet of an OOXML workbook.
func fromXLSX(data []byte, maxRows int) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", errEmpty
	}

	it, err := f.Rows(sheets[0])
	if err != nil {
		return "", err
	}
	defer func() { _ = it.Close() }()

	var rows [][]string
	for len(rows) < maxRows+1 && it.Next() {
		cols, err := it.Columns()
		if err != nil {
			return "", err
		}
		if blankRow(cols) {
			continue
		}
		rows = append(rows, cols)
	}
	return renderTable(rows)
}

// fromXLS handles files published with a legacy .xls name. Many portals
// serve OOXML or an HTML table under that name; true BIFF workbooks are not
// readable and fall through to the sentinel.
func fromXLS(data []byte, maxRows int) (string, error) {
	if bytes.HasPrefix(data, zipMagic) {
		return fromXLSX(data, maxRows)
	}
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return fromHTMLTable(trimmed, maxRows)
	}
	return "", errUnsupported
}

func fromHTMLTable(data []byte, maxRows int) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	var rows [][]string
	doc.Find("table").First().Find("tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		var cols []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cols = append(cols, strings.TrimSpace(cell.Text()))
		})
		if !blankRow(cols) {
			rows = append(rows, cols)
		}
		return len(rows) < maxRows+1
	})
	return renderTable(rows)
}

// renderTable renders the first row as a header and the rest as data rows.
func renderTable(rows [][]string) (string, error) {
	if len(rows) == 0 {
		return "", errEmpty
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(tableRow(rows[0]))
	for _, r := range rows[1:] {
		t.AppendRow(tableRow(r))
	}
	return t.Render(), nil
}

func tableRow(cols []string) table.Row {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = firstNRunes(strings.TrimSpace(c), maxCellChars)
	}
	return row
}

func blankRow(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
