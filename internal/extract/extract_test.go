package extract

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

func makeCSV(rows int) []byte {
	var b strings.Builder
	b.WriteString("week,deaths,region\n")
	for i := range rows {
		fmt.Fprintf(&b, "w%03d,%d,england\n", i, 1000+i)
	}
	return []byte(b.String())
}

func makeXLSX(t *testing.T, rows int) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header := []string{"date", "cases"}
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue("Sheet1", cell, h); err != nil {
			t.Fatalf("set header: %v", err)
		}
	}
	for r := range rows {
		a, _ := excelize.CoordinatesToCellName(1, r+2)
		b, _ := excelize.CoordinatesToCellName(2, r+2)
		_ = f.SetCellValue("Sheet1", a, fmt.Sprintf("d%03d", r))
		_ = f.SetCellValue("Sheet1", b, r*10)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	return buf.Bytes()
}

func makePDF(t *testing.T, pages []string) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.SetFont("Helvetica", "", 10)
	for _, p := range pages {
		doc.AddPage()
		doc.MultiCell(0, 5, p, "", "L", false)
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("render pdf: %v", err)
	}
	return buf.Bytes()
}

func TestExtract_CSVBoundedRows(t *testing.T) {
	got := Extract(makeCSV(100), "data.csv")

	if got == Sentinel {
		t.Fatal("expected table text, got sentinel")
	}
	for _, want := range []string{"week", "deaths", "w000", "w059"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(got, "w060") {
		t.Errorf("output contains row beyond the %d-row limit", CSVRows)
	}
}

func TestExtract_CSVDeterministic(t *testing.T) {
	data := makeCSV(80)
	first := Extract(data, "DATA.CSV")
	second := Extract(data, "data.csv")
	if first != second {
		t.Fatal("extracting the same bytes twice produced different text")
	}
}

func TestExtract_CSVRaggedRows(t *testing.T) {
	data := []byte("a,b,c\n1,2\n3,4,5,6\n")
	got := Extract(data, "ragged.csv")
	if got == Sentinel {
		t.Fatal("ragged csv should still render")
	}
	if !strings.Contains(got, "6") {
		t.Errorf("missing cell from long row:\n%s", got)
	}
}

func TestExtract_XLSXBoundedRows(t *testing.T) {
	got := Extract(makeXLSX(t, 60), "report.xlsx")

	if got == Sentinel {
		t.Fatal("expected sheet text, got sentinel")
	}
	for _, want := range []string{"date", "cases", "d000", "d039"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(got, "d040") {
		t.Errorf("output contains row beyond the %d-row limit", SheetRows)
	}
}

func TestExtract_XLSVariants(t *testing.T) {
	t.Run("ooxml under xls name", func(t *testing.T) {
		got := Extract(makeXLSX(t, 3), "legacy.xls")
		if !strings.Contains(got, "d002") {
			t.Errorf("got %q", got)
		}
	})

	t.Run("html table under xls name", func(t *testing.T) {
		data := []byte(`<html><body><table>
<tr><th>Week</th><th>Total</th></tr>
<tr><td>1</td><td>4512</td></tr>
</table></body></html>`)
		got := Extract(data, "export.xls")
		if !strings.Contains(got, "4512") || !strings.Contains(got, "Week") {
			t.Errorf("got %q", got)
		}
	})

	t.Run("biff workbook", func(t *testing.T) {
		data := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 512)...)
		if got := Extract(data, "old.xls"); got != Sentinel {
			t.Errorf("got %q, want sentinel", got)
		}
	})
}

func TestExtract_PDF(t *testing.T) {
	data := makePDF(t, []string{"Weekly provisional figures 4512 deaths registered"})
	got := Extract(data, "bulletin.pdf")
	if got == Sentinel {
		t.Fatal("expected pdf text, got sentinel")
	}
	if !strings.Contains(got, "4512") {
		t.Errorf("got %q", got)
	}
}

func TestExtract_PDFPageLimits(t *testing.T) {
	filler := strings.Repeat("lorem ipsum dolor ", 200)
	pages := make([]string, 12)
	for i := range pages {
		pages[i] = fmt.Sprintf("marker%02d %s", i+1, filler)
	}

	got := Extract(makePDF(t, pages), "long.pdf")
	if !strings.Contains(got, "marker01") || !strings.Contains(got, "marker10") {
		t.Fatalf("missing leading page markers")
	}
	if strings.Contains(got, "marker11") {
		t.Errorf("read beyond %d pages", PDFPages)
	}
	if n := utf8.RuneCountInString(got); n > PDFPages*PDFPageChars+PDFPages-1 {
		t.Errorf("output has %d characters, exceeds page budget", n)
	}
}

func TestExtract_HTML(t *testing.T) {
	data := []byte(`<html><head><title>t</title><style>.x{}</style></head>
<body><nav>Menu</nav><h1>Excess mortality</h1><p>Rates rose &amp; fell.</p>
<script>var x = 1;</script><footer>Copyright</footer></body></html>`)

	got := Extract(data, "index.html")
	if !strings.Contains(got, "Excess mortality") || !strings.Contains(got, "Rates rose & fell.") {
		t.Errorf("got %q", got)
	}
	for _, noise := range []string{"Menu", "var x", "Copyright", ".x{}"} {
		if strings.Contains(got, noise) {
			t.Errorf("output contains noise %q", noise)
		}
	}
}

func TestExtract_HTMLTruncated(t *testing.T) {
	data := []byte("<p>" + strings.Repeat("word ", 3000) + "</p>")
	got := Extract(data, "big.htm")
	if n := utf8.RuneCountInString(got); n != MarkupChars {
		t.Errorf("len = %d, want %d", n, MarkupChars)
	}
}

func TestExtract_Sentinel(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		file string
	}{
		{"empty csv", nil, "data.csv"},
		{"zero bytes pdf", []byte{}, "data.pdf"},
		{"unknown type", []byte("hello"), "data.docx"},
		{"no extension", []byte("hello"), "download"},
		{"corrupt pdf", []byte("%PDF-1.4 garbage"), "data.pdf"},
		{"corrupt xlsx", []byte("PK\x03\x04 not really a zip"), "data.xlsx"},
		{"whitespace csv", []byte("\n\n"), "data.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extract(tt.data, tt.file); got != Sentinel {
				t.Errorf("got %q, want sentinel", got)
			}
		})
	}
}

func TestSuffix(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"data.CSV", ".csv"},
		{"a.b.xlsx", ".xlsx"},
		{"file.pdf?download=1", ".pdf"},
		{"page.html#top", ".html"},
		{"noext", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Suffix(tt.name); got != tt.want {
			t.Errorf("Suffix(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMarkupString(t *testing.T) {
	got := MarkupString("<p>First</p><p>Second <b>bold</b></p>")
	if got != "First\n\nSecond bold" {
		t.Errorf("got %q", got)
	}
	if MarkupString("") != "" {
		t.Error("empty input should give empty text")
	}
}

func TestArticle_FallsBackToMarkup(t *testing.T) {
	data := []byte("<html><body><p>Short note</p></body></html>")
	got := Article(data, "https://example.com/post")
	if !strings.Contains(got, "Short note") {
		t.Errorf("got %q", got)
	}

	got = Article(data, "://bad url")
	if !strings.Contains(got, "Short note") {
		t.Errorf("bad url: got %q", got)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "\n\n  a   b \n\n\n\n c\t\td \n\n"
	if got := normalizeWhitespace(in); got != "a b\n\nc d" {
		t.Errorf("got %q", got)
	}
}
