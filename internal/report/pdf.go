package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"example.com/siwegate/internal/rules"
	"example.com/siwegate/internal/siwe"
)

const digestImage = "digest-qr"

// SaveReportPDF renders the given report into a PDF document. The summary
// carries a QR code of the signing digest.
func SaveReportPDF(rep rules.Report, out string, lang Language) error {
	pdf, err := buildPDF(rep, NewTranslator(lang), time.Now())
	if err != nil {
		return err
	}
	return pdf.OutputFileAndClose(out)
}

// WriteReportPDF renders the report to an in-memory buffer.
func WriteReportPDF(rep rules.Report, lang Language, buf *bytes.Buffer) error {
	pdf, err := buildPDF(rep, NewTranslator(lang), time.Now())
	if err != nil {
		return err
	}
	return pdf.Output(buf)
}

func buildPDF(rep rules.Report, tr Translator, now time.Time) (*gofpdf.Fpdf, error) {
	title := tr.T("report.title")
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor("siwectl", false)
	pdf.SetCreator("siwectl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, pdfText(tr.Format("footer.generated", now.UTC().Format(time.RFC3339), "siwectl")), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	addPDFTitle(pdf, title)
	if err := addSummarySection(pdf, tr, rep.Summary); err != nil {
		return nil, err
	}
	addDiagnosticsSection(pdf, tr, rep.Details)
	addSuggestionsSection(pdf, tr, rep.FixSuggestions)
	addFixedMessageSection(pdf, tr, rep.FixedMessage)

	if pdf.Err() {
		return nil, pdf.Error()
	}
	return pdf, nil
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, pdfText(title))
	pdf.Ln(12)
}

func addSummarySection(pdf *gofpdf.Fpdf, tr Translator, s rules.ReportSummary) error {
	sectionHeading(pdf, tr.T("section.summary"))
	top := pdf.GetY()

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: tr.T("summary.result"), value: passLabel(tr, s.IsValid)},
		{label: tr.T("summary.profile"), value: emptyFallback(s.Profile, "-")},
		{label: tr.T("summary.errors"), value: strconv.Itoa(s.Errors)},
		{label: tr.T("summary.warnings"), value: strconv.Itoa(s.Warnings)},
		{label: tr.T("summary.suggestions"), value: strconv.Itoa(s.Suggestions)},
		{label: tr.T("summary.fixable"), value: strconv.Itoa(s.Fixable)},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, pdfText(item.label), "", 0, "L", false, 0, "")
		pdf.CellFormat(80, 6, pdfText(item.value), "", 1, "L", false, 0, "")
	}

	if s.SigningDigest != "" {
		png, err := DigestToQR(s.SigningDigest, 256)
		if err != nil {
			return fmt.Errorf("digest qr: %w", err)
		}
		opt := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(digestImage, opt, bytes.NewReader(png))
		pageW, _ := pdf.GetPageSize()
		_, _, right, _ := pdf.GetMargins()
		pdf.ImageOptions(digestImage, pageW-right-36, top, 36, 36, false, opt, 0, "")

		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, pdfText(tr.T("summary.digest")), "", 1, "L", false, 0, "")
		pdf.SetFont("Courier", "", 8)
		pdf.MultiCell(0, 4, s.SigningDigest, "", "L", false)
	}
	if y := top + 40; pdf.GetY() < y {
		pdf.SetY(y)
	}
	pdf.Ln(4)
	return nil
}

func addDiagnosticsSection(pdf *gofpdf.Fpdf, tr Translator, details []siwe.ValidationError) {
	sectionHeading(pdf, tr.T("section.diagnostics"))

	if len(details) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, pdfText(tr.T("diagnostics.none")), "", "L", false)
		pdf.Ln(4)
		return
	}

	headers := []string{tr.T("col.line"), tr.T("col.severity"), tr.T("col.type"), tr.T("col.code"), tr.T("col.field"), tr.T("col.message")}
	widths := []float64{12, 20, 22, 46, 22, 58}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, pdfText(h), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, d := range details {
		values := []string{
			strconv.Itoa(d.Line),
			tr.Severity(d.Severity),
			tr.Kind(d.Type),
			string(d.Code),
			emptyFallback(string(d.Field), "-"),
			d.Message,
		}
		renderTableRow(pdf, widths, values, 4.5)
	}
	pdf.Ln(4)
}

func addSuggestionsSection(pdf *gofpdf.Fpdf, tr Translator, suggestions []rules.FixSuggestion) {
	if len(suggestions) == 0 {
		return
	}
	sectionHeading(pdf, tr.T("section.suggestions"))
	for i, s := range suggestions {
		kind := tr.T("suggestion.manual")
		if s.Fixable {
			kind = tr.T("suggestion.automatic")
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(0, 5, pdfText(fmt.Sprintf("%d. %s (%s, %d)", i+1, s.Code, kind, s.Line)), "", "L", false)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, pdfText(s.Suggestion), "", "L", false)
		pdf.Ln(1)
	}
	pdf.Ln(3)
}

func addFixedMessageSection(pdf *gofpdf.Fpdf, tr Translator, fixed string) {
	if strings.TrimSpace(fixed) == "" {
		return
	}
	sectionHeading(pdf, tr.T("section.fixed"))
	pdf.SetFont("Courier", "", 8)
	pdf.SetFillColor(248, 248, 248)
	pdf.MultiCell(0, 4, pdfText(fixed), "1", "L", true)
}

func sectionHeading(pdf *gofpdf.Fpdf, label string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, pdfText(label))
	pdf.Ln(9)
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := string(cp1252(strings.TrimSpace(val)))
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	if yStart+rowHeight > pageH-bottom {
		pdf.AddPage()
		yStart = pdf.GetY()
	}
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		for len(lines) < maxLines {
			lines = append(lines, "")
		}
		pdf.MultiCell(widths[i], lineHeight, runeBytes(strings.Join(lines, "\n")), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func passLabel(tr Translator, pass bool) string {
	if pass {
		return tr.T("result.pass")
	}
	return tr.T("result.fail")
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

// pdfText converts s to the Windows-1252 bytes the core PDF fonts expect.
func pdfText(s string) string {
	return runeBytes(string(cp1252(s)))
}

// cp1252 maps s onto Windows-1252, one rune per code page byte, so SplitText
// can index the core font width tables. Letters outside the code page lose
// their diacritics.
func cp1252(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if c, ok := charmap.Windows1252.EncodeRune(r); ok {
			out = append(out, rune(c))
			continue
		}
		if r == 'ı' {
			out = append(out, 'i')
			continue
		}
		for _, d := range norm.NFD.String(string(r)) {
			if c, ok := charmap.Windows1252.EncodeRune(d); ok {
				out = append(out, rune(c))
			}
		}
	}
	return out
}

func runeBytes(s string) string {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		b = append(b, byte(r))
	}
	return string(b)
}
