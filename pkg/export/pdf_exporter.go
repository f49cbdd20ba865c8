package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfContentWidth = 190.0
	pdfRowHeight    = 7.0
)

// PDFExporter renders each report section as a titled table.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates an A4 document with the report title followed by its sections.
func (e *PDFExporter) Render(report Report) ([]byte, error) {
	if err := report.validate(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	// Core fonts are cp1252; accents in names and labels need translating.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if report.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(report.Title), "", 1, "C", false, 0, "")
		pdf.Ln(4)
	}

	for _, section := range report.Sections {
		colWidth := pdfContentWidth / float64(len(section.Headers))
		// Keep a section title on the same page as at least its header row.
		_, pageHeight := pdf.GetPageSize()
		_, _, _, bottom := pdf.GetMargins()
		if pdf.GetY()+3*pdfRowHeight > pageHeight-bottom {
			pdf.AddPage()
		}

		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, tr(section.Title), "", 1, "L", false, 0, "")

		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for _, header := range section.Headers {
			pdf.CellFormat(colWidth, pdfRowHeight, tr(header), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 8)
		if len(section.Rows) == 0 {
			pdf.CellFormat(pdfContentWidth, pdfRowHeight, tr("Sin datos"), "1", 1, "C", false, 0, "")
		}
		for _, row := range section.Rows {
			for _, cell := range row {
				pdf.CellFormat(colWidth, pdfRowHeight, tr(truncate(cell, colWidth)), "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(4)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// truncate shortens cell text to roughly fit a column at 8pt.
func truncate(s string, width float64) string {
	limit := int(width / 1.6)
	runes := []rune(s)
	if limit < 4 || len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
