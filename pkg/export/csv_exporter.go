package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// SectionColumn heads the first CSV column, which names the section of each row.
const SectionColumn = "Seccion"

// CSVExporter flattens a report into CSV. Every section starts with its own
// header row; the Seccion column of each data row names its section.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the report.
func (e *CSVExporter) Render(report Report) ([]byte, error) {
	if err := report.validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	for _, section := range report.Sections {
		if err := writer.Write(append([]string{SectionColumn}, section.Headers...)); err != nil {
			return nil, fmt.Errorf("write csv headers: %w", err)
		}
		for _, row := range section.Rows {
			if err := writer.Write(append([]string{section.Title}, row...)); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
