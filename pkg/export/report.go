package export

import "fmt"

// Section is one titled table of a report.
type Section struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Report is an ordered list of sections rendered under a common title.
type Report struct {
	Title    string
	Sections []Section
}

// AddSection appends a section, padding or trimming rows to the header width.
func (r *Report) AddSection(title string, headers []string, rows [][]string) {
	normalized := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(headers))
		copy(cells, row)
		normalized = append(normalized, cells)
	}
	r.Sections = append(r.Sections, Section{Title: title, Headers: headers, Rows: normalized})
}

func (r Report) validate() error {
	if len(r.Sections) == 0 {
		return fmt.Errorf("report has no sections")
	}
	for _, s := range r.Sections {
		if len(s.Headers) == 0 {
			return fmt.Errorf("section %q has no headers", s.Title)
		}
	}
	return nil
}
