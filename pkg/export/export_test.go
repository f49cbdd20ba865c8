package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() Report {
	var r Report
	r.Title = "Reporte del grupo G1"
	r.AddSection("Resumen", []string{"Cuestionario", "Promedio"}, [][]string{{"BAI", "15.00"}, {"BDI", "0.00"}})
	r.AddSection("Ana - Respuestas", []string{"Fecha", "Cuestionario", "Nivel"}, [][]string{{"2024-03-02", "BAI"}})
	return r
}

func TestAddSectionPadsRows(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, []string{"2024-03-02", "BAI", ""}, r.Sections[1].Rows[0])
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleReport())
	require.NoError(t, err)

	reader := csv.NewReader(bytes.NewReader(out))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 5)
	assert.Equal(t, []string{SectionColumn, "Cuestionario", "Promedio"}, records[0])
	assert.Equal(t, []string{"Resumen", "BAI", "15.00"}, records[1])
	assert.Equal(t, []string{"Resumen", "BDI", "0.00"}, records[2])
	assert.Equal(t, []string{SectionColumn, "Fecha", "Cuestionario", "Nivel"}, records[3])
	assert.Equal(t, []string{"Ana - Respuestas", "2024-03-02", "BAI", ""}, records[4])
	for _, record := range records {
		assert.NotEmpty(t, record[0])
	}
}

func TestPDFExporterRender(t *testing.T) {
	r := sampleReport()
	r.AddSection("José - Recomendaciones", []string{"Cuestionario", "Recomendación"}, nil)

	out, err := NewPDFExporter().Render(r)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRejectsEmptyReports(t *testing.T) {
	_, err := NewCSVExporter().Render(Report{})
	assert.Error(t, err)

	_, err = NewPDFExporter().Render(Report{Sections: []Section{{Title: "x"}}})
	assert.Error(t, err)
}
