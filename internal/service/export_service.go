package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
	"github.com/noah-isme/serenia-tutor-api/pkg/export"
	"github.com/noah-isme/serenia-tutor-api/pkg/storage"
)

const reportDateLayout = "2006-01-02"

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type reportRenderer interface {
	Render(report export.Report) ([]byte, error)
}

// ExportConfig tunes report generation.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	Location  *time.Location
}

// ExportResult describes a stored report file.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService renders group reports from the snapshot and stores them
// behind signed download URLs.
type ExportService struct {
	snapshots snapshotViewer
	storage   fileStorage
	renderers map[models.ReportFormat]reportRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService with the CSV and PDF renderers.
func NewExportService(snapshots snapshotViewer, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	cfg.Location = orUTC(cfg.Location)
	return &ExportService{
		snapshots: snapshots,
		storage:   files,
		renderers: map[models.ReportFormat]reportRenderer{
			models.ReportFormatCSV: export.NewCSVExporter(),
			models.ReportFormatPDF: export.NewPDFExporter(),
		},
		signer: signer,
		logger: logger,
		cfg:    cfg,
	}
}

// Generate renders the report for job, saves it and signs a download URL.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	renderer, ok := s.renderers[job.Params.Format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %q", job.Params.Format))
	}
	var period *AcademicPeriod
	if job.Params.Period != "" {
		p, err := ParseAcademicPeriod(job.Params.Period, s.cfg.Location)
		if err != nil {
			return nil, appErrors.WrapAs(err, appErrors.ErrValidation, err.Error())
		}
		period = &p
	}

	view, err := s.snapshots.View(ctx)
	if err != nil {
		return nil, err
	}
	report := BuildGroupReport(view, job.Params.Group, period, s.cfg.Location)

	data, err := renderer.Render(report)
	if err != nil {
		return nil, fmt.Errorf("render %s report: %w", job.Params.Format, err)
	}

	name := path.Join("reports", job.ID, reportFilename(job.Params)+"."+string(job.Params.Format))
	rel, err := s.storage.Save(name, data)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Sign(job.ID, rel)
	if err != nil {
		return nil, fmt.Errorf("sign report url: %w", err)
	}
	s.logger.Info("report generated",
		zap.String("job_id", job.ID),
		zap.String("group", job.Params.Group),
		zap.Int("sections", len(report.Sections)),
		zap.Int("bytes", len(data)))

	return &ExportResult{
		RelativePath: rel,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// VerifyToken checks a download token.
func (s *ExportService) VerifyToken(token string, allowExpired bool) (storage.DownloadToken, error) {
	return s.signer.Verify(token, allowExpired)
}

// Open returns the stored file at rel.
func (s *ExportService) Open(rel string) (*os.File, error) {
	return s.storage.Open(rel)
}

// Delete removes the stored file at rel.
func (s *ExportService) Delete(rel string) error {
	return s.storage.Delete(rel)
}

// Cleanup removes files older than the configured result TTL.
func (s *ExportService) Cleanup() ([]string, error) {
	return s.storage.CleanupOlderThan(s.cfg.ResultTTL)
}

// BuildGroupReport lays out the group report: a summary of current levels,
// the alert list and, per student ordered by name, their profile, responses
// (newest first), levels per academic period and latest recommendations.
// A non-nil period restricts the per-student sections to that period.
func BuildGroupReport(view *SnapshotView, group string, period *AcademicPeriod, loc *time.Location) export.Report {
	loc = orUTC(loc)
	report := export.Report{Title: "Reporte del grupo " + group}
	if period != nil {
		report.Title += " - " + period.Name
	}

	bundle := ComputeGroupMetrics(view, group)
	summary := make([][]string, 0, len(models.Instruments()))
	for _, inst := range models.Instruments() {
		avg := bundle.Averages[inst]
		h := bundle.LevelCounts[inst]
		row := []string{string(inst), strconv.FormatFloat(avg.Average, 'f', 2, 64), strconv.Itoa(avg.Contributors)}
		for _, n := range h.Levels {
			row = append(row, strconv.Itoa(n))
		}
		summary = append(summary, append(row, strconv.Itoa(h.NoData)))
	}
	summaryHeaders := []string{"Cuestionario", "Promedio", "Con datos"}
	for level := models.LevelLow; level <= models.MaxLevel; level++ {
		summaryHeaders = append(summaryHeaders, models.LevelLabel(level))
	}
	report.AddSection("Resumen", append(summaryHeaders, "Sin datos"), summary)

	alerts := make([][]string, 0, len(bundle.Alerts))
	for _, a := range bundle.Alerts {
		alerts = append(alerts, []string{a.StudentName, a.Summary})
	}
	report.AddSection("Alertas", []string{"Alumno", "Detalle"}, alerts)

	students := view.StudentsByGroup(group)
	sort.SliceStable(students, func(i, j int) bool {
		if students[i].Name != students[j].Name {
			return students[i].Name < students[j].Name
		}
		return students[i].ID < students[j].ID
	})
	for _, st := range students {
		addStudentSections(&report, view, st, period, loc)
	}
	return report
}

func addStudentSections(report *export.Report, view *SnapshotView, st models.Student, period *AcademicPeriod, loc *time.Location) {
	label := st.Name
	if label == "" {
		label = st.ID
	}

	age := "-"
	if st.Age != nil && *st.Age > 0 {
		age = strconv.Itoa(*st.Age)
	}
	report.AddSection(label+" - Perfil", []string{"Campo", "Valor"}, [][]string{
		{"Nombre", st.Name},
		{"Correo", st.Email},
		{"Edad", age},
		{"Género", string(models.NormalizeGender(string(st.Gender)))},
		{"Grupo", st.Group},
		{"Clase", st.Class},
	})

	history := BuildStudentHistory(st.ID, view.Responses(st.ID), period, loc)

	type dated struct {
		inst models.Instrument
		rec  models.HistoryRecord
	}
	var records []dated
	for _, inst := range models.Instruments() {
		for _, rec := range history.Records[inst] {
			records = append(records, dated{inst: inst, rec: rec})
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].rec, records[j].rec
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.ResponseID > b.ResponseID
	})
	responses := make([][]string, 0, len(records))
	for _, r := range records {
		responses = append(responses, []string{
			r.rec.Date.In(loc).Format(reportDateLayout),
			string(r.inst),
			fmt.Sprintf("%d (%s)", r.rec.Level, models.LevelLabel(r.rec.Level)),
		})
	}
	report.AddSection(label+" - Respuestas", []string{"Fecha", "Cuestionario", "Nivel"}, responses)

	periodHeaders := []string{"Periodo"}
	for _, inst := range models.Instruments() {
		periodHeaders = append(periodHeaders, string(inst))
	}
	periods := make([][]string, 0, len(history.ByPeriod))
	for _, p := range history.ByPeriod {
		row := []string{p.Period}
		for _, inst := range models.Instruments() {
			cell := "-"
			if level, ok := p.Levels[inst]; ok {
				cell = strconv.Itoa(level)
			}
			row = append(row, cell)
		}
		periods = append(periods, row)
	}
	report.AddSection(label+" - Niveles por periodo", periodHeaders, periods)

	recs := view.LatestRecommendations(st.ID)
	recRows := make([][]string, 0, len(recs))
	for _, inst := range models.Instruments() {
		recRows = append(recRows, []string{string(inst), recs[inst]})
	}
	report.AddSection(label+" - Recomendaciones", []string{"Cuestionario", "Recomendación"}, recRows)
}

func reportFilename(params models.ReportJobParams) string {
	parts := []string{"grupo", params.Group}
	if params.Period != "" {
		parts = append(parts, params.Period)
	}
	return sanitizeFilename(strings.Join(parts, "_"))
}

func sanitizeFilename(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-_")
	if out == "" {
		return "reporte"
	}
	return out
}
