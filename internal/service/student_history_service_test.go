package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
)

func mustDate(t *testing.T, raw string) time.Time {
	t.Helper()
	ts, err := parseTimestamp(raw)
	require.NoError(t, err)
	return ts
}

func historyRemote() *fakeRemoteStore {
	remote := newFakeRemoteStore()
	remote.put(tutorsCol, "t1", tutorDoc("Tutor", "t@example.com", "G1"))
	remote.put(studentsCol, "s1", studentDoc("Ana", "G1", "Femenino", 19))
	remote.put(studentsCol, "s2", studentDoc("Beto", "G1", "Masculino", 20))
	remote.put(responsesCol, "r1", responseDoc("s1", "BAI", 1, "2024-01-15T09:00:00Z"))
	remote.put(responsesCol, "r2", responseDoc("s1", "BAI", 2, "2024-03-02T09:00:00Z"))
	remote.put(responsesCol, "r3", responseDoc("s1", "BAI", 0, "2024-03-01T09:00:00Z"))
	remote.put(responsesCol, "r4", responseDoc("s1", "BDI", 3, "2024-09-20T09:00:00Z"))
	remote.put(responsesCol, "r5", responseDoc("s1", "PSS", 1, "2023-11-05T09:00:00Z"))
	return remote
}

func newHistoryService(t *testing.T, remote *fakeRemoteStore, loc *time.Location) *StudentHistoryService {
	t.Helper()
	return NewStudentHistoryService(loadedCache(t, remote), loc, NewMetricsService(), zap.NewNop())
}

func TestStudentHistoryWithinPeriod(t *testing.T) {
	svc := newHistoryService(t, historyRemote(), nil)

	history, err := svc.Build(context.Background(), "s1", "Jan–Apr 2024")
	require.NoError(t, err)

	assert.Equal(t, models.HistoryStatusOK, history.Status)
	assert.Equal(t, "Ene-Abr 2024", history.Period)

	bai := history.Series[models.InstrumentBAI]
	require.Len(t, bai, 2)
	assert.Equal(t, "Ene 2024", bai[0].Label)
	assert.Equal(t, 1, bai[0].Level)
	assert.Equal(t, "Mar 2024", bai[1].Label)
	assert.Equal(t, 2, bai[1].Level)
	assert.Empty(t, history.Series[models.InstrumentBDI])
	assert.Empty(t, history.Series[models.InstrumentPSS])

	records := history.Records[models.InstrumentBAI]
	require.Len(t, records, 3)
	assert.Equal(t, []string{"r2", "r3", "r1"}, []string{records[0].ResponseID, records[1].ResponseID, records[2].ResponseID})

	require.Len(t, history.ByPeriod, 1)
	assert.Equal(t, "Ene-Abr 2024", history.ByPeriod[0].Period)
	assert.Equal(t, map[models.Instrument]int{models.InstrumentBAI: 2}, history.ByPeriod[0].Levels)
}

func TestStudentHistoryWithoutPeriod(t *testing.T) {
	svc := newHistoryService(t, historyRemote(), nil)

	history, err := svc.Build(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, models.HistoryStatusOK, history.Status)
	assert.Empty(t, history.Period)

	require.Len(t, history.ByPeriod, 3)
	assert.Equal(t, "Sep-Dic 2023", history.ByPeriod[0].Period)
	assert.Equal(t, "Ene-Abr 2024", history.ByPeriod[1].Period)
	assert.Equal(t, "Sep-Dic 2024", history.ByPeriod[2].Period)
	assert.Equal(t, 3, history.ByPeriod[2].Levels[models.InstrumentBDI])
}

func TestStudentHistoryFullYearKeepsEveryResponse(t *testing.T) {
	svc := newHistoryService(t, historyRemote(), nil)

	all, err := svc.Build(context.Background(), "s1", "Todo 2023")
	require.NoError(t, err)
	unfiltered, err := svc.Build(context.Background(), "s1", "")
	require.NoError(t, err)

	assert.Equal(t, models.HistoryStatusOK, all.Status)
	assert.Equal(t, "Todo 2023", all.Period)
	assert.Equal(t, unfiltered.Series, all.Series)
	assert.Equal(t, unfiltered.ByPeriod, all.ByPeriod)
}

func TestStudentHistoryStatuses(t *testing.T) {
	svc := newHistoryService(t, historyRemote(), nil)
	ctx := context.Background()

	history, err := svc.Build(ctx, "s2", "")
	require.NoError(t, err)
	assert.Equal(t, models.HistoryStatusNoData, history.Status)

	history, err = svc.Build(ctx, "s2", "Ene-Abr 2024")
	require.NoError(t, err)
	assert.Equal(t, models.HistoryStatusNoData, history.Status)

	history, err = svc.Build(ctx, "s1", "May-Ago 2024")
	require.NoError(t, err)
	assert.Equal(t, models.HistoryStatusNoDataForPeriod, history.Status)
	for _, inst := range models.Instruments() {
		assert.NotNil(t, history.Series[inst])
		assert.Empty(t, history.Series[inst])
	}
}

func TestStudentHistoryErrors(t *testing.T) {
	svc := newHistoryService(t, historyRemote(), nil)
	ctx := context.Background()

	_, err := svc.Build(ctx, "ghost", "")
	assert.True(t, errors.Is(err, appErrors.ErrStudentNotFound))

	_, err = svc.Build(ctx, "s1", "Primavera 2024")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Build(ctx, " ", "")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestStudentHistoryMonthTieBreak(t *testing.T) {
	at := mustDate(t, "2024-02-10T12:00:00Z")
	history := BuildStudentHistory("s1", []models.QuestionnaireResponse{
		{ID: "a", Instrument: models.InstrumentPSS, Level: 1, Date: at},
		{ID: "c", Instrument: models.InstrumentPSS, Level: 3, Date: at},
		{ID: "b", Instrument: models.InstrumentPSS, Level: 2, Date: at},
		{ID: "undated", Instrument: models.InstrumentPSS, Level: 0},
	}, nil, nil)

	require.Len(t, history.Series[models.InstrumentPSS], 1)
	assert.Equal(t, 3, history.Series[models.InstrumentPSS][0].Level)
	assert.Len(t, history.Records[models.InstrumentPSS], 3)
}

func TestStudentHistoryUsesConfiguredTimezone(t *testing.T) {
	loc := time.FixedZone("UTC-6", -6*60*60)
	responses := []models.QuestionnaireResponse{
		{ID: "r1", Instrument: models.InstrumentBAI, Level: 2, Date: mustDate(t, "2024-05-01T03:00:00Z")},
	}

	utc := BuildStudentHistory("s1", responses, nil, nil)
	assert.Equal(t, "May 2024", utc.Series[models.InstrumentBAI][0].Label)

	local := BuildStudentHistory("s1", responses, nil, loc)
	assert.Equal(t, "Abr 2024", local.Series[models.InstrumentBAI][0].Label)
	assert.Equal(t, "Ene-Abr 2024", local.ByPeriod[0].Period)
}

func TestParseAcademicPeriod(t *testing.T) {
	tests := []struct {
		raw   string
		name  string
		start string
		end   string
	}{
		{raw: "Ene-Abr 2024", name: "Ene-Abr 2024", start: "2024-01-01", end: "2024-05-01"},
		{raw: "may-aug 2024", name: "May-Ago 2024", start: "2024-05-01", end: "2024-09-01"},
		{raw: " Sep–Dic 2024 ", name: "Sep-Dic 2024", start: "2024-09-01", end: "2025-01-01"},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			p, err := ParseAcademicPeriod(tc.raw, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.name, p.Name)
			assert.True(t, p.Start.Equal(mustDate(t, tc.start)))
			assert.True(t, p.End.Equal(mustDate(t, tc.end)))
		})
	}

	p, err := ParseAcademicPeriod("Ene-Abr 2024", nil)
	require.NoError(t, err)
	assert.True(t, p.Contains(mustDate(t, "2024-04-30T23:59:59Z")))
	assert.False(t, p.Contains(mustDate(t, "2024-05-01T00:00:00Z")))

	for _, raw := range []string{"Todo 2023", "All 2023"} {
		all, err := ParseAcademicPeriod(raw, nil)
		require.NoError(t, err)
		assert.Equal(t, "Todo 2023", all.Name)
		assert.True(t, all.Unbounded())
		assert.True(t, all.Contains(mustDate(t, "2019-06-01T00:00:00Z")))
		assert.True(t, all.Contains(mustDate(t, "2024-09-20T09:00:00Z")))
	}

	for _, bad := range []string{"", "2024", "Ene-Abr", "Ene-Abr dos", "Verano 2024", "Ene-Abr 2024 extra"} {
		_, err := ParseAcademicPeriod(bad, nil)
		assert.Error(t, err, bad)
	}
}
