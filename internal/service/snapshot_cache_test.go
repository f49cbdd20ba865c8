package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
)

const (
	tutorsCol    = "tutors"
	studentsCol  = "users"
	responsesCol = "respuestas_cuestionarios"
	recsSub      = "recomendaciones"
)

func seededRemote() *fakeRemoteStore {
	remote := newFakeRemoteStore()
	remote.put(tutorsCol, "t1", tutorDoc("Tutor Uno", "tutor@example.com", "G1", "G2"))
	remote.put(studentsCol, "s1", studentDoc("Ana", "G1", "Femenino", 19))
	remote.put(studentsCol, "s2", studentDoc("Beto", "G1", "Masculino", 22))
	remote.put(studentsCol, "s3", studentDoc("Caro", "G2", "", 0))
	remote.put(responsesCol, "r1", responseDoc("s1", "BAI", 3, "2024-01-10T10:00:00Z"))
	remote.put(responsesCol, "r2", responseDoc("s3", "PSS", 1, "2024-02-01"))
	return remote
}

func newTestSnapshotCache(remote RemoteStore, cfg SnapshotCacheConfig) *SnapshotCache {
	return NewSnapshotCache(remote, cfg, NewMetricsService(), zap.NewNop())
}

func loadedCache(t *testing.T, remote RemoteStore) *SnapshotCache {
	t.Helper()
	cache := newTestSnapshotCache(remote, SnapshotCacheConfig{})
	require.NoError(t, cache.LoadAll(context.Background()))
	return cache
}

func TestSnapshotCacheLoadAll(t *testing.T) {
	cache := loadedCache(t, seededRemote())

	status := cache.Status()
	assert.True(t, status.Ready())
	assert.Equal(t, 1, status.TutorCount)
	assert.Equal(t, 3, status.StudentCount)
	assert.Equal(t, 2, status.ResponseCount)
	assert.Equal(t, uint64(1), status.Version)

	students, err := cache.GetStudentsByGroup(context.Background(), "G1")
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "s1", students[0].ID)
	assert.Equal(t, "s2", students[1].ID)

	view, err := cache.View(context.Background())
	require.NoError(t, err)
	caro, ok := view.Student("s3")
	require.True(t, ok)
	assert.Equal(t, models.GenderOther, caro.Gender)
	assert.Nil(t, caro.Age)
}

func TestSnapshotCacheSkipsMalformedResponses(t *testing.T) {
	remote := newFakeRemoteStore()
	remote.put(tutorsCol, "t1", tutorDoc("Tutor", "t@example.com", "G1"))
	remote.put(studentsCol, "s1", studentDoc("Ana", "G1", "Femenino", 19))
	for i := 0; i < 9; i++ {
		remote.put(responsesCol, fmt.Sprintf("r%d", i), responseDoc("s1", "BDI", i%4, fmt.Sprintf("2024-03-%02dT08:00:00Z", i+1)))
	}
	remote.put(responsesCol, "bad", responseDoc("s1", "BDI", 2, "not-a-date"))

	cache := newTestSnapshotCache(remote, SnapshotCacheConfig{})
	require.NoError(t, cache.LoadAll(context.Background()))

	status := cache.Status()
	assert.Equal(t, 9, status.ResponseCount)
	assert.Equal(t, 1, status.SkippedRecords)

	responses, err := cache.GetResponses(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, responses, 9)
}

func TestSnapshotCacheSkipsResponsesWithoutUsableLevel(t *testing.T) {
	remote := newFakeRemoteStore()
	remote.put(tutorsCol, "t1", tutorDoc("Tutor", "t@example.com", "G1"))
	remote.put(studentsCol, "s1", studentDoc("Ana", "G1", "Femenino", 19))
	remote.put(responsesCol, "ok", responseDoc("s1", "BAI", 2, "2024-03-01T08:00:00Z"))
	remote.put(responsesCol, "out-of-range", responseDoc("s1", "PSS", 9, "2024-03-04T08:00:00Z"))
	remote.put(responsesCol, "missing", map[string]interface{}{
		fieldResponseStudent:    "s1",
		fieldResponseInstrument: "PSS",
		fieldResponseDate:       "2024-03-05T08:00:00Z",
	})
	remote.put(responsesCol, "numeric-text", map[string]interface{}{
		fieldResponseStudent:    "s1",
		fieldResponseInstrument: "BDI",
		fieldResponseLevel:      " 1 ",
		fieldResponseDate:       "2024-03-02T08:00:00Z",
	})
	remote.put(responsesCol, "words", map[string]interface{}{
		fieldResponseStudent:    "s1",
		fieldResponseInstrument: "BDI",
		fieldResponseLevel:      "alto",
		fieldResponseDate:       "2024-03-03T08:00:00Z",
	})

	cache := loadedCache(t, remote)

	status := cache.Status()
	assert.Equal(t, 2, status.ResponseCount)
	assert.Equal(t, 3, status.SkippedRecords)

	responses, err := cache.GetResponses(context.Background(), "s1")
	require.NoError(t, err)
	ids := make([]string, 0, len(responses))
	for _, r := range responses {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"ok", "numeric-text"}, ids)
}

func TestSnapshotCacheLoadFailureKeepsPreviousSnapshot(t *testing.T) {
	remote := seededRemote()
	cache := loadedCache(t, remote)
	before := cache.Version()

	remote.mu.Lock()
	remote.listErr[responsesCol] = errors.New("connection reset")
	remote.mu.Unlock()

	err := cache.LoadAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrRemoteStore))
	assert.Equal(t, before, cache.Version())

	students, err := cache.GetStudentsByGroup(context.Background(), "G1")
	require.NoError(t, err)
	assert.Len(t, students, 2)
}

func TestSnapshotCacheRecommendationFailureFailsLoad(t *testing.T) {
	remote := seededRemote()
	remote.subErr = errors.New("timeout")

	cache := newTestSnapshotCache(remote, SnapshotCacheConfig{})
	err := cache.LoadAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrRemoteStore))
	assert.Equal(t, models.TableEmpty, cache.Status().Students)
}

func TestSnapshotCacheLoadsLazilyOnFirstRead(t *testing.T) {
	remote := seededRemote()
	cache := newTestSnapshotCache(remote, SnapshotCacheConfig{})
	assert.Equal(t, models.TableEmpty, cache.Status().Tutors)

	groups, err := cache.GetTutorGroups(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"G1", "G2"}, groups)
	assert.Equal(t, 1, remote.listCalls[tutorsCol])

	_, err = cache.GetStudentsByGroup(context.Background(), "G1")
	require.NoError(t, err)
	assert.Equal(t, 1, remote.listCalls[studentsCol])
}

func TestSnapshotCacheUnknownTutor(t *testing.T) {
	cache := loadedCache(t, seededRemote())

	_, err := cache.GetTutorGroups(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrTutorNotFound))

	_, err = cache.AddGroup(context.Background(), "missing", "G9")
	assert.True(t, errors.Is(err, appErrors.ErrTutorNotFound))
}

func TestSnapshotCacheAddGroupDuplicate(t *testing.T) {
	remote := seededRemote()
	cache := loadedCache(t, remote)
	version := cache.Version()

	_, err := cache.AddGroup(context.Background(), "t1", "G2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateGroup))

	assert.Equal(t, []string{"G1", "G2"}, remote.fields(tutorsCol, "t1")[fieldTutorGroups])
	assert.Zero(t, remote.upserts)
	groups, err := cache.GetTutorGroups(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"G1", "G2"}, groups)
	assert.Equal(t, version, cache.Version())
	assert.True(t, cache.Status().Ready())
}

func TestSnapshotCacheGroupMutationsInvalidateStudents(t *testing.T) {
	remote := seededRemote()
	cache := loadedCache(t, remote)
	ctx := context.Background()

	tutor, err := cache.AddGroup(ctx, "t1", "G3")
	require.NoError(t, err)
	assert.Equal(t, []string{"G1", "G2", "G3"}, tutor.Groups)
	assert.Equal(t, []string{"G1", "G2", "G3"}, remote.fields(tutorsCol, "t1")[fieldTutorGroups])

	status := cache.Status()
	assert.Equal(t, models.TableReady, status.Tutors)
	assert.Equal(t, models.TableStale, status.Students)
	assert.Equal(t, models.TableStale, status.Responses)

	// The tutor table answers without a reload.
	groups, err := cache.GetTutorGroups(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"G1", "G2", "G3"}, groups)
	assert.Equal(t, 1, remote.listCalls[studentsCol])

	remote.put(studentsCol, "s4", studentDoc("Dani", "G3", "Masculino", 17))
	students, err := cache.GetStudentsByGroup(ctx, "G3")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "s4", students[0].ID)
	assert.Equal(t, 2, remote.listCalls[studentsCol])
	assert.True(t, cache.Status().Ready())
}

func TestSnapshotCacheRenameAndRemoveGroup(t *testing.T) {
	remote := seededRemote()
	cache := loadedCache(t, remote)
	ctx := context.Background()

	tutor, err := cache.RenameGroup(ctx, "t1", "G1", "G1-A")
	require.NoError(t, err)
	assert.Equal(t, []string{"G1-A", "G2"}, tutor.Groups)

	_, err = cache.RenameGroup(ctx, "t1", "G1-A", "G2")
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateGroup))

	_, err = cache.RenameGroup(ctx, "t1", "missing", "G5")
	assert.True(t, errors.Is(err, appErrors.ErrGroupNotFound))

	tutor, err = cache.RemoveGroup(ctx, "t1", "G2")
	require.NoError(t, err)
	assert.Equal(t, []string{"G1-A"}, tutor.Groups)

	_, err = cache.RemoveGroup(ctx, "t1", "G2")
	assert.True(t, errors.Is(err, appErrors.ErrGroupNotFound))

	_, err = cache.AddGroup(ctx, "t1", "  ")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	assert.Equal(t, []string{"G1-A"}, remote.fields(tutorsCol, "t1")[fieldTutorGroups])
	assert.Equal(t, 2, remote.upserts)
}

func TestSnapshotCacheMutationWriteFailureLeavesStateUntouched(t *testing.T) {
	remote := seededRemote()
	cache := loadedCache(t, remote)
	version := cache.Version()
	remote.upsertErr = errors.New("permission denied")

	_, err := cache.AddGroup(context.Background(), "t1", "G3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrRemoteStore))
	assert.Equal(t, version, cache.Version())
	assert.True(t, cache.Status().Ready())

	groups, err := cache.GetTutorGroups(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"G1", "G2"}, groups)
}

func TestSnapshotCacheStaleReadsFailWithoutAutoReload(t *testing.T) {
	remote := seededRemote()
	cache := newTestSnapshotCache(remote, SnapshotCacheConfig{DisableAutoReload: true})

	_, err := cache.View(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrSnapshotStale))

	require.NoError(t, cache.LoadAll(context.Background()))
	_, err = cache.AddGroup(context.Background(), "t1", "G3")
	require.NoError(t, err)

	_, err = cache.GetStudentsByGroup(context.Background(), "G1")
	assert.True(t, errors.Is(err, appErrors.ErrSnapshotStale))

	require.NoError(t, cache.LoadAll(context.Background()))
	students, err := cache.GetStudentsByGroup(context.Background(), "G1")
	require.NoError(t, err)
	assert.Len(t, students, 2)
}

func TestSnapshotCacheLatestRecommendations(t *testing.T) {
	remote := seededRemote()
	remote.putSub(studentsCol, "s1", recsSub, "a", map[string]interface{}{
		fieldRecommendationInstrument: "BAI", fieldRecommendationText: "respirar", fieldRecommendationDate: "2024-01-01",
	})
	remote.putSub(studentsCol, "s1", recsSub, "b", map[string]interface{}{
		fieldRecommendationInstrument: "bai", fieldRecommendationText: "caminar", fieldRecommendationDate: "2024-02-01",
	})
	remote.putSub(studentsCol, "s1", recsSub, "c", map[string]interface{}{
		fieldRecommendationInstrument: "BAI", fieldRecommendationText: "dormir", fieldRecommendationDate: "2024-02-01",
	})
	remote.putSub(studentsCol, "s1", recsSub, "d", map[string]interface{}{
		fieldRecommendationInstrument: "PSS", fieldRecommendationText: "pausas", fieldRecommendationDate: "garbage",
	})
	cache := loadedCache(t, remote)

	recs, err := cache.GetLatestRecommendations(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "dormir", recs[models.InstrumentBAI])
	assert.Equal(t, models.NoRecommendation, recs[models.InstrumentBDI])
	assert.Equal(t, "pausas", recs[models.InstrumentPSS])

	recs, err = cache.GetLatestRecommendations(context.Background(), "s2")
	require.NoError(t, err)
	for _, inst := range models.Instruments() {
		assert.Equal(t, models.NoRecommendation, recs[inst])
	}
}

func TestSnapshotCacheLoadRetriesWhenOvertakenByMutation(t *testing.T) {
	remote := seededRemote()
	cache := newTestSnapshotCache(remote, SnapshotCacheConfig{})
	// Seed the tutor table so the mutation has something to update.
	require.NoError(t, cache.LoadAll(context.Background()))

	var once sync.Once
	remote.onList = func(name string) {
		if name != responsesCol {
			return
		}
		once.Do(func() {
			_, err := cache.AddGroup(context.Background(), "t1", "G3")
			assert.NoError(t, err)
		})
	}

	require.NoError(t, cache.LoadAll(context.Background()))
	assert.True(t, cache.Status().Ready())
	groups, err := cache.GetTutorGroups(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"G1", "G2", "G3"}, groups)
}

func TestSnapshotCacheLoadSupersededByRepeatedMutations(t *testing.T) {
	remote := seededRemote()
	cache := newTestSnapshotCache(remote, SnapshotCacheConfig{})
	require.NoError(t, cache.LoadAll(context.Background()))

	var mu sync.Mutex
	n := 0
	remote.onList = func(name string) {
		if name != responsesCol {
			return
		}
		mu.Lock()
		n++
		group := fmt.Sprintf("X%d", n)
		mu.Unlock()
		_, err := cache.AddGroup(context.Background(), "t1", group)
		assert.NoError(t, err)
	}

	err := cache.LoadAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrSnapshotSuperseded))
	assert.Equal(t, models.TableStale, cache.Status().Students)
}

func TestSnapshotCacheConcurrentReadsDuringMutations(t *testing.T) {
	remote := seededRemote()
	cache := loadedCache(t, remote)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				view, err := cache.View(ctx)
				if errors.Is(err, appErrors.ErrSnapshotSuperseded) || errors.Is(err, appErrors.ErrSnapshotStale) {
					continue
				}
				if err != nil {
					errs <- err
					return
				}
				// Within one view the group index and student table agree.
				for _, st := range view.StudentsByGroup("G1") {
					if st.Group != "G1" {
						errs <- fmt.Errorf("student %s in wrong group %s", st.ID, st.Group)
						return
					}
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := cache.AddGroup(ctx, "t1", fmt.Sprintf("C%d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	groups, err := cache.GetTutorGroups(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, groups, 7)
}
