package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
)

type fakeReloader struct {
	err    error
	loads  int
	status models.SnapshotStatus
}

func (f *fakeReloader) LoadAll(context.Context) error {
	f.loads++
	if f.err != nil {
		return f.err
	}
	f.status = models.SnapshotStatus{Tutors: models.TableReady, Students: models.TableReady, Responses: models.TableReady, Version: uint64(f.loads)}
	return nil
}

func (f *fakeReloader) Status() models.SnapshotStatus { return f.status }

type fakePurger struct {
	err    error
	purged int
}

func (f *fakePurger) Purge(context.Context) error {
	f.purged++
	return f.err
}

func TestCacheHandlerReload(t *testing.T) {
	snap := &fakeReloader{}
	purger := &fakePurger{}
	h := NewCacheHandler(snap, purger, nil)

	c, w := newGinContext(http.MethodPost, "/cache/reload", nil)
	h.Reload(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, purger.purged)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"payload_cache_purged":true`)
}

func TestCacheHandlerReloadPurgeFailureStillSucceeds(t *testing.T) {
	h := NewCacheHandler(&fakeReloader{}, &fakePurger{err: errors.New("redis down")}, nil)

	c, w := newGinContext(http.MethodPost, "/cache/reload", nil)
	h.Reload(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"payload_cache_purged":false`)
}

func TestCacheHandlerReloadFailure(t *testing.T) {
	purger := &fakePurger{}
	h := NewCacheHandler(&fakeReloader{err: appErrors.ErrRemoteStore}, purger, nil)

	c, w := newGinContext(http.MethodPost, "/cache/reload", nil)
	h.Reload(c)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Zero(t, purger.purged)
}

func TestCacheHandlerStatus(t *testing.T) {
	h := NewCacheHandler(&fakeReloader{status: models.SnapshotStatus{Tutors: models.TableStale}}, nil, nil)

	c, w := newGinContext(http.MethodGet, "/cache/status", nil)
	h.Status(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"tutors":"stale"`)
}
