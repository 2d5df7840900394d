package seats

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"council-motions/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteSeatCapCachesPerTerm(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/terms/2/seats":
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"allocations":[{"party_id":1,"seats":10},{"party_id":2,"seats":8}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL+"/", time.Minute, logger.Discard())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	remote.now = func() time.Time { return now }
	ctx := context.Background()

	seats, ok, err := remote.SeatCap(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(10), seats)

	seats, ok, err = remote.SeatCap(ctx, 2, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(8), seats)
	assert.Equal(t, int32(1), hits.Load(), "second lookup served from cache")

	_, ok, err = remote.SeatCap(ctx, 9, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, _, err = remote.SeatCap(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "expired entry refetched")

	// unknown term answers 404 and yields no allocation
	_, ok, err = remote.SeatCap(ctx, 1, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoteServesStaleOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"allocations":[{"party_id":1,"seats":10}]}`))
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL, time.Minute, logger.Discard())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	remote.now = func() time.Time { return now }
	ctx := context.Background()

	_, _, err := remote.SeatCap(ctx, 1, 2)
	require.NoError(t, err)

	fail.Store(true)
	now = now.Add(time.Hour)
	seats, ok, err := remote.SeatCap(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(10), seats)

	_, _, err = remote.SeatCap(ctx, 1, 3)
	require.Error(t, err, "no stale copy for an uncached term")
}

func TestRemoteResolveEffectiveTerm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/terms/effective", r.URL.Path)
		if r.URL.Query().Get("session") == "404" {
			http.NotFound(w, r)
			return
		}
		assert.NotEmpty(t, r.URL.Query().Get("at"))
		_, _ = w.Write([]byte(`{"term_id":3}`))
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL, 0, logger.Discard())
	ctx := context.Background()

	session := uint(5)
	termID, ok, err := remote.ResolveEffectiveTerm(ctx, &session, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(3), termID)

	missing := uint(404)
	_, ok, err = remote.ResolveEffectiveTerm(ctx, &missing, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRemoteWithoutURL(t *testing.T) {
	assert.Nil(t, NewRemote("", time.Minute, nil))
}
