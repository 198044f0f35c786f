package system

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/receiver-discovery-go/internal/db"
	"github.com/strefethen/receiver-discovery-go/internal/inbox"
	"github.com/strefethen/receiver-discovery-go/internal/pipeline"
	"github.com/strefethen/receiver-discovery-go/internal/recognizer"
)

type staticStatus pipeline.Status

func (s staticStatus) Status() pipeline.Status { return pipeline.Status(s) }

func setupService(t *testing.T, discovery DiscoveryStatusProvider) (*Service, *inbox.Service) {
	t.Helper()
	dbPair, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })
	return NewService(dbPair, nil, discovery), inbox.NewService(dbPair, nil, nil)
}

func TestGetSystemInfo(t *testing.T) {
	startedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service, inboxService := setupService(t, staticStatus{
		Scheduled: true,
		LastRun:   &pipeline.RunResult{StartedAt: startedAt, Error: "timeout"},
	})

	for _, id := range []string{"uuid:a", "uuid:b"} {
		_, _, err := inboxService.Record(recognizer.Registration{
			ThingUID:     "yamahareceiver:yamahaAV:" + id,
			ThingTypeUID: "yamahareceiver:yamahaAV",
			Identifier:   id,
			Label:        "Yamaha Receiver",
		})
		require.NoError(t, err)
	}
	_, err := inboxService.Ignore("yamahareceiver:yamahaAV:uuid:b")
	require.NoError(t, err)

	info, err := service.GetSystemInfo()
	require.NoError(t, err)
	assert.Equal(t, "system_info", info.Object)
	assert.True(t, info.SQLiteConnected)
	assert.Equal(t, map[string]int{"NEW": 1, "IGNORED": 1}, info.InboxCounts)
	assert.True(t, info.DiscoveryScheduled)
	assert.False(t, info.DiscoveryRunning)
	require.NotNil(t, info.LastDiscovery)
	assert.Equal(t, startedAt, *info.LastDiscovery)
	assert.Equal(t, "timeout", info.LastDiscoveryError)
}

func TestGetSystemInfo_WithoutDiscovery(t *testing.T) {
	service, _ := setupService(t, nil)

	info, err := service.GetSystemInfo()
	require.NoError(t, err)
	assert.Empty(t, info.InboxCounts)
	assert.Nil(t, info.LastDiscovery)
}

func TestSystemInfoRoute(t *testing.T) {
	service, _ := setupService(t, nil)
	router := chi.NewRouter()
	RegisterRoutes(router, service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/system/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "system_info", body["object"])
	assert.Equal(t, Version, body["version"])
}
