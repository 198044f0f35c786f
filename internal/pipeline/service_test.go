package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/receiver-discovery-go/internal/db"
	"github.com/strefethen/receiver-discovery-go/internal/inbox"
	"github.com/strefethen/receiver-discovery-go/internal/recognizer"
	"github.com/strefethen/receiver-discovery-go/internal/upnp"
	"github.com/strefethen/receiver-discovery-go/internal/yamaha"
)

type fakeScanner struct {
	mu      sync.Mutex
	devices []*upnp.Device
	err     error
	calls   atomic.Int32
	block   chan struct{}
}

func (s *fakeScanner) Scan(ctx context.Context) ([]*upnp.Device, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices, s.err
}

func testDevice(t *testing.T, manufacturer, model, udn, location string) *upnp.Device {
	t.Helper()
	descriptorURL, err := url.Parse(location)
	require.NoError(t, err)
	return &upnp.Device{
		Identity:   upnp.Identity{UDN: udn, DescriptorURL: descriptorURL},
		DeviceType: "urn:schemas-upnp-org:device:MediaRenderer:1",
		Details: &upnp.DeviceDetails{
			Manufacturer: &upnp.ManufacturerDetails{Manufacturer: manufacturer},
			Model:        &upnp.ModelDetails{ModelName: model},
		},
	}
}

type fixture struct {
	service *Service
	scanner *fakeScanner
	inbox   *inbox.Service
	dbPair  *db.DBPair
}

func setupService(t *testing.T, opts Options) fixture {
	t.Helper()
	dbPair, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	logger := log.New(io.Discard, "", 0)
	registry := recognizer.NewRegistry()
	require.NoError(t, yamaha.New(yamaha.DefaultConfig(), logger).Register(registry))

	scanner := &fakeScanner{devices: []*upnp.Device{
		testDevice(t, "YAMAHA CORPORATION", "RX-V685", "uuid:1-2-3", "http://192.168.1.50/desc.xml"),
		testDevice(t, "Yamaha", "RX-A1080", "uuid:4-5-6", "http://192.168.1.51:8080/desc.xml"),
		testDevice(t, "Sony", "STR-DN1080", "uuid:7-8-9", "http://192.168.1.60/desc.xml"),
	}}
	inboxService := inbox.NewService(dbPair, nil, logger)
	service := NewService(scanner, registry, inboxService, NewRunRepository(dbPair), opts, logger)
	t.Cleanup(service.StopPeriodic)

	return fixture{service: service, scanner: scanner, inbox: inboxService, dbPair: dbPair}
}

func TestService_Rescan(t *testing.T) {
	f := setupService(t, Options{})

	result, err := f.service.Rescan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.DevicesSeen)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 2, result.Added)
	assert.NotEmpty(t, result.RunID)

	entries, err := f.inbox.List(inbox.ListFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entry, err := f.inbox.Get("yamahareceiver:yamahaAV:uuid:4_5_6")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Yamaha Receiver RX-A1080", entry.Label)
	assert.Equal(t, "192.168.1.51:80", entry.Properties["host"])

	result, err = f.service.Rescan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 0, result.Added, "known devices are refreshed, not re-added")

	runs, err := f.service.History(10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestService_RescanScannerError(t *testing.T) {
	f := setupService(t, Options{})
	f.scanner.err = errors.New("network unreachable")

	_, err := f.service.Rescan(context.Background())
	require.Error(t, err)

	status := f.service.Status()
	require.NotNil(t, status.LastRun)
	assert.Equal(t, "network unreachable", status.LastRun.Error)

	runs, err := f.service.History(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "network unreachable", runs[0].Error)
}

func TestService_NoScanner(t *testing.T) {
	service := NewService(nil, recognizer.NewRegistry(), nil, nil, Options{}, log.New(io.Discard, "", 0))

	_, err := service.Rescan(context.Background())
	require.ErrorIs(t, err, ErrNoScanner)

	runs, err := service.History(5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestService_RescanSingleFlight(t *testing.T) {
	f := setupService(t, Options{})
	f.scanner.block = make(chan struct{})

	var wg sync.WaitGroup
	results := make([]RunResult, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.service.Rescan(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return f.service.Status().Running }, 2*time.Second, 5*time.Millisecond)
	// Let the waiters queue up behind the in-flight run.
	time.Sleep(50 * time.Millisecond)
	close(f.scanner.block)
	wg.Wait()

	assert.Equal(t, int32(1), f.scanner.calls.Load())
	for _, result := range results {
		assert.Equal(t, results[0].RunID, result.RunID)
	}
	assert.False(t, f.service.Status().Running)
}

func TestService_Prune(t *testing.T) {
	f := setupService(t, Options{InboxTTL: time.Hour})

	stale := recognizer.Registration{
		ThingUID:     "yamahareceiver:yamahaAV:uuid:gone",
		ThingTypeUID: yamaha.DefaultThingType,
		Identifier:   "uuid:gone",
		Label:        "Yamaha Receiver",
	}
	_, _, err := inbox.NewRepository(f.dbPair).Upsert(stale, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	result, err := f.service.Rescan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pruned)

	entry, err := f.inbox.Get(stale.ThingUID)
	require.NoError(t, err)
	assert.Nil(t, entry)

	entries, err := f.inbox.List(inbox.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestService_StartPeriodic(t *testing.T) {
	f := setupService(t, Options{Schedule: "@every 1h"})

	require.NoError(t, f.service.StartPeriodic())
	require.NoError(t, f.service.StartPeriodic(), "starting twice is a no-op")
	assert.True(t, f.service.Status().Scheduled)

	require.Eventually(t, func() bool { return f.service.Status().LastRun != nil }, 2*time.Second, 10*time.Millisecond)

	f.service.StopPeriodic()
	assert.False(t, f.service.Status().Scheduled)
}

func TestService_StartPeriodicDisabledAndInvalid(t *testing.T) {
	f := setupService(t, Options{})
	require.NoError(t, f.service.StartPeriodic())
	assert.False(t, f.service.Status().Scheduled)

	bad := setupService(t, Options{Schedule: "not a schedule"})
	require.Error(t, bad.service.StartPeriodic())
	assert.False(t, bad.service.Status().Scheduled)
}

func TestRoutes(t *testing.T) {
	f := setupService(t, Options{})
	router := chi.NewRouter()
	RegisterRoutes(router, f.service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/discovery/rescan", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var run map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "discovery_run", run["object"])
	assert.Equal(t, float64(2), run["matched"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/discovery/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "discovery_status", status["object"])
	assert.NotNil(t, status["last_run"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/discovery/participants", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var participants map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &participants))
	data := participants["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "yamahareceiver:yamahaAV", data[0].(map[string]any)["thing_type_uid"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/discovery/runs?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/discovery/runs?limit=abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutes_RescanFailure(t *testing.T) {
	f := setupService(t, Options{})
	f.scanner.err = errors.New("boom")
	router := chi.NewRouter()
	RegisterRoutes(router, f.service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/discovery/rescan", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
