package inbox

import (
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/receiver-discovery-go/internal/db"
	"github.com/strefethen/receiver-discovery-go/internal/recognizer"
)

func setupTestDB(t *testing.T) *db.DBPair {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })
	return dbPair
}

func testRegistration(identifier, address string) recognizer.Registration {
	thingType := recognizer.ThingTypeUID("yamahareceiver:yamahaAV")
	return recognizer.Registration{
		ThingUID:               thingType.ThingUID(identifier),
		ThingTypeUID:           thingType,
		Identifier:             identifier,
		Label:                  "Yamaha Receiver RX-V685",
		Properties:             map[string]string{"host": address},
		RepresentationProperty: "host",
	}
}

func TestRepository_UpsertCreates(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	seenAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry, created, err := repo.Upsert(testRegistration("uuid:1_2_3", "192.168.1.50:80"), seenAt)
	require.NoError(t, err)
	require.True(t, created)
	require.NotNil(t, entry)

	assert.Equal(t, "inbox_entry", entry.Object)
	assert.Equal(t, "yamahareceiver:yamahaAV:uuid:1_2_3", entry.ThingUID)
	assert.Equal(t, recognizer.ThingTypeUID("yamahareceiver:yamahaAV"), entry.ThingTypeUID)
	assert.Equal(t, "uuid:1_2_3", entry.Identifier)
	assert.Equal(t, map[string]string{"host": "192.168.1.50:80"}, entry.Properties)
	assert.Equal(t, "host", entry.RepresentationProperty)
	assert.Equal(t, StatusNew, entry.Status)
	assert.True(t, entry.FirstSeenAt.Equal(seenAt))
	assert.True(t, entry.LastSeenAt.Equal(seenAt))
}

func TestRepository_UpsertRefreshesAndKeepsStatus(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	firstSeen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	secondSeen := firstSeen.Add(time.Hour)

	_, _, err := repo.Upsert(testRegistration("uuid:1_2_3", "192.168.1.50:80"), firstSeen)
	require.NoError(t, err)
	_, err = repo.SetStatus("yamahareceiver:yamahaAV:uuid:1_2_3", StatusIgnored)
	require.NoError(t, err)

	entry, created, err := repo.Upsert(testRegistration("uuid:1_2_3", "192.168.1.51:80"), secondSeen)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, StatusIgnored, entry.Status)
	assert.Equal(t, "192.168.1.51:80", entry.Properties["host"])
	assert.True(t, entry.FirstSeenAt.Equal(firstSeen))
	assert.True(t, entry.LastSeenAt.Equal(secondSeen))
}

func TestRepository_UpsertRequiresThingUID(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	_, _, err := repo.Upsert(recognizer.Registration{}, time.Now())
	require.Error(t, err)
}

func TestRepository_GetNotFound(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	entry, err := repo.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestRepository_ListFilters(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, _, err := repo.Upsert(testRegistration("uuid:a", "10.0.0.1:80"), base)
	require.NoError(t, err)
	_, _, err = repo.Upsert(testRegistration("uuid:b", "10.0.0.2:80"), base.Add(time.Minute))
	require.NoError(t, err)
	other := recognizer.Registration{
		ThingUID:     "other:type:uuid:c",
		ThingTypeUID: "other:type",
		Identifier:   "uuid:c",
		Label:        "Other",
	}
	_, _, err = repo.Upsert(other, base.Add(2*time.Minute))
	require.NoError(t, err)
	_, err = repo.SetStatus("yamahareceiver:yamahaAV:uuid:a", StatusApproved)
	require.NoError(t, err)

	all, err := repo.List(ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "other:type:uuid:c", all[0].ThingUID, "most recently seen first")
	assert.Empty(t, all[0].Properties)
	assert.Equal(t, "", all[0].RepresentationProperty)

	newOnes, err := repo.List(ListFilter{Status: StatusNew})
	require.NoError(t, err)
	assert.Len(t, newOnes, 2)

	yamaha, err := repo.List(ListFilter{ThingType: "yamahareceiver:yamahaAV"})
	require.NoError(t, err)
	assert.Len(t, yamaha, 2)

	approved, err := repo.List(ListFilter{Status: StatusApproved, ThingType: "yamahareceiver:yamahaAV"})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "uuid:a", approved[0].Identifier)
}

func TestRepository_SetStatus(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	entry, err := repo.SetStatus("missing", StatusApproved)
	require.NoError(t, err)
	assert.Nil(t, entry)

	_, err = repo.SetStatus("missing", Status("BOGUS"))
	require.Error(t, err)
}

func TestRepository_Delete(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	_, _, err := repo.Upsert(testRegistration("uuid:a", "10.0.0.1:80"), time.Now())
	require.NoError(t, err)

	removed, err := repo.Delete("yamahareceiver:yamahaAV:uuid:a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete("yamahareceiver:yamahaAV:uuid:a")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRepository_PruneStale(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, _, err := repo.Upsert(testRegistration("uuid:old", "10.0.0.1:80"), base)
	require.NoError(t, err)
	_, _, err = repo.Upsert(testRegistration("uuid:old-ignored", "10.0.0.2:80"), base)
	require.NoError(t, err)
	_, err = repo.SetStatus("yamahareceiver:yamahaAV:uuid:old-ignored", StatusIgnored)
	require.NoError(t, err)
	_, _, err = repo.Upsert(testRegistration("uuid:fresh", "10.0.0.3:80"), base.Add(2*time.Hour))
	require.NoError(t, err)

	removed, err := repo.PruneStale(base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"yamahareceiver:yamahaAV:uuid:old"}, removed)

	remaining, err := repo.List(ListFilter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}
