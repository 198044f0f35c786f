package inbox

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/strefethen/receiver-discovery-go/internal/recognizer"
)

// Repository handles database operations for inbox entries.
// Uses separate reader/writer connections for optimal SQLite concurrency.
type Repository struct {
	reader *sql.DB // For SELECT queries
	writer *sql.DB // For INSERT/UPDATE/DELETE
}

// NewRepository creates a new inbox Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

const selectColumns = `thing_uid, thing_type_uid, identifier, label, properties, representation_property, status, first_seen_at, last_seen_at`

// Upsert stores a registration seen at seenAt. Existing entries keep their status and
// first_seen_at; label, properties and last_seen_at are refreshed.
// Returns the stored entry and whether it was newly created.
func (r *Repository) Upsert(registration recognizer.Registration, seenAt time.Time) (*Entry, bool, error) {
	if registration.ThingUID == "" {
		return nil, false, errors.New("thing uid is required")
	}

	properties := registration.Properties
	if properties == nil {
		properties = map[string]string{}
	}
	propertiesJSON, err := json.Marshal(properties)
	if err != nil {
		return nil, false, err
	}

	var representation any
	if registration.RepresentationProperty != "" {
		representation = registration.RepresentationProperty
	}

	tx, err := r.writer.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var exists int
	err = tx.QueryRow("SELECT 1 FROM inbox_entries WHERE thing_uid = ?", registration.ThingUID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		exists = 0
	case err != nil:
		return nil, false, err
	}

	now := formatTime(seenAt)
	if exists == 0 {
		_, err = tx.Exec(`
			INSERT INTO inbox_entries (thing_uid, thing_type_uid, identifier, label, properties, representation_property, status, first_seen_at, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, registration.ThingUID, string(registration.ThingTypeUID), registration.Identifier, registration.Label,
			string(propertiesJSON), representation, string(StatusNew), now, now)
	} else {
		_, err = tx.Exec(`
			UPDATE inbox_entries
			SET label = ?, properties = ?, representation_property = ?, last_seen_at = ?
			WHERE thing_uid = ?
		`, registration.Label, string(propertiesJSON), representation, now, registration.ThingUID)
	}
	if err != nil {
		return nil, false, err
	}

	entry, err := scanEntry(tx.QueryRow("SELECT "+selectColumns+" FROM inbox_entries WHERE thing_uid = ?", registration.ThingUID))
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}
	return entry, exists == 0, nil
}

// Get retrieves a single entry. Returns nil, nil if not found.
func (r *Repository) Get(thingUID string) (*Entry, error) {
	return scanEntry(r.reader.QueryRow("SELECT "+selectColumns+" FROM inbox_entries WHERE thing_uid = ?", thingUID))
}

// List returns entries matching filter, most recently seen first.
func (r *Repository) List(filter ListFilter) ([]Entry, error) {
	var conditions []string
	var args []any
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ThingType != "" {
		conditions = append(conditions, "thing_type_uid = ?")
		args = append(args, string(filter.ThingType))
	}

	query := "SELECT " + selectColumns + " FROM inbox_entries"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY last_seen_at DESC, thing_uid ASC"

	rows, err := r.reader.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// SetStatus changes the review status. Returns nil, nil if the entry does not exist.
func (r *Repository) SetStatus(thingUID string, status Status) (*Entry, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	result, err := r.writer.Exec("UPDATE inbox_entries SET status = ? WHERE thing_uid = ?", string(status), thingUID)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return scanEntry(r.writer.QueryRow("SELECT "+selectColumns+" FROM inbox_entries WHERE thing_uid = ?", thingUID))
}

// Delete removes an entry and reports whether it existed.
func (r *Repository) Delete(thingUID string) (bool, error) {
	result, err := r.writer.Exec("DELETE FROM inbox_entries WHERE thing_uid = ?", thingUID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// PruneStale deletes NEW entries last seen before cutoff and returns their thing UIDs.
// Ignored and approved entries are kept.
func (r *Repository) PruneStale(cutoff time.Time) ([]string, error) {
	tx, err := r.writer.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT thing_uid FROM inbox_entries WHERE status = ? AND last_seen_at < ? ORDER BY thing_uid",
		string(StatusNew), formatTime(cutoff))
	if err != nil {
		return nil, err
	}
	var stale []string
	for rows.Next() {
		var thingUID string
		if err := rows.Scan(&thingUID); err != nil {
			rows.Close()
			return nil, err
		}
		stale = append(stale, thingUID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, thingUID := range stale {
		if _, err := tx.Exec("DELETE FROM inbox_entries WHERE thing_uid = ?", thingUID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return stale, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var entry Entry
	var thingType, status, propertiesJSON, firstSeen, lastSeen string
	var representation sql.NullString

	err := row.Scan(&entry.ThingUID, &thingType, &entry.Identifier, &entry.Label, &propertiesJSON,
		&representation, &status, &firstSeen, &lastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	entry.Object = "inbox_entry"
	entry.ThingTypeUID = recognizer.ThingTypeUID(thingType)
	entry.Status = Status(status)
	entry.RepresentationProperty = representation.String
	entry.FirstSeenAt = parseTime(firstSeen)
	entry.LastSeenAt = parseTime(lastSeen)
	entry.Properties = map[string]string{}
	if err := json.Unmarshal([]byte(propertiesJSON), &entry.Properties); err != nil {
		return nil, fmt.Errorf("decode properties for %s: %w", entry.ThingUID, err)
	}
	return &entry, nil
}
