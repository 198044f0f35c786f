package inbox

import (
	"database/sql"
	"time"

	"github.com/strefethen/receiver-discovery-go/internal/recognizer"
)

// Status is the review state of a discovery result.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusIgnored  Status = "IGNORED"
	StatusApproved Status = "APPROVED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusIgnored, StatusApproved:
		return true
	}
	return false
}

// Entry is a discovery result held in the inbox.
type Entry struct {
	Object                 string                  `json:"object"`
	ThingUID               string                  `json:"thing_uid"`
	ThingTypeUID           recognizer.ThingTypeUID `json:"thing_type_uid"`
	Identifier             string                  `json:"identifier"`
	Label                  string                  `json:"label"`
	Properties             map[string]string       `json:"properties"`
	RepresentationProperty string                  `json:"representation_property,omitempty"`
	Status                 Status                  `json:"status"`
	FirstSeenAt            time.Time               `json:"first_seen_at"`
	LastSeenAt             time.Time               `json:"last_seen_at"`
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Status    Status
	ThingType recognizer.ThingTypeUID
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// timestampLayout is fixed-width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(timestampLayout, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
