package system

import (
	"database/sql"
	"log"
	"runtime"
	"time"

	"github.com/strefethen/receiver-discovery-go/internal/pipeline"
)

// Version is the service version, set at build time or defaulted.
var Version = "1.0.0"

// DiscoveryStatusProvider reports discovery pipeline state.
type DiscoveryStatusProvider interface {
	Status() pipeline.Status
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Service provides system information.
// Uses reader connection only as this service only performs SELECT queries.
type Service struct {
	logger    *log.Logger
	reader    *sql.DB
	discovery DiscoveryStatusProvider
	startTime time.Time
}

// NewService creates a new system service. discovery may be nil.
func NewService(dbPair DBPair, logger *log.Logger, discovery DiscoveryStatusProvider) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		logger:    logger,
		reader:    dbPair.Reader(),
		discovery: discovery,
		startTime: time.Now(),
	}
}

// SystemInfo holds system information.
type SystemInfo struct {
	Object             string         `json:"object"`
	Version            string         `json:"version"`
	Uptime             int64          `json:"uptime_seconds"`
	MemoryUsageMB      float64        `json:"memory_mb"`
	SQLiteConnected    bool           `json:"sqlite_connected"`
	InboxCounts        map[string]int `json:"inbox_counts"`
	DiscoveryRunning   bool           `json:"discovery_running"`
	DiscoveryScheduled bool           `json:"discovery_scheduled"`
	LastDiscovery      *time.Time     `json:"last_discovery,omitempty"`
	LastDiscoveryError string         `json:"last_discovery_error,omitempty"`
}

// GetSystemInfo returns current system information.
func (s *Service) GetSystemInfo() (*SystemInfo, error) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	info := &SystemInfo{
		Object:          "system_info",
		Version:         Version,
		Uptime:          int64(time.Since(s.startTime).Seconds()),
		MemoryUsageMB:   float64(memStats.Alloc) / 1024 / 1024,
		SQLiteConnected: s.reader.Ping() == nil,
		InboxCounts:     map[string]int{},
	}

	if info.SQLiteConnected {
		counts, err := s.inboxCounts()
		if err != nil {
			s.logger.Printf("[SYSTEM] Failed to count inbox entries: %v", err)
		} else {
			info.InboxCounts = counts
		}
	}

	if s.discovery != nil {
		status := s.discovery.Status()
		info.DiscoveryRunning = status.Running
		info.DiscoveryScheduled = status.Scheduled
		if status.LastRun != nil {
			startedAt := status.LastRun.StartedAt
			info.LastDiscovery = &startedAt
			info.LastDiscoveryError = status.LastRun.Error
		}
	}

	return info, nil
}

func (s *Service) inboxCounts() (map[string]int, error) {
	rows, err := s.reader.Query("SELECT status, COUNT(*) FROM inbox_entries GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
