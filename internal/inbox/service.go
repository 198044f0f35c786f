package inbox

import (
	"log"
	"time"

	"github.com/strefethen/receiver-discovery-go/internal/events"
	"github.com/strefethen/receiver-discovery-go/internal/recognizer"
)

// Publisher receives inbox change events.
type Publisher interface {
	Publish(event events.Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(events.Event) {}

// Service wraps the repository and announces every change.
type Service struct {
	repo      *Repository
	publisher Publisher
	logger    *log.Logger
	now       func() time.Time
}

func NewService(dbPair DBPair, publisher Publisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Service{
		repo:      NewRepository(dbPair),
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Record stores a registration and reports whether it was new.
func (s *Service) Record(registration recognizer.Registration) (*Entry, bool, error) {
	entry, created, err := s.repo.Upsert(registration, s.now())
	if err != nil {
		return nil, false, err
	}

	eventType := events.TypeInboxUpdated
	if created {
		eventType = events.TypeInboxAdded
		s.logger.Printf("[INBOX] Added %s (%s)", entry.ThingUID, entry.Label)
	}
	s.publisher.Publish(events.NewEvent(eventType, entry.ThingUID, entry.Label, string(entry.Status)))
	return entry, created, nil
}

func (s *Service) Get(thingUID string) (*Entry, error) {
	return s.repo.Get(thingUID)
}

func (s *Service) List(filter ListFilter) ([]Entry, error) {
	return s.repo.List(filter)
}

// Approve marks an entry as accepted. Returns nil, nil when it does not exist.
func (s *Service) Approve(thingUID string) (*Entry, error) {
	return s.setStatus(thingUID, StatusApproved)
}

// Ignore hides an entry from future review. Returns nil, nil when it does not exist.
func (s *Service) Ignore(thingUID string) (*Entry, error) {
	return s.setStatus(thingUID, StatusIgnored)
}

func (s *Service) setStatus(thingUID string, status Status) (*Entry, error) {
	entry, err := s.repo.SetStatus(thingUID, status)
	if err != nil || entry == nil {
		return entry, err
	}
	s.logger.Printf("[INBOX] %s -> %s", thingUID, status)
	s.publisher.Publish(events.NewEvent(events.TypeInboxStatus, entry.ThingUID, entry.Label, string(entry.Status)))
	return entry, nil
}

// Remove deletes an entry and reports whether it existed.
func (s *Service) Remove(thingUID string) (bool, error) {
	removed, err := s.repo.Delete(thingUID)
	if err != nil || !removed {
		return removed, err
	}
	s.publisher.Publish(events.NewEvent(events.TypeInboxRemoved, thingUID, "", ""))
	return true, nil
}

// PruneOlderThan removes NEW entries not seen within ttl.
func (s *Service) PruneOlderThan(ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	removed, err := s.repo.PruneStale(s.now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	for _, thingUID := range removed {
		s.publisher.Publish(events.NewEvent(events.TypeInboxRemoved, thingUID, "", ""))
	}
	if len(removed) > 0 {
		s.logger.Printf("[INBOX] Pruned %d stale entries", len(removed))
	}
	return len(removed), nil
}
