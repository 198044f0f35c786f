package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/strefethen/receiver-discovery-go/internal/discovery"
	"github.com/strefethen/receiver-discovery-go/internal/inbox"
	"github.com/strefethen/receiver-discovery-go/internal/recognizer"
	"github.com/strefethen/receiver-discovery-go/internal/upnp"
)

var ErrNoScanner = errors.New("discovery scanner not configured")

// Options tunes the discovery service.
type Options struct {
	// Schedule is a robfig/cron spec such as "@every 60s". Empty disables periodic runs.
	Schedule string
	// InboxTTL is how long a NEW inbox entry survives without being seen again.
	InboxTTL       time.Duration
	RunTimeout     time.Duration
	RecognizeLimit int
}

// Recorder stores recognized registrations.
type Recorder interface {
	Record(registration recognizer.Registration) (*inbox.Entry, bool, error)
	PruneOlderThan(ttl time.Duration) (int, error)
}

type runOutcome struct {
	result RunResult
	err    error
}

// Status describes the discovery service for the status endpoint.
type Status struct {
	Object    string     `json:"object"`
	Running   bool       `json:"running"`
	Scheduled bool       `json:"scheduled"`
	Schedule  string     `json:"schedule,omitempty"`
	LastRun   *RunResult `json:"last_run"`
}

// Service scans the network, recognizes devices and records them in the inbox.
type Service struct {
	scanner  discovery.Scanner
	registry *recognizer.Registry
	recorder Recorder
	runs     *RunRepository
	opts     Options
	logger   *log.Logger

	statusMu sync.RWMutex
	lastRun  *RunResult

	discoveryMu       sync.Mutex
	discoveryInFlight bool
	discoveryWaiters  []chan runOutcome

	periodicMu sync.Mutex
	cron       *cron.Cron
}

// NewService builds the discovery service. runs may be nil to skip run history.
func NewService(scanner discovery.Scanner, registry *recognizer.Registry, recorder Recorder, runs *RunRepository, opts Options, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 30 * time.Second
	}
	if opts.RecognizeLimit <= 0 {
		opts.RecognizeLimit = 4
	}
	return &Service{
		scanner:  scanner,
		registry: registry,
		recorder: recorder,
		runs:     runs,
		opts:     opts,
		logger:   logger,
	}
}

// SupportedTypes lists the thing types the registry can produce.
func (service *Service) SupportedTypes() []recognizer.ThingTypeUID {
	return service.registry.SupportedTypes()
}

// Rescan runs discovery once. Concurrent callers share a single in-flight run.
func (service *Service) Rescan(ctx context.Context) (RunResult, error) {
	service.discoveryMu.Lock()
	if service.discoveryInFlight {
		ch := make(chan runOutcome, 1)
		service.discoveryWaiters = append(service.discoveryWaiters, ch)
		service.discoveryMu.Unlock()
		select {
		case outcome := <-ch:
			return outcome.result, outcome.err
		case <-ctx.Done():
			return RunResult{}, ctx.Err()
		}
	}
	service.discoveryInFlight = true
	service.discoveryMu.Unlock()

	// The run outlives a cancelled caller so waiters still get a result.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), service.opts.RunTimeout)
	result, err := service.runDiscovery(runCtx)
	cancel()

	service.discoveryMu.Lock()
	waiters := service.discoveryWaiters
	service.discoveryWaiters = nil
	service.discoveryInFlight = false
	service.discoveryMu.Unlock()

	for _, ch := range waiters {
		ch <- runOutcome{result: result, err: err}
		close(ch)
	}

	return result, err
}

func (service *Service) runDiscovery(ctx context.Context) (RunResult, error) {
	start := time.Now()
	result := RunResult{
		Object:    "discovery_run",
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
	}

	err := service.discover(ctx, &result)
	result.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		service.logger.Printf("[PIPELINE] Discovery run %s failed: %v", result.RunID, err)
	} else {
		service.logger.Printf("[PIPELINE] Discovery run %s: %d devices, %d matched, %d new, %d pruned in %dms",
			result.RunID, result.DevicesSeen, result.Matched, result.Added, result.Pruned, result.DurationMs)
	}

	if service.runs != nil {
		if insertErr := service.runs.Insert(result); insertErr != nil {
			service.logger.Printf("[PIPELINE] Failed to record run %s: %v", result.RunID, insertErr)
		}
	}

	service.statusMu.Lock()
	last := result
	service.lastRun = &last
	service.statusMu.Unlock()

	return result, err
}

func (service *Service) discover(ctx context.Context, result *RunResult) error {
	if service.scanner == nil {
		return ErrNoScanner
	}

	devices, err := service.scanner.Scan(ctx)
	if err != nil {
		return err
	}
	result.DevicesSeen = len(devices)

	registrations := service.recognize(devices)
	result.Matched = len(registrations)

	for _, registration := range registrations {
		_, created, err := service.recorder.Record(registration)
		if err != nil {
			return err
		}
		if created {
			result.Added++
		}
	}

	pruned, err := service.recorder.PruneOlderThan(service.opts.InboxTTL)
	if err != nil {
		return err
	}
	result.Pruned = pruned
	return nil
}

// recognize runs the registry over devices concurrently and flattens the matches
// in device order.
func (service *Service) recognize(devices []*upnp.Device) []recognizer.Registration {
	perDevice := make([][]recognizer.Registration, len(devices))

	group := new(errgroup.Group)
	group.SetLimit(service.opts.RecognizeLimit)
	for i, device := range devices {
		group.Go(func() error {
			perDevice[i] = service.registry.Recognize(device)
			return nil
		})
	}
	_ = group.Wait()

	var registrations []recognizer.Registration
	for _, matches := range perDevice {
		registrations = append(registrations, matches...)
	}
	return registrations
}

// StartPeriodic schedules background runs and triggers an initial run.
func (service *Service) StartPeriodic() error {
	service.periodicMu.Lock()
	defer service.periodicMu.Unlock()

	if service.cron != nil {
		return nil
	}
	if service.opts.Schedule == "" {
		service.logger.Print("[PIPELINE] Periodic discovery disabled")
		return nil
	}

	cronLogger := cron.PrintfLogger(service.logger)
	scheduler := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	if _, err := scheduler.AddFunc(service.opts.Schedule, service.periodicRun); err != nil {
		return err
	}

	service.logger.Printf("[PIPELINE] Starting periodic discovery schedule=%q", service.opts.Schedule)
	service.cron = scheduler
	scheduler.Start()
	go service.periodicRun()
	return nil
}

func (service *Service) periodicRun() {
	if _, err := service.Rescan(context.Background()); err != nil {
		service.logger.Printf("[PIPELINE] Periodic discovery failed: %v", err)
	}
}

// StopPeriodic stops the schedule and waits for a running job to finish.
func (service *Service) StopPeriodic() {
	service.periodicMu.Lock()
	scheduler := service.cron
	service.cron = nil
	service.periodicMu.Unlock()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
}

// Status reports the current state of the service.
func (service *Service) Status() Status {
	service.discoveryMu.Lock()
	running := service.discoveryInFlight
	service.discoveryMu.Unlock()

	service.periodicMu.Lock()
	scheduled := service.cron != nil
	service.periodicMu.Unlock()

	service.statusMu.RLock()
	defer service.statusMu.RUnlock()
	var last *RunResult
	if service.lastRun != nil {
		copied := *service.lastRun
		last = &copied
	}

	return Status{
		Object:    "discovery_status",
		Running:   running,
		Scheduled: scheduled,
		Schedule:  service.opts.Schedule,
		LastRun:   last,
	}
}

// History returns recent runs, newest first.
func (service *Service) History(limit int) ([]RunResult, error) {
	if service.runs == nil {
		return []RunResult{}, nil
	}
	return service.runs.Latest(limit)
}
