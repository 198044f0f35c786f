package recognizer

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/strefethen/receiver-discovery-go/internal/upnp"
)

var (
	ErrEmptyThingType     = errors.New("thing type is required")
	ErrNilRecognizer      = errors.New("recognizer func is required")
	ErrDuplicateThingType = errors.New("thing type already registered")
)

// ThingTypeUID identifies a kind of thing, e.g. "yamahareceiver:yamahaAV".
type ThingTypeUID string

// ThingUID combines the type tag with a device identifier.
func (t ThingTypeUID) ThingUID(identifier string) string {
	return string(t) + ":" + identifier
}

// MatchResult is what a recognizer derives from a supported device.
type MatchResult struct {
	Identifier string `json:"identifier"`
	Label      string `json:"label"`
	Address    string `json:"address"`
}

// Registration is the record handed to the inbox for a recognized device.
type Registration struct {
	ThingUID               string            `json:"thing_uid"`
	ThingTypeUID           ThingTypeUID      `json:"thing_type_uid"`
	Identifier             string            `json:"identifier"`
	Label                  string            `json:"label"`
	Properties             map[string]string `json:"properties"`
	RepresentationProperty string            `json:"representation_property,omitempty"`
}

// Func maps a device to a registration. It must not block and must be safe for
// concurrent use.
type Func func(device *upnp.Device) (Registration, bool)

// Registry is a lookup table of recognizers keyed by the thing type they produce.
type Registry struct {
	mu      sync.RWMutex
	entries map[ThingTypeUID]Func
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[ThingTypeUID]Func)}
}

// Register adds fn for thingType.
func (r *Registry) Register(thingType ThingTypeUID, fn Func) error {
	if thingType == "" {
		return ErrEmptyThingType
	}
	if fn == nil {
		return ErrNilRecognizer
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[thingType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateThingType, thingType)
	}
	r.entries[thingType] = fn
	return nil
}

// Lookup returns the recognizer registered for thingType.
func (r *Registry) Lookup(thingType ThingTypeUID) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.entries[thingType]
	return fn, ok
}

// SupportedTypes returns all registered thing types in sorted order.
func (r *Registry) SupportedTypes() []ThingTypeUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]ThingTypeUID, 0, len(r.entries))
	for thingType := range r.entries {
		types = append(types, thingType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Recognize runs every registered recognizer against device and returns the
// registrations that matched, ordered by thing type.
func (r *Registry) Recognize(device *upnp.Device) []Registration {
	if device == nil {
		return nil
	}

	var matches []Registration
	for _, thingType := range r.SupportedTypes() {
		fn, ok := r.Lookup(thingType)
		if !ok {
			continue
		}
		if registration, ok := fn(device); ok {
			matches = append(matches, registration)
		}
	}
	return matches
}
