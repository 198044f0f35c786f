// Package yamaha recognizes Yamaha AV receivers among discovered UPnP devices.
package yamaha

import (
	"log"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/strefethen/receiver-discovery-go/internal/recognizer"
	"github.com/strefethen/receiver-discovery-go/internal/upnp"
)

const (
	defaultPort = 80
	// Some receivers answer UPnP on 8080 while the control API lives on 80.
	managementPort = 8080
)

// Recognizer classifies devices against a Config. It holds no mutable state.
type Recognizer struct {
	cfg    Config
	logger *log.Logger
}

// New returns a recognizer for cfg. A nil logger uses log.Default().
func New(cfg Config, logger *log.Logger) *Recognizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Recognizer{cfg: cfg, logger: logger}
}

// ThingType returns the thing type this recognizer produces.
func (r *Recognizer) ThingType() recognizer.ThingTypeUID {
	return r.cfg.ThingType
}

// Classify returns the normalized identifier of device when it is a supported receiver.
func (r *Recognizer) Classify(device *upnp.Device) (string, bool) {
	if device == nil {
		return "", false
	}
	manufacturer, ok := device.Manufacturer()
	if !ok {
		return "", false
	}
	modelName, ok := device.ModelName()
	if !ok {
		return "", false
	}

	if !strings.Contains(strings.ToUpper(manufacturer), strings.ToUpper(r.cfg.VendorToken)) {
		return "", false
	}
	if device.ShortType() != r.cfg.DeviceType {
		return "", false
	}

	identifier := NormalizeUDN(device.Identity.UDN)
	// An empty UDN would give every such device the same thing UID.
	if identifier == "" {
		return "", false
	}

	r.logger.Printf("[YAMAHA] Discovered receiver %q model %q with UDN %q", device.FriendlyName(), modelName, identifier)
	return identifier, true
}

// BuildResult derives the identifier, label and control address of a supported receiver.
func (r *Recognizer) BuildResult(device *upnp.Device) (*recognizer.MatchResult, bool) {
	identifier, ok := r.Classify(device)
	if !ok {
		return nil, false
	}
	descriptorURL := device.Identity.DescriptorURL
	if descriptorURL == nil {
		return nil, false
	}

	modelName, _ := device.ModelName()
	return &recognizer.MatchResult{
		Identifier: identifier,
		Label:      BuildLabel(r.cfg.LabelPrefix, modelName),
		Address:    net.JoinHostPort(descriptorURL.Hostname(), strconv.Itoa(ResolvePort(descriptorURL))),
	}, true
}

// Recognize adapts BuildResult to recognizer.Func.
func (r *Recognizer) Recognize(device *upnp.Device) (recognizer.Registration, bool) {
	result, ok := r.BuildResult(device)
	if !ok {
		return recognizer.Registration{}, false
	}

	r.logger.Printf("[YAMAHA] Created registration for %q with UDN %q", result.Label, device.Identity.UDN)
	return recognizer.Registration{
		ThingUID:               r.cfg.ThingType.ThingUID(result.Identifier),
		ThingTypeUID:           r.cfg.ThingType,
		Identifier:             result.Identifier,
		Label:                  result.Label,
		Properties:             map[string]string{r.cfg.HostProperty: result.Address},
		RepresentationProperty: r.cfg.HostProperty,
	}, true
}

// Register adds the recognizer to registry under its thing type.
func (r *Recognizer) Register(registry *recognizer.Registry) error {
	return registry.Register(r.cfg.ThingType, r.Recognize)
}

// NormalizeUDN replaces '-' with '_' since thing identifiers may not contain dashes.
func NormalizeUDN(udn string) string {
	return strings.ReplaceAll(udn, "-", "_")
}

// BuildLabel appends the model name to prefix when one is known.
func BuildLabel(prefix, modelName string) string {
	if modelName == "" {
		return prefix
	}
	return prefix + " " + modelName
}

// ResolvePort returns the control port for a descriptor URL: 80 when the URL has
// no port, 80 in place of 8080, otherwise the URL's port.
func ResolvePort(descriptorURL *url.URL) int {
	if descriptorURL == nil {
		return defaultPort
	}
	port, err := strconv.Atoi(descriptorURL.Port())
	if err != nil {
		return defaultPort
	}
	if port == managementPort {
		return defaultPort
	}
	return port
}
