package yamaha

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/strefethen/receiver-discovery-go/internal/recognizer"
)

const (
	DefaultVendorToken  = "YAMAHA"
	DefaultDeviceType   = "MediaRenderer"
	DefaultLabelPrefix  = "Yamaha Receiver"
	DefaultThingType    = recognizer.ThingTypeUID("yamahareceiver:yamahaAV")
	DefaultHostProperty = "host"
)

// Config holds the constants the recognizer matches and labels with.
type Config struct {
	// VendorToken is matched case-insensitively as a substring of the manufacturer.
	VendorToken string `yaml:"vendor_token"`
	// DeviceType must equal the type segment of the device type URN exactly,
	// e.g. "MediaRenderer" in "urn:schemas-upnp-org:device:MediaRenderer:1".
	DeviceType   string                  `yaml:"device_type"`
	LabelPrefix  string                  `yaml:"label_prefix"`
	ThingType    recognizer.ThingTypeUID `yaml:"thing_type"`
	HostProperty string                  `yaml:"host_property"`
}

// DefaultConfig returns the Yamaha receiver matching constants.
func DefaultConfig() Config {
	return Config{
		VendorToken:  DefaultVendorToken,
		DeviceType:   DefaultDeviceType,
		LabelPrefix:  DefaultLabelPrefix,
		ThingType:    DefaultThingType,
		HostProperty: DefaultHostProperty,
	}
}

// LoadConfig reads YAML overrides from path on top of DefaultConfig.
// An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read recognizer config: %w", err)
	}
	return ParseConfig(payload)
}

// ParseConfig decodes YAML overrides; fields left empty keep their defaults.
func ParseConfig(payload []byte) (Config, error) {
	var overrides Config
	if err := yaml.Unmarshal(payload, &overrides); err != nil {
		return Config{}, fmt.Errorf("parse recognizer config: %w", err)
	}

	cfg := DefaultConfig()
	if overrides.VendorToken != "" {
		cfg.VendorToken = overrides.VendorToken
	}
	if overrides.DeviceType != "" {
		cfg.DeviceType = overrides.DeviceType
	}
	if overrides.LabelPrefix != "" {
		cfg.LabelPrefix = overrides.LabelPrefix
	}
	if overrides.ThingType != "" {
		cfg.ThingType = overrides.ThingType
	}
	if overrides.HostProperty != "" {
		cfg.HostProperty = overrides.HostProperty
	}
	return cfg, nil
}
