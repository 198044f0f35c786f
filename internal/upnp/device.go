package upnp

import (
	"net/url"
	"strings"
)

// ManufacturerDetails holds the manufacturer block of a device description.
type ManufacturerDetails struct {
	Manufacturer    string
	ManufacturerURL string
}

// ModelDetails holds the model block of a device description.
type ModelDetails struct {
	ModelName        string
	ModelNumber      string
	ModelDescription string
	ModelURL         string
}

// DeviceDetails is the descriptive part of a device. Any nested block may be nil
// when the device did not report it.
type DeviceDetails struct {
	FriendlyName string
	SerialNumber string
	Manufacturer *ManufacturerDetails
	Model        *ModelDetails
}

// Identity locates a device instance on the network.
type Identity struct {
	UDN           string
	DescriptorURL *url.URL
}

// Device is a discovered UPnP root device.
type Device struct {
	Identity   Identity
	DeviceType string
	Details    *DeviceDetails
}

// Manufacturer returns the reported manufacturer, or false when it is absent.
func (d *Device) Manufacturer() (string, bool) {
	if d == nil || d.Details == nil || d.Details.Manufacturer == nil {
		return "", false
	}
	name := d.Details.Manufacturer.Manufacturer
	return name, name != ""
}

// ModelName returns the reported model name, or false when it is absent.
func (d *Device) ModelName() (string, bool) {
	if d == nil || d.Details == nil || d.Details.Model == nil {
		return "", false
	}
	name := d.Details.Model.ModelName
	return name, name != ""
}

// FriendlyName returns the friendly name or "" when absent.
func (d *Device) FriendlyName() string {
	if d == nil || d.Details == nil {
		return ""
	}
	return d.Details.FriendlyName
}

// ShortType returns the type component of the device type URN,
// e.g. "MediaRenderer" for "urn:schemas-upnp-org:device:MediaRenderer:1".
func (d *Device) ShortType() string {
	if d == nil {
		return ""
	}
	parts := strings.Split(d.DeviceType, ":")
	if len(parts) >= 5 && parts[2] == "device" {
		return parts[3]
	}
	return d.DeviceType
}
