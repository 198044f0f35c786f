package upnp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoDevice is returned when a description document has no root device element.
var ErrNoDevice = errors.New("description has no device element")

type descriptionRoot struct {
	XMLName xml.Name           `xml:"root"`
	Device  *descriptionDevice `xml:"device"`
}

type descriptionDevice struct {
	DeviceType       string `xml:"deviceType"`
	FriendlyName     string `xml:"friendlyName"`
	Manufacturer     string `xml:"manufacturer"`
	ManufacturerURL  string `xml:"manufacturerURL"`
	ModelDescription string `xml:"modelDescription"`
	ModelName        string `xml:"modelName"`
	ModelNumber      string `xml:"modelNumber"`
	ModelURL         string `xml:"modelURL"`
	SerialNumber     string `xml:"serialNumber"`
	UDN              string `xml:"UDN"`
}

// ParseDescription decodes a UPnP device description document. descriptorURL is the
// location the document was fetched from and becomes part of the device identity.
func ParseDescription(payload []byte, descriptorURL *url.URL) (*Device, error) {
	var root descriptionRoot
	if err := xml.NewDecoder(bytes.NewReader(payload)).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode description: %w", err)
	}
	if root.Device == nil {
		return nil, ErrNoDevice
	}
	raw := root.Device

	details := &DeviceDetails{
		FriendlyName: strings.TrimSpace(raw.FriendlyName),
		SerialNumber: strings.TrimSpace(raw.SerialNumber),
	}
	if manufacturer := strings.TrimSpace(raw.Manufacturer); manufacturer != "" {
		details.Manufacturer = &ManufacturerDetails{
			Manufacturer:    manufacturer,
			ManufacturerURL: strings.TrimSpace(raw.ManufacturerURL),
		}
	}
	model := ModelDetails{
		ModelName:        strings.TrimSpace(raw.ModelName),
		ModelNumber:      strings.TrimSpace(raw.ModelNumber),
		ModelDescription: strings.TrimSpace(raw.ModelDescription),
		ModelURL:         strings.TrimSpace(raw.ModelURL),
	}
	if model != (ModelDetails{}) {
		details.Model = &model
	}

	return &Device{
		Identity: Identity{
			UDN:           strings.TrimSpace(raw.UDN),
			DescriptorURL: descriptorURL,
		},
		DeviceType: strings.TrimSpace(raw.DeviceType),
		Details:    details,
	}, nil
}
