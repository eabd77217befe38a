package lightwave

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Feature is one readable or controllable attribute of a device. ID is stable and
// distinct from Type; Value is set once read from the API.
type Feature struct {
	Type  string
	ID    string
	Value *int
}

func (f *Feature) String() string {
	if f.Value == nil {
		return f.Type
	}
	return f.Type + "=" + strconv.Itoa(*f.Value)
}

// Device is a controllable unit with its features in API order.
type Device struct {
	ID       string
	Name     string
	Features []*Feature
}

// Feature returns the first feature of the given type.
func (d *Device) Feature(featureType string) (*Feature, bool) {
	for _, f := range d.Features {
		if f.Type == featureType {
			return f, true
		}
	}
	return nil, false
}

// FeatureID returns the id of the first feature of the given type, or a
// *NotFoundError if the device has none.
func (d *Device) FeatureID(featureType string) (string, error) {
	f, ok := d.Feature(featureType)
	if !ok {
		return "", &NotFoundError{Kind: "feature", ID: d.Name + "/" + featureType}
	}
	return f.ID, nil
}

// Structure is a named grouping of devices (a home or site).
type Structure struct {
	ID      string
	Name    string
	Devices []*Device
}

// DeviceByName returns the first device called name.
func (s *Structure) DeviceByName(name string) (*Device, error) {
	for _, d := range s.Devices {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, &NotFoundError{Kind: "device", ID: name}
}

type rawFeature struct {
	Type      *string `json:"type"`
	FeatureID *string `json:"featureId"`
}

type rawDevice struct {
	DeviceID    *string `json:"deviceId"`
	Name        *string `json:"name"`
	FeatureSets []struct {
		Features []json.RawMessage `json:"features"`
	} `json:"featureSets"`
}

type rawStructure struct {
	Name    string            `json:"name"`
	Devices []json.RawMessage `json:"devices"`
}

// ParseStructure maps a structure response to a Structure.
func ParseStructure(id string, data []byte) (*Structure, error) {
	var raw rawStructure
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, malformed(fmt.Sprintf("unable to parse structure: %v", err), data)
	}

	s := &Structure{ID: id, Name: raw.Name}
	for _, rd := range raw.Devices {
		d, err := ParseDevice(rd)
		if err != nil {
			return nil, err
		}
		s.Devices = append(s.Devices, d)
	}
	return s, nil
}

// ParseDevice maps one device object. deviceId and name are required, as are type
// and featureId on every feature.
func ParseDevice(data []byte) (*Device, error) {
	var raw rawDevice
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, malformed(fmt.Sprintf("unable to parse device: %v", err), data)
	}
	if raw.DeviceID == nil {
		return nil, malformed("unable to parse device ID", data)
	}
	if raw.Name == nil {
		return nil, malformed("unable to parse device name", data)
	}

	d := &Device{ID: *raw.DeviceID, Name: *raw.Name}
	for _, set := range raw.FeatureSets {
		for _, rf := range set.Features {
			f, err := parseFeature(rf)
			if err != nil {
				return nil, malformed("unable to parse device's features: "+err.Error(), data)
			}
			d.Features = append(d.Features, f)
		}
	}
	return d, nil
}

func parseFeature(data []byte) (*Feature, error) {
	var raw rawFeature
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Type == nil || raw.FeatureID == nil {
		return nil, fmt.Errorf("feature is missing type or featureId: %s", data)
	}
	return &Feature{Type: *raw.Type, ID: *raw.FeatureID}, nil
}
