package lightwave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

var errNilDevice = fmt.Errorf("%w: device cannot be nil", ErrInvalidArgument)

// Structures returns the ids of the structures in the account.
func (c *Client) Structures(ctx context.Context) ([]string, error) {
	data, err := c.get(ctx, "structures")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Structures *[]string `json:"structures"`
	}
	if err := json.Unmarshal(data, &resp); err != nil || resp.Structures == nil {
		return nil, malformed("unable to parse structure list", data)
	}
	return *resp.Structures, nil
}

// Structure returns a structure and its devices.
func (c *Client) Structure(ctx context.Context, structureID string) (*Structure, error) {
	if structureID == "" {
		return nil, fmt.Errorf("%w: structure ID cannot be empty", ErrInvalidArgument)
	}

	data, err := c.get(ctx, "structure/"+url.PathEscape(structureID))
	if err != nil {
		return nil, asNotFound(err, "structure", structureID)
	}
	return ParseStructure(structureID, data)
}

// FirstStructure returns the first structure. Useful for accounts with a single home.
func (c *Client) FirstStructure(ctx context.Context) (*Structure, error) {
	ids, err := c.Structures(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, &NotFoundError{Kind: "structure", Err: ErrNoStructures}
	}
	return c.Structure(ctx, ids[0])
}

// Devices returns the devices of a structure.
func (c *Client) Devices(ctx context.Context, structureID string) ([]*Device, error) {
	s, err := c.Structure(ctx, structureID)
	if err != nil {
		return nil, err
	}
	return s.Devices, nil
}

// DevicesInFirstStructure returns the devices of the first structure.
func (c *Client) DevicesInFirstStructure(ctx context.Context) ([]*Device, error) {
	s, err := c.FirstStructure(ctx)
	if err != nil {
		return nil, err
	}
	return s.Devices, nil
}

// FeatureValue reads the current value of a feature.
func (c *Client) FeatureValue(ctx context.Context, featureID string) (int, error) {
	if featureID == "" {
		return 0, fmt.Errorf("%w: feature ID cannot be empty", ErrInvalidArgument)
	}

	data, err := c.get(ctx, "feature/"+url.PathEscape(featureID))
	if err != nil {
		return 0, asNotFound(err, "feature", featureID)
	}

	var resp struct {
		Value *int `json:"value"`
	}
	if err := json.Unmarshal(data, &resp); err != nil || resp.Value == nil {
		return 0, malformed("unable to parse feature value", data)
	}
	return *resp.Value, nil
}

// SetFeatureValue writes a new value to a feature.
func (c *Client) SetFeatureValue(ctx context.Context, featureID string, value int) error {
	if featureID == "" {
		return fmt.Errorf("%w: feature ID cannot be empty", ErrInvalidArgument)
	}

	body := map[string]int{"value": value}
	if _, err := c.post(ctx, "feature/"+url.PathEscape(featureID), body); err != nil {
		return asNotFound(err, "feature", featureID)
	}
	return nil
}

// ReadFeatures reads several feature values in one request. The result is keyed by
// feature id.
func (c *Client) ReadFeatures(ctx context.Context, featureIDs ...string) (map[string]int, error) {
	if len(featureIDs) == 0 {
		return map[string]int{}, nil
	}

	type featureRef struct {
		FeatureID string `json:"featureId"`
	}
	refs := make([]featureRef, 0, len(featureIDs))
	for _, id := range featureIDs {
		if id == "" {
			return nil, fmt.Errorf("%w: feature ID cannot be empty", ErrInvalidArgument)
		}
		refs = append(refs, featureRef{FeatureID: id})
	}

	data, err := c.Execute(ctx, "features/read", http.MethodPost, map[string]any{"features": refs})
	if err != nil {
		return nil, asNotFound(err, "feature", "")
	}

	values := make(map[string]int, len(featureIDs))
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, malformed(fmt.Sprintf("unable to parse feature values: %v", err), data)
	}
	return values, nil
}

// PopulateFeatureValues reads every feature of d and caches the values on d.Features.
// Features missing from the response keep a nil Value.
func (c *Client) PopulateFeatureValues(ctx context.Context, d *Device) error {
	if d == nil {
		return errNilDevice
	}
	ids := make([]string, 0, len(d.Features))
	for _, f := range d.Features {
		ids = append(ids, f.ID)
	}

	values, err := c.ReadFeatures(ctx, ids...)
	if err != nil {
		return err
	}

	for _, f := range d.Features {
		if v, ok := values[f.ID]; ok {
			f.Value = &v
		}
	}
	return nil
}

// SwitchState reports whether the device's switch feature is on. Older Connect
// devices only know their state if it was last changed through LinkPlus.
func (c *Client) SwitchState(ctx context.Context, d *Device) (bool, error) {
	if d == nil {
		return false, errNilDevice
	}
	f, ok := d.Feature(FeatureSwitch)
	if !ok {
		return false, &NotFoundError{Kind: "feature", ID: d.Name + "/" + FeatureSwitch}
	}

	v, err := c.FeatureValue(ctx, f.ID)
	if err != nil {
		return false, err
	}
	f.Value = &v
	return v == 1, nil
}

// SetSwitchState turns the device on or off.
func (c *Client) SetSwitchState(ctx context.Context, d *Device, on bool) error {
	if d == nil {
		return errNilDevice
	}
	f, ok := d.Feature(FeatureSwitch)
	if !ok {
		return &NotFoundError{Kind: "feature", ID: d.Name + "/" + FeatureSwitch}
	}

	v := 0
	if on {
		v = 1
	}
	if err := c.SetFeatureValue(ctx, f.ID, v); err != nil {
		return err
	}
	f.Value = &v
	return nil
}

// asNotFound maps the statuses the API uses for unknown ids (400, 404) to a
// *NotFoundError and passes every other error through.
func asNotFound(err error, kind, id string) error {
	switch StatusCode(err) {
	case http.StatusBadRequest, http.StatusNotFound:
		return &NotFoundError{Kind: kind, ID: id, Err: err}
	}
	return err
}
