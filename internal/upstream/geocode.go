package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"sevibus.transitlab.org/internal/models"
)

// nominatimAddress mirrors the address object of a Nominatim reverse lookup.
// Street-level naming varies by map feature, so several keys may carry the
// street name.
type nominatimAddress struct {
	Road          string `json:"road"`
	Footway       string `json:"footway"`
	Path          string `json:"path"`
	HouseNumber   string `json:"house_number"`
	Postcode      string `json:"postcode"`
	City          string `json:"city"`
	Town          string `json:"town"`
	Municipality  string `json:"municipality"`
	County        string `json:"county"`
	StateDistrict string `json:"state_district"`
	State         string `json:"state"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (a nominatimAddress) toAddress() models.Address {
	addr := models.Address{
		Street:       firstNonEmpty(a.Road, a.Footway, a.Path),
		HouseNumber:  a.HouseNumber,
		PostalCode:   a.Postcode,
		Municipality: firstNonEmpty(a.City, a.Town, a.Municipality),
		Province:     firstNonEmpty(a.County, a.StateDistrict),
		Region:       a.State,
	}
	if addr.Province == "" {
		addr.Province = "Sevilla"
	}
	if addr.Street != "" {
		addr.Formatted = addr.Street
		if addr.HouseNumber != "" {
			addr.Formatted = addr.Street + " " + addr.HouseNumber
		}
	}
	return addr
}

// ReverseGeocode resolves coordinates to a street address at block-level
// zoom. Used for ad hoc lookups against arbitrary user coordinates.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (models.Address, error) {
	return c.reverseGeocode(ctx, lat, lon, 18, "")
}

// ReverseGeocodePrecise resolves coordinates at maximum zoom restricted to
// the address layer. Used by the address sync, where the coordinates are
// exact stop positions and house numbers matter.
func (c *Client) ReverseGeocodePrecise(ctx context.Context, lat, lon float64) (models.Address, error) {
	return c.reverseGeocode(ctx, lat, lon, 21, "address")
}

func (c *Client) reverseGeocode(ctx context.Context, lat, lon float64, zoom int, layer string) (models.Address, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("format", "json")
	params.Set("addressdetails", "1")
	params.Set("zoom", strconv.Itoa(zoom))
	if layer != "" {
		params.Set("layer", layer)
	}
	reqURL := fmt.Sprintf("%s/reverse?%s", c.geocodeBase, params.Encode())

	// Nominatim's usage policy requires an identifying User-Agent, not the
	// browser one used against the operator's API.
	body, status, err := c.get(ctx, reqURL, map[string]string{"User-Agent": c.userAgent})
	if err != nil {
		return models.Address{}, err
	}
	if status != 200 {
		return models.Address{}, &StatusError{URL: reqURL, StatusCode: status}
	}

	var payload struct {
		Address nominatimAddress `json:"address"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Address{}, fmt.Errorf("decode geocode response: %w", err)
	}
	return payload.Address.toAddress(), nil
}
