// Package models defines the payload types exposed at the API boundary and
// serialized into the cache tables. Cache rows store these as JSON bytes;
// nothing outside this package deals in untyped maps.
package models

import "strings"

// Direction is a travel direction along a line. The upstream API encodes the
// two directions as 1 and 2; this is unrelated to compass bearing.
type Direction int

const (
	DirectionOutbound Direction = 1
	DirectionInbound  Direction = 2
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == DirectionOutbound || d == DirectionInbound
}

// Address is a reverse-geocoded street address for a coordinate pair.
type Address struct {
	Street       string `json:"street"`
	HouseNumber  string `json:"houseNumber"`
	PostalCode   string `json:"postalCode"`
	Municipality string `json:"municipality"`
	Province     string `json:"province"`
	Region       string `json:"region"`
	Formatted    string `json:"formatted"`
}

// HasStreet reports whether the address resolved to a usable street.
func (a Address) HasStreet() bool {
	return strings.TrimSpace(a.Street) != ""
}

// FormatFull builds the human-readable "street number" form.
func (a Address) FormatFull() string {
	if a.Street == "" {
		return ""
	}
	if a.HouseNumber == "" {
		return a.Street
	}
	return a.Street + " " + a.HouseNumber
}

// Arrival is a single live arrival estimate at a stop. Minutes may be
// negative when the vehicle is already at the stop.
type Arrival struct {
	Line           string     `json:"line"`
	Color          string     `json:"color"`
	Minutes        int        `json:"minutes"`
	Destination    string     `json:"destination"`
	DistanceMeters int        `json:"distanceMeters"`
	Direction      *Direction `json:"direction"`
}

// ArrivalsSnapshot is the cached per-stop arrivals payload: the soonest
// estimates plus the stop identity as reported by the upstream API.
type ArrivalsSnapshot struct {
	StopCode string    `json:"stopCode"`
	StopName string    `json:"stopName"`
	Lat      *float64  `json:"lat"`
	Lon      *float64  `json:"lon"`
	Arrivals []Arrival `json:"arrivals"`
}

// StopResponse is the API view of a stored stop.
type StopResponse struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Address   Address `json:"address"`
	UpdatedAt string  `json:"updatedAt,omitempty"`
}

// NearbyStop is a stop annotated with proximity data. Bearing fields are
// only present when the query supplied a bearing.
type NearbyStop struct {
	StopResponse
	DistanceMeters int  `json:"distanceMeters"`
	Bearing        *int `json:"bearing,omitempty"`
	BearingDiff    *int `json:"bearingDiff,omitempty"`
}

// NearbyStopWithArrivals extends NearbyStop for the composite endpoint.
type NearbyStopWithArrivals struct {
	NearbyStop
	Arrivals []Arrival `json:"arrivals"`
	MapURL   string    `json:"mapUrl,omitempty"`
}

// LineResponse is the API view of a stored line.
type LineResponse struct {
	Number    string `json:"number"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// LineStop is a stop annotated with its position along a line.
type LineStop struct {
	StopResponse
	Direction Direction `json:"direction"`
	Ordinal   int       `json:"ordinal"`
}

// NearbyResponse is the envelope for the composite nearby-with-arrivals
// endpoint.
type NearbyResponse struct {
	Location LocationEcho             `json:"location"`
	Stops    []NearbyStopWithArrivals `json:"stops"`
}

// LocationEcho repeats the query location so clients can correlate
// concurrent requests.
type LocationEcho struct {
	Lat     float64  `json:"lat"`
	Lon     float64  `json:"lon"`
	Bearing *float64 `json:"bearing,omitempty"`
}

// SyncStats aggregates the outcome of an address sync run.
type SyncStats struct {
	Total  int `json:"total"`
	OK     int `json:"ok"`
	Errors int `json:"errors"`
}
