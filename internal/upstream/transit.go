package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sevibus.transitlab.org/internal/models"
)

// The operator's API serves a public web frontend and rejects obviously
// non-browser traffic, so requests carry a browser User-Agent and Referer.
func (c *Client) transitHeaders() map[string]string {
	return map[string]string{
		"User-Agent": "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)",
		"Referer":    c.transitBase + "/",
	}
}

// datePath formats the current time the way the operator's URL scheme wants
// it: DD-MM-YYYYTHH:MM:SS with the colons percent-encoded.
func (c *Client) datePath() string {
	stamp := c.clock.Now().Format("02-01-2006T15:04:05")
	return strings.ReplaceAll(stamp, ":", "%3A")
}

// LineSummary is one line from the operator's line listing.
type LineSummary struct {
	ID    int
	Label string
	Name  string
	Color string
}

// LineNode is one stop on a line route, with E6 coordinates already converted
// to degrees.
type LineNode struct {
	Code string
	Name string
	Lat  float64
	Lon  float64
}

// ArrivalEstimate is one upcoming vehicle of a line at a stop.
type ArrivalEstimate struct {
	Seconds        int
	Destination    string
	DistanceMeters int
}

// ArrivingLine groups the estimates of one line at a stop.
type ArrivingLine struct {
	Label     string
	Color     string
	Estimates []ArrivalEstimate
}

// StopTimes is the raw arrival board for a stop, before direction resolution
// and caching.
type StopTimes struct {
	StopName string
	Lat      *float64
	Lon      *float64
	Lines    []ArrivingLine
}

// Wire types. The operator wraps everything in a "result" envelope and nests
// display strings under descripcion.texto.
type textWrapper struct {
	Texto string `json:"texto"`
}

type positionE6 struct {
	LatitudE6  int64 `json:"latitudE6"`
	LongitudE6 int64 `json:"longitudE6"`
}

type wireLine struct {
	Linea       int         `json:"linea"`
	LabelLinea  string      `json:"labelLinea"`
	Descripcion textWrapper `json:"descripcion"`
	Color       string      `json:"color"`
}

type wireNode struct {
	Codigo      json.Number `json:"codigo"`
	Descripcion textWrapper `json:"descripcion"`
	Posicion    *positionE6 `json:"posicion"`
}

type wireEstimate struct {
	Segundos  int         `json:"segundos"`
	Destino   textWrapper `json:"destino"`
	Distancia int         `json:"distancia"`
}

type wireArrivingLine struct {
	LabelLinea   string         `json:"labelLinea"`
	Color        string         `json:"color"`
	Estimaciones []wireEstimate `json:"estimaciones"`
}

func fromE6(v int64) float64 {
	return float64(v) / 1e6
}

// FetchLines retrieves the full line listing. Entries without a line id or
// label are dropped.
func (c *Client) FetchLines(ctx context.Context) ([]LineSummary, error) {
	url := fmt.Sprintf("%s/API/infotus-ui/lineas/%s", c.transitBase, c.datePath())
	body, err := c.getWithRetry(ctx, url, c.transitHeaders())
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Result struct {
			LineasDisponibles []wireLine `json:"lineasDisponibles"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode line listing: %w", err)
	}

	lines := make([]LineSummary, 0, len(envelope.Result.LineasDisponibles))
	for _, l := range envelope.Result.LineasDisponibles {
		if l.Linea == 0 || l.LabelLinea == "" {
			continue
		}
		lines = append(lines, LineSummary{
			ID:    l.Linea,
			Label: l.LabelLinea,
			Name:  l.Descripcion.Texto,
			Color: l.Color,
		})
	}
	return lines, nil
}

// FetchLineNodes retrieves the ordered stops of a line in one direction.
// Nodes without a code are dropped; nodes without a position come back with
// zero coordinates and are filtered by callers that need geometry.
func (c *Client) FetchLineNodes(ctx context.Context, lineID int, direction models.Direction) ([]LineNode, error) {
	url := fmt.Sprintf("%s/API/infotus-ui/nodosLinea/%d/%d/%s",
		c.transitBase, lineID, int(direction), c.datePath())
	body, err := c.getWithRetry(ctx, url, c.transitHeaders())
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Result []wireNode `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode nodes for line %d: %w", lineID, err)
	}

	nodes := make([]LineNode, 0, len(envelope.Result))
	for _, n := range envelope.Result {
		code := n.Codigo.String()
		if code == "" {
			continue
		}
		node := LineNode{Code: code, Name: n.Descripcion.Texto}
		if n.Posicion != nil {
			node.Lat = fromE6(n.Posicion.LatitudE6)
			node.Lon = fromE6(n.Posicion.LongitudE6)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// FetchStopTimes retrieves the live arrival board for a stop.
func (c *Client) FetchStopTimes(ctx context.Context, stopCode string) (*StopTimes, error) {
	url := fmt.Sprintf("%s/API/infotus-ui/tiempos/%s", c.transitBase, stopCode)
	body, err := c.getWithRetry(ctx, url, c.transitHeaders())
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Result struct {
			Descripcion        textWrapper        `json:"descripcion"`
			Posicion           *positionE6        `json:"posicion"`
			LineasCoincidentes []wireArrivingLine `json:"lineasCoincidentes"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode times for stop %s: %w", stopCode, err)
	}

	times := &StopTimes{StopName: envelope.Result.Descripcion.Texto}
	if p := envelope.Result.Posicion; p != nil {
		lat, lon := fromE6(p.LatitudE6), fromE6(p.LongitudE6)
		times.Lat, times.Lon = &lat, &lon
	}
	for _, l := range envelope.Result.LineasCoincidentes {
		line := ArrivingLine{Label: l.LabelLinea, Color: l.Color}
		for _, e := range l.Estimaciones {
			line.Estimates = append(line.Estimates, ArrivalEstimate{
				Seconds:        e.Segundos,
				Destination:    e.Destino.Texto,
				DistanceMeters: e.Distancia,
			})
		}
		times.Lines = append(times.Lines, line)
	}
	return times, nil
}
