// Package walking resolves pedestrian paths through an external OSRM
// instance running the foot profile. Every caller must be prepared for the
// router to be absent: errors degrade to straight-line estimates upstream.
package walking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/campusbus/shuttle_core/internal/geo"
	"github.com/campusbus/shuttle_core/internal/models"
)

// ErrUnavailable reports that no walking router is reachable. Callers fall
// back to great-circle distances.
var ErrUnavailable = errors.New("walking router unavailable")

// Directions is a resolved walking path between two points.
type Directions struct {
	DistanceM    float64
	DurationMins float64
	// Geometry is a GeoJSON coordinate list, longitude before latitude.
	Geometry [][]float64
	Steps    []models.TurnInstruction
}

// Router produces walking paths and distance matrices.
type Router interface {
	Directions(ctx context.Context, from, to geo.Point) (*Directions, error)
	Matrix(ctx context.Context, from geo.Point, to []geo.Point) ([]float64, error)
}

// Client talks to an OSRM server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the OSRM instance at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type osrmManeuver struct {
	Type     string `json:"type"`
	Modifier string `json:"modifier"`
}

type osrmStep struct {
	Name     string       `json:"name"`
	Distance float64      `json:"distance"`
	Maneuver osrmManeuver `json:"maneuver"`
}

type osrmLeg struct {
	Steps []osrmStep `json:"steps"`
}

type osrmGeometry struct {
	Coordinates [][]float64 `json:"coordinates"`
}

type osrmRoute struct {
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Geometry osrmGeometry `json:"geometry"`
	Legs     []osrmLeg    `json:"legs"`
}

type osrmRouteResponse struct {
	Code   string      `json:"code"`
	Routes []osrmRoute `json:"routes"`
}

type osrmTableResponse struct {
	Code      string      `json:"code"`
	Distances [][]float64 `json:"distances"`
}

// Directions fetches a turn-by-turn walking path between two points.
func (c *Client) Directions(ctx context.Context, from, to geo.Point) (*Directions, error) {
	url := fmt.Sprintf("%s/route/v1/foot/%s;%s?overview=full&geometries=geojson&steps=true",
		c.baseURL, formatCoord(from), formatCoord(to))

	var body osrmRouteResponse
	if err := c.get(ctx, url, &body); err != nil {
		return nil, err
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return nil, fmt.Errorf("osrm route failed: code %q", body.Code)
	}

	route := body.Routes[0]
	out := &Directions{
		DistanceM:    route.Distance,
		DurationMins: route.Duration / 60,
		Geometry:     route.Geometry.Coordinates,
	}
	for _, leg := range route.Legs {
		for _, step := range leg.Steps {
			out.Steps = append(out.Steps, models.TurnInstruction{
				Text:      instructionText(step),
				DistanceM: step.Distance,
			})
		}
	}
	return out, nil
}

// Matrix returns walking distances in meters from one point to each
// destination, in destination order.
func (c *Client) Matrix(ctx context.Context, from geo.Point, to []geo.Point) ([]float64, error) {
	if len(to) == 0 {
		return nil, nil
	}
	coords := make([]string, 0, len(to)+1)
	coords = append(coords, formatCoord(from))
	for _, p := range to {
		coords = append(coords, formatCoord(p))
	}
	url := fmt.Sprintf("%s/table/v1/foot/%s?sources=0&annotations=distance",
		c.baseURL, strings.Join(coords, ";"))

	var body osrmTableResponse
	if err := c.get(ctx, url, &body); err != nil {
		return nil, err
	}
	if body.Code != "Ok" || len(body.Distances) == 0 {
		return nil, fmt.Errorf("osrm table failed: code %q", body.Code)
	}
	row := body.Distances[0]
	if len(row) != len(to)+1 {
		return nil, fmt.Errorf("osrm table returned %d distances, want %d", len(row), len(to)+1)
	}
	// Index 0 is the source to itself.
	return row[1:], nil
}

func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding osrm response: %w", err)
	}
	return nil
}

func formatCoord(p geo.Point) string {
	return strconv.FormatFloat(p.Lon, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64)
}

func instructionText(s osrmStep) string {
	name := s.Name
	switch s.Maneuver.Type {
	case "depart":
		if name != "" {
			return "Head along " + name
		}
		return "Start walking"
	case "arrive":
		return "Arrive at your destination"
	case "turn", "end of road", "fork", "continue":
		text := "Continue"
		if s.Maneuver.Modifier != "" {
			text = "Turn " + s.Maneuver.Modifier
			if s.Maneuver.Modifier == "straight" {
				text = "Continue straight"
			}
		}
		if name != "" {
			text += " onto " + name
		}
		return text
	default:
		if name != "" {
			return "Continue on " + name
		}
		return "Continue"
	}
}

// Disabled is the no-router fallback; every call reports ErrUnavailable.
type Disabled struct{}

// Directions always fails with ErrUnavailable.
func (Disabled) Directions(ctx context.Context, from, to geo.Point) (*Directions, error) {
	return nil, ErrUnavailable
}

// Matrix always fails with ErrUnavailable.
func (Disabled) Matrix(ctx context.Context, from geo.Point, to []geo.Point) ([]float64, error) {
	return nil, ErrUnavailable
}
