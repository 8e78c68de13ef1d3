package routing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campusbus/shuttle_core/internal/dataset"
	"github.com/campusbus/shuttle_core/internal/geo"
	"github.com/campusbus/shuttle_core/internal/graph"
	"github.com/campusbus/shuttle_core/internal/locate"
	"github.com/campusbus/shuttle_core/internal/models"
)

// The test campus lives on a metre grid anchored south-west of the real
// network, so stop spacing in the fixture reads directly in metres.
const (
	fixtureBaseLat = 1.5500
	fixtureBaseLon = 103.6300
	metersPerDeg   = 6371000 * math.Pi / 180
)

// at converts metre offsets north and east of the anchor into coordinates.
func at(northM, eastM float64) geo.Point {
	return geo.Point{
		Lat: fixtureBaseLat + northM/metersPerDeg,
		Lon: fixtureBaseLon + eastM/(metersPerDeg*math.Cos(fixtureBaseLat*math.Pi/180)),
	}
}

func fixtureStop(id, name string, northM, eastM float64) models.Stop {
	p := at(northM, eastM)
	return models.Stop{ID: id, Name: name, Lat: p.Lat, Lon: p.Lon}
}

// campusBundle is the shared planning fixture:
//
//	KDOJ ---- BHE          CP, KTC      hubs on the north-south spine
//	  |  GSX   |           KP1, KDOJ    colleges up the spine
//	 KP1 ------+           FKT          faculty 1.2 km west of CP
//	  |                    KLG_E        far north-west gate
//	 KTC
//	  |
//	  CP ---- FKT
//
// Route A runs the spine KP1 -> KTC -> CP on monday/thursday/friday. The
// loop Route C chains CP -> KDOJ and KDOJ -> CP halves on monday. The
// thursday routes G/T form the KLG_E transfer corridor via CP, and H/D the
// near/far boarding pair around Gerbang Selatan. Route N only runs into the
// friday blackout, so it never produces a rideable departure.
func campusBundle() *dataset.Bundle {
	return &dataset.Bundle{
		Stops: []models.Stop{
			fixtureStop("CP", "Central Point", 0, 0),
			fixtureStop("KTC", "Kolej Tun Chancellor", 600, 0),
			fixtureStop("KP1", "Kolej Perdana 1", 1200, 0),
			fixtureStop("FKT", "Fakulti Teknologi", 0, -1200),
			fixtureStop("KDOJ", "Kolej Datin Onn Jaafar", 2400, 0),
			fixtureStop("KLG_E", "Kolej Lestari Gate East", 2000, -1500),
			fixtureStop("GSX", "Gerbang Selatan", 1800, -100),
			fixtureStop("BHE", "Bangunan Hal Ehwal", 2300, 100),
		},
		Locations: func() []models.Location {
			arked := at(250, 60)
			tasik := at(460, 0)
			return []models.Location{
				{ID: "arked_meranti", Name: "Arked Meranti", Lat: arked.Lat, Lon: arked.Lon, NearestStop: "CP", Category: "food"},
				{ID: "tasik_u", Name: "Tasik U", Lat: tasik.Lat, Lon: tasik.Lon, Category: "landmark"},
			}
		}(),
		Routes: []models.Route{
			{
				Name: "Route A",
				Services: []models.Service{{
					ID:   "spine_weekday",
					Days: []string{"monday", "thursday", "friday"},
					Trips: []models.Trip{{
						Headsign: "To CP",
						Stops:    []string{"KP1", "KTC", "CP"},
						Times:    []int{420, 465, 630, 758, 850, 900},
					}},
				}},
			},
			{
				Name:   "Route C",
				IsLoop: true,
				Services: []models.Service{{
					ID:   "loop_monday",
					Days: []string{"monday"},
					Trips: []models.Trip{
						{
							Headsign: "To KDOJ",
							Stops:    []string{"CP", "KTC", "KDOJ"},
							Times:    []int{500},
						},
						{
							Headsign: "To Kolej",
							Stops:    []string{"KDOJ", "KP1", "CP"},
							Times:    []int{512},
						},
					},
				}},
			},
			{
				Name: "Route E",
				Services: []models.Service{{
					ID:   "express_early",
					Days: []string{"monday", "tuesday"},
					Trips: []models.Trip{{
						Headsign: "To CP",
						Stops:    []string{"KDOJ", "CP"},
						Times:    []int{360, 390},
					}},
				}},
			},
			{
				Name: "Route G",
				Services: []models.Service{{
					ID:   "gate_thursday",
					Days: []string{"thursday"},
					Trips: []models.Trip{{
						Headsign: "To CP",
						Stops:    []string{"KLG_E", "CP"},
						Times:    []int{485},
					}},
				}},
			},
			{
				Name: "Route T",
				Services: []models.Service{{
					ID:   "tech_thursday",
					Days: []string{"thursday"},
					Trips: []models.Trip{{
						Headsign: "To FKT",
						Stops:    []string{"CP", "FKT"},
						Times:    []int{505},
					}},
				}},
			},
			{
				Name: "Route H",
				Services: []models.Service{{
					ID:   "hub_shuttle",
					Days: []string{"thursday"},
					Trips: []models.Trip{{
						Headsign: "To KTC",
						Stops:    []string{"GSX", "KTC"},
						Times:    []int{605},
					}},
				}},
			},
			{
				Name: "Route D",
				Services: []models.Service{{
					ID:   "direct_thursday",
					Days: []string{"thursday"},
					Trips: []models.Trip{{
						Headsign: "To CP",
						Stops:    []string{"BHE", "CP"},
						Times:    []int{610},
					}},
				}},
			},
			{
				Name: "Route N",
				Services: []models.Service{{
					ID:   "noon_friday",
					Days: []string{"friday"},
					Trips: []models.Trip{{
						Headsign: "To Gate",
						Stops:    []string{"FKT", "KLG_E"},
						Times:    []int{765},
					}},
				}},
			},
		},
		Durations: map[string]dataset.DurationEntry{
			"Route A_To CP": {Segments: []dataset.Segment{
				{FromStopID: "KP1", ToStopID: "KTC", TotalSecs: 300},
				{FromStopID: "KTC", ToStopID: "CP", TotalSecs: 240},
			}},
			"Route C_To KDOJ": {Segments: []dataset.Segment{
				{FromStopID: "CP", ToStopID: "KTC", TotalSecs: 300},
				{FromStopID: "KTC", ToStopID: "KDOJ", TotalSecs: 300},
			}},
			"Route C_To Kolej": {Segments: []dataset.Segment{
				{FromStopID: "KDOJ", ToStopID: "KP1", TotalSecs: 240},
				{FromStopID: "KP1", ToStopID: "CP", TotalSecs: 300},
			}},
			"Route E_To CP": {Segments: []dataset.Segment{
				{FromStopID: "KDOJ", ToStopID: "CP", TotalSecs: 600},
			}},
			"Route G_To CP": {Segments: []dataset.Segment{
				{FromStopID: "KLG_E", ToStopID: "CP", TotalSecs: 720},
			}},
			"Route T_To FKT": {Segments: []dataset.Segment{
				{FromStopID: "CP", ToStopID: "FKT", TotalSecs: 600},
			}},
			"Route H_To KTC": {Segments: []dataset.Segment{
				{FromStopID: "GSX", ToStopID: "KTC", TotalSecs: 240},
			}},
			"Route D_To CP": {Segments: []dataset.Segment{
				{FromStopID: "BHE", ToStopID: "CP", TotalSecs: 480},
			}},
		},
		Geometries: map[string]dataset.Geometry{
			"Route A : To CP": {Type: "LineString", Coordinates: [][]float64{
				{at(1200, 0).Lon, at(1200, 0).Lat},
				{at(600, 0).Lon, at(600, 0).Lat},
				{at(0, 0).Lon, at(0, 0).Lat},
			}},
		},
	}
}

func campusNetwork(t *testing.T) *graph.Network {
	t.Helper()
	net, err := graph.Build(campusBundle())
	require.NoError(t, err)
	return net
}

func campusPlanner(t *testing.T) (*Planner, *graph.Network) {
	t.Helper()
	net := campusNetwork(t)
	holder := graph.NewHolder(net)
	return NewPlanner(holder, locate.New(holder, nil), nil, nil), net
}

func stepTypes(steps []models.Step) []models.StepType {
	out := make([]models.StepType, len(steps))
	for i, s := range steps {
		out[i] = s.Type
	}
	return out
}

// requireMonotonic checks that no step starts before the previous one ends.
func requireMonotonic(t *testing.T, steps []models.Step) {
	t.Helper()
	prev := math.Inf(-1)
	for i, s := range steps {
		if s.StartMins != 0 || s.Type == models.StepWalk {
			require.GreaterOrEqual(t, s.StartMins, prev, "step %d starts before step %d ends", i, i-1)
		}
		end := s.EndMins
		if end == 0 {
			end = s.StartMins
		}
		require.GreaterOrEqual(t, end, s.StartMins, "step %d ends before it starts", i)
		if end > prev {
			prev = end
		}
	}
}
