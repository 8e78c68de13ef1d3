// Package geo provides the great-circle primitives the planner measures
// everything with. Distances are in meters, coordinates in degrees.
package geo

import "math"

const earthRadiusM = 6371000

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Haversine returns the great-circle distance in meters between two
// coordinates.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// Distance returns the great-circle distance in meters between two points.
func Distance(a, b Point) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// PathLength sums the segment distances of a polyline given as GeoJSON
// coordinate pairs, ordered lon before lat.
func PathLength(coords [][]float64) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		prev, cur := coords[i-1], coords[i]
		if len(prev) < 2 || len(cur) < 2 {
			continue
		}
		total += Haversine(prev[1], prev[0], cur[1], cur[0])
	}
	return total
}
