package walking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusbus/shuttle_core/internal/geo"
)

var (
	testFrom = geo.Point{Lat: 1.5584, Lon: 103.6321}
	testTo   = geo.Point{Lat: 1.5618, Lon: 103.6332}
)

func TestDirections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/route/v1/foot/")
		assert.Contains(t, r.URL.Path, "103.632100,1.558400")
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		w.Write([]byte(`{
			"code": "Ok",
			"routes": [{
				"distance": 412.5,
				"duration": 300,
				"geometry": {"coordinates": [[103.6321, 1.5584], [103.6332, 1.5618]]},
				"legs": [{"steps": [
					{"name": "Jalan Iman", "distance": 400, "maneuver": {"type": "depart"}},
					{"name": "", "distance": 12.5, "maneuver": {"type": "arrive"}}
				]}]
			}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	dirs, err := c.Directions(context.Background(), testFrom, testTo)
	require.NoError(t, err)

	assert.Equal(t, 412.5, dirs.DistanceM)
	assert.Equal(t, 5.0, dirs.DurationMins)
	assert.Len(t, dirs.Geometry, 2)
	require.Len(t, dirs.Steps, 2)
	assert.Equal(t, "Head along Jalan Iman", dirs.Steps[0].Text)
	assert.Equal(t, "Arrive at your destination", dirs.Steps[1].Text)
}

func TestDirectionsRouteNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": "NoRoute", "routes": []}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Directions(context.Background(), testFrom, testTo)
	assert.Error(t, err)
}

func TestMatrix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/table/v1/foot/")
		assert.Equal(t, "0", r.URL.Query().Get("sources"))
		assert.Equal(t, "distance", r.URL.Query().Get("annotations"))
		w.Write([]byte(`{"code": "Ok", "distances": [[0, 120.5, 310.2]]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	dists, err := c.Matrix(context.Background(), testFrom, []geo.Point{testTo, {Lat: 1.57, Lon: 103.64}})
	require.NoError(t, err)
	assert.Equal(t, []float64{120.5, 310.2}, dists)
}

func TestMatrixShapeMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": "Ok", "distances": [[0]]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Matrix(context.Background(), testFrom, []geo.Point{testTo})
	assert.Error(t, err)
}

func TestMatrixEmptyDestinations(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	dists, err := c.Matrix(context.Background(), testFrom, nil)
	assert.NoError(t, err)
	assert.Nil(t, dists)
}

func TestUnreachableRouterIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL).Directions(context.Background(), testFrom, testTo)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestDisabledRouter(t *testing.T) {
	var r Router = Disabled{}

	_, err := r.Directions(context.Background(), testFrom, testTo)
	assert.True(t, errors.Is(err, ErrUnavailable))

	_, err = r.Matrix(context.Background(), testFrom, []geo.Point{testTo})
	assert.True(t, errors.Is(err, ErrUnavailable))
}
