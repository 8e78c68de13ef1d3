package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusbus/shuttle_core/internal/schedule"
)

func firstRide(t *testing.T, res *searchResult) rideHop {
	t.Helper()
	for _, h := range res.hops {
		if ride, ok := h.(rideHop); ok {
			return ride
		}
	}
	t.Fatal("result has no ride")
	return rideHop{}
}

func TestSearchBoardsTheCloserEquivalentStop(t *testing.T) {
	net := campusNetwork(t)
	oracle := schedule.NewOracle(net)

	// Both spine stops reach CP on the same trip; the shorter first walk
	// decides the boarding.
	res, err := runSearch(context.Background(), net, oracle, searchParams{
		origin:     at(800, 50),
		dest:       at(0, 0),
		destStopID: "CP",
		day:        "monday",
		queryMins:  450,
	})
	require.NoError(t, err)

	ride := firstRide(t, res)
	assert.Equal(t, "KTC", ride.boardStopID())
	assert.Equal(t, "CP", ride.alightStopID())
	assert.InDelta(t, 470, ride.departMins, 0.01)
	assert.InDelta(t, 474, res.arrivalMins, 0.01)
	assert.Zero(t, res.finalWalkM)
}

func TestSearchStepsOverBlackedOutDeparture(t *testing.T) {
	net := campusNetwork(t)
	oracle := schedule.NewOracle(net)

	// The 12:38 trip boards before the window opens but cannot let anyone
	// off; the search must offer the 14:10 trip instead of failing.
	res, err := runSearch(context.Background(), net, oracle, searchParams{
		origin:     at(1200, 0),
		dest:       at(0, 0),
		destStopID: "CP",
		day:        "friday",
		queryMins:  750,
	})
	require.NoError(t, err)

	ride := firstRide(t, res)
	assert.InDelta(t, 850, ride.departMins, 0.01)
	assert.InDelta(t, 859, ride.arriveMins, 0.01)
}

func TestSearchHorizonBoundsTheLookahead(t *testing.T) {
	net := campusNetwork(t)
	oracle := schedule.NewOracle(net)

	// At 05:00 the first spine trip is 165 minutes out, past the two-hour
	// horizon, and the destination is beyond walking range.
	_, err := runSearch(context.Background(), net, oracle, searchParams{
		origin:     at(1200, 0),
		dest:       at(0, 0),
		destStopID: "CP",
		day:        "monday",
		queryMins:  300,
	})
	assert.ErrorIs(t, err, errNoRoute)
}

func TestSearchNoBoardableStops(t *testing.T) {
	net := campusNetwork(t)
	oracle := schedule.NewOracle(net)

	_, err := runSearch(context.Background(), net, oracle, searchParams{
		origin:     at(9000, 9000),
		dest:       at(0, 0),
		destStopID: "CP",
		day:        "monday",
		queryMins:  450,
	})
	assert.ErrorIs(t, err, errNoBoardableStops)
}

func TestSearchRidelessSuccess(t *testing.T) {
	net := campusNetwork(t)
	oracle := schedule.NewOracle(net)

	// No bus is due, but the origin stop itself is within range of the
	// destination, so the best journey walks straight through.
	res, err := runSearch(context.Background(), net, oracle, searchParams{
		origin:    at(30, 10),
		dest:      at(250, 60),
		day:       "monday",
		queryMins: 600,
	})
	require.NoError(t, err)
	assert.False(t, hasRides(res.hops))
	assert.Equal(t, "CP", res.lastStop.ID)
}

func TestSearchCancelledContext(t *testing.T) {
	net := campusNetwork(t)
	oracle := schedule.NewOracle(net)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runSearch(ctx, net, oracle, searchParams{
		origin:     at(1200, 0),
		dest:       at(0, 0),
		destStopID: "CP",
		day:        "monday",
		queryMins:  450,
	})
	assert.ErrorIs(t, err, context.Canceled)
}
