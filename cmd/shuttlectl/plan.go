package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/campusbus/shuttle_core/internal/config"
	"github.com/campusbus/shuttle_core/internal/dataset"
	"github.com/campusbus/shuttle_core/internal/geo"
	"github.com/campusbus/shuttle_core/internal/graph"
	"github.com/campusbus/shuttle_core/internal/locate"
	"github.com/campusbus/shuttle_core/internal/routing"
	"github.com/campusbus/shuttle_core/internal/walking"
)

var (
	planFrom     string
	planTo       string
	planDay      string
	planTime     string
	planForceBus bool
	planAnytime  bool
	planWalkURL  string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan a trip and print the itinerary as JSON",
	Long: `Plan a trip against the local dataset and print the itinerary to stdout.

Origins and destinations take a stop ID, a location name, or "lat,lon"
coordinates. Day and time default to now.`,
	Args: cobra.NoArgs,
	RunE: plan,
}

func init() {
	planCmd.Flags().StringVar(&planFrom, "from", "", "Origin stop ID, location name, or lat,lon")
	planCmd.Flags().StringVar(&planTo, "to", "", "Destination stop ID, location name, or lat,lon")
	planCmd.Flags().StringVar(&planDay, "day", "", "Service day, e.g. monday (default: today)")
	planCmd.Flags().StringVar(&planTime, "time", "", "Departure time as HH:MM (default: now)")
	planCmd.Flags().BoolVar(&planForceBus, "force-bus", false, "Prefer a bus itinerary even when walking is shorter")
	planCmd.Flags().BoolVar(&planAnytime, "anytime", false, "Ignore the clock and use each trip's first departure")
	planCmd.Flags().StringVar(&planWalkURL, "walk-router", envOr("SHUTTLE_WALK_ROUTER_URL", ""),
		"OSRM base URL for walking legs (empty: straight-line estimates)")
	planCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(planCmd)
}

func plan(cmd *cobra.Command, args []string) error {
	net, _, err := loadNetwork(dataDir)
	if err != nil {
		return err
	}

	holder := graph.NewHolder(net)
	var walker walking.Router = walking.Disabled{}
	if planWalkURL != "" {
		walker = walking.NewClient(planWalkURL)
	}
	locator := locate.New(holder, walker)
	hubs := config.SplitList(os.Getenv("SHUTTLE_TRANSFER_HUBS"))
	planner := routing.NewPlanner(holder, locator, walker, hubs)

	req := routing.Request{ForceBus: planForceBus, Anytime: planAnytime}
	if pt, ok := parsePoint(planFrom); ok {
		req.OriginPoint = pt
	} else {
		req.OriginStopID = planFrom
	}
	if pt, ok := parsePoint(planTo); ok {
		req.DestPoint = pt
	} else {
		req.Destination = planTo
	}

	req.Day, req.QueryMins, err = resolveDayTime(planDay, planTime)
	if err != nil {
		return err
	}

	itin, err := planner.Plan(context.Background(), req)
	if err != nil {
		if perr, ok := routing.AsPlanError(err); ok {
			return fmt.Errorf("%s: %s", perr.Kind, perr.Message)
		}
		return err
	}

	out, err := json.MarshalIndent(itin, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// parsePoint accepts "lat,lon" and rejects anything else, including
// coordinates outside the valid range.
func parsePoint(s string) (*geo.Point, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, false
	}
	return &geo.Point{Lat: lat, Lon: lon}, true
}

func resolveDayTime(dayStr, timeStr string) (string, float64, error) {
	now := time.Now()

	day := dayStr
	if day == "" {
		day = strings.ToLower(now.Weekday().String())
	} else {
		var err error
		day, err = dataset.CanonicalDay(day)
		if err != nil {
			return "", 0, err
		}
	}

	if timeStr == "" {
		return day, float64(now.Hour()*60 + now.Minute()), nil
	}
	mins, err := dataset.ParseClock(timeStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid time format (use HH:MM): %v", err)
	}
	return day, float64(mins), nil
}
