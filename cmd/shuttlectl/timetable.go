package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/campusbus/shuttle_core/internal/dataset"
	"github.com/campusbus/shuttle_core/internal/graph"
	"github.com/campusbus/shuttle_core/internal/models"
	"github.com/campusbus/shuttle_core/internal/schedule"
)

var (
	timetableOut      string
	timetableHeadsign string
)

// timetableRow is one stop of one pattern. Times holds every trip's
// departure at this stop, space-separated in trip order.
type timetableRow struct {
	Route    string `csv:"route"`
	Headsign string `csv:"headsign"`
	StopID   string `csv:"stop_id"`
	StopName string `csv:"stop_name"`
	Seq      int    `csv:"seq"`
	Days     string `csv:"days"`
	Times    string `csv:"times"`
}

var timetableCmd = &cobra.Command{
	Use:   "timetable [route]",
	Short: "Export route timetables as CSV",
	Args:  cobra.MaximumNArgs(1),
	RunE:  timetable,
}

func init() {
	timetableCmd.Flags().StringVarP(&timetableOut, "out", "o", "", "Output file (default: stdout)")
	timetableCmd.Flags().StringVar(&timetableHeadsign, "headsign", "", "Only export patterns with this headsign")
	rootCmd.AddCommand(timetableCmd)
}

func timetable(cmd *cobra.Command, args []string) error {
	net, _, err := loadNetwork(dataDir)
	if err != nil {
		return err
	}

	var routes []*models.Route
	if len(args) == 1 {
		route, ok := net.Route(args[0])
		if !ok {
			return fmt.Errorf("unknown route %q", args[0])
		}
		routes = []*models.Route{route}
	} else {
		routes = net.Routes()
	}

	oracle := schedule.NewOracle(net)
	rows := []*timetableRow{}
	for _, route := range routes {
		for _, ref := range net.PatternsOf(route.Name) {
			if timetableHeadsign != "" && !strings.EqualFold(ref.Headsign(), timetableHeadsign) {
				continue
			}
			rows = append(rows, patternRows(net, oracle, ref)...)
		}
	}
	if len(rows) == 0 {
		return fmt.Errorf("no patterns matched")
	}

	if timetableOut == "" {
		return gocsv.Marshal(&rows, os.Stdout)
	}
	f, err := os.Create(timetableOut)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := gocsv.Marshal(&rows, f); err != nil {
		return err
	}
	fmt.Printf("✓ Wrote %d rows to %s\n", len(rows), timetableOut)
	return nil
}

func patternRows(net *graph.Network, oracle *schedule.Oracle, ref *graph.TripRef) []*timetableRow {
	rows := make([]*timetableRow, 0, len(ref.Stops()))
	for idx, stopID := range ref.Stops() {
		offset := oracle.OffsetMins(ref, idx)
		times := make([]string, 0, len(ref.Times()))
		for _, start := range ref.Times() {
			times = append(times, dataset.FormatClock(start+offset))
		}
		name := stopID
		if stop, ok := net.Stop(stopID); ok {
			name = stop.Name
		}
		rows = append(rows, &timetableRow{
			Route:    ref.RouteName(),
			Headsign: ref.Headsign(),
			StopID:   stopID,
			StopName: name,
			Seq:      idx,
			Days:     strings.Join(ref.Days(), "|"),
			Times:    strings.Join(times, " "),
		})
	}
	return rows
}
