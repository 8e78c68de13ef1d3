package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/campusbus/shuttle_core/internal/dataset"
	"github.com/campusbus/shuttle_core/internal/graph"
)

var dataDir string

var rootCmd = &cobra.Command{
	Use:   "shuttlectl",
	Short: "Campus shuttle dataset and trip planning toolkit",
	Long: `shuttlectl works with the campus shuttle dataset offline and talks to a
running API server for operations that need one.

Offline commands (validate, plan, timetable) load the dataset from --data
and build the network in-process, so they answer exactly what the server
would answer for the same files.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&dataDir, "data", "d", envOr("SHUTTLE_DATA_DIR", "./data"),
		"Path to the dataset directory",
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadNetwork reads the dataset and builds the routable network, returning
// validation problems alongside so callers can report them.
func loadNetwork(dir string) (*graph.Network, []dataset.Problem, error) {
	bundle, err := dataset.Load(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading dataset from %s: %w", dir, err)
	}
	problems := bundle.Validate()
	net, err := graph.Build(bundle)
	if err != nil {
		return nil, problems, fmt.Errorf("building network: %w", err)
	}
	return net, problems, nil
}
