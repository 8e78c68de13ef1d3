package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateStrict bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the dataset, report problems, and print network stats",
	Args:  cobra.NoArgs,
	RunE:  validate,
}

func init() {
	validateCmd.Flags().BoolVar(
		&validateStrict, "strict", false,
		"Exit non-zero when the dataset has any validation problem",
	)
	rootCmd.AddCommand(validateCmd)
}

func validate(cmd *cobra.Command, args []string) error {
	net, problems, err := loadNetwork(dataDir)
	if len(problems) > 0 {
		fmt.Printf("⚠ %d problem(s):\n", len(problems))
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
	}
	if err != nil {
		return err
	}

	patterns, trips := 0, 0
	for _, route := range net.Routes() {
		for _, ref := range net.PatternsOf(route.Name) {
			patterns++
			trips += len(ref.Times())
		}
	}

	fmt.Printf("✓ Network built: %d stops, %d locations, %d routes, %d patterns, %d trips\n",
		len(net.Stops()), len(net.Locations()), len(net.Routes()), patterns, trips)
	fmt.Printf("  stamp %s\n", net.Stamp())

	if validateStrict && len(problems) > 0 {
		return fmt.Errorf("dataset has %d validation problem(s)", len(problems))
	}
	return nil
}
