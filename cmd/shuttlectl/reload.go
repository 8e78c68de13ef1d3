package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	reloadServer string
	reloadToken  string
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Tell a running server to reload its dataset",
	Long: `Reload posts to the server's admin endpoint, which re-reads the dataset
from disk and swaps the network in place. Requires the server's admin token.`,
	Args: cobra.NoArgs,
	RunE: reload,
}

func init() {
	reloadCmd.Flags().StringVarP(&reloadServer, "server", "s",
		envOr("SHUTTLE_SERVER_URL", "http://localhost:3000"), "Base URL of the running API server")
	reloadCmd.Flags().StringVar(&reloadToken, "token",
		envOr("SHUTTLE_ADMIN_TOKEN", ""), "Admin bearer token")
	rootCmd.AddCommand(reloadCmd)
}

func reload(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	url := strings.TrimRight(reloadServer, "/") + "/admin/reload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	if reloadToken != "" {
		req.Header.Set("Authorization", "Bearer "+reloadToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var result struct {
		Status   string   `json:"status"`
		Error    string   `json:"error"`
		Message  string   `json:"message"`
		Stops    int      `json:"stops"`
		Routes   int      `json:"routes"`
		Stamp    string   `json:"stamp"`
		Problems []string `json:"problems"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("unexpected response (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if len(result.Problems) > 0 {
		fmt.Printf("⚠ %d problem(s):\n", len(result.Problems))
		for _, p := range result.Problems {
			fmt.Printf("  - %s\n", p)
		}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s (HTTP %d)", result.Error, result.Message, resp.StatusCode)
	}

	fmt.Printf("✓ Reloaded: %d stops, %d routes, stamp %s\n", result.Stops, result.Routes, result.Stamp)
	return nil
}
