package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandy-sachin7/contextd/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the running daemon's indexing status",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "contextd status: failed to load configuration:", err)
		os.Exit(exitConfigError)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	url := fmt.Sprintf("http://%s:%d/status", cfg.Server.Host, cfg.Server.Port)
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintln(os.Stderr, "contextd status: daemon unreachable:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintln(os.Stderr, "contextd status: malformed response:", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
