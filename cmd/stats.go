package cmd

import (
	"encoding/json"
	"fmt"

	"dhashfinder/database"

	"github.com/spf13/cobra"
)

var statsJSON bool

// statsCmd shows what a database holds
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fingerprint database statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output as JSON")
}

// statsOutput is the JSON output of the stats command
type statsOutput struct {
	Database      string `json:"database"`
	SchemaVersion int    `json:"schema_version"`
	HashSize      int    `json:"hash_size"`
	Resampler     string `json:"resampler"`
	CreatedAt     string `json:"created_at"`
	Fingerprints  int    `json:"fingerprints"`
	Images        int    `json:"images"`
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := database.GetScanStats(cmd.Context(), settings.Database)
	if err != nil {
		return err
	}

	output := statsOutput{
		Database:      settings.Database,
		SchemaVersion: stats.SchemaVersion,
		HashSize:      stats.HashSize,
		Resampler:     stats.Resampler,
		CreatedAt:     stats.CreatedAt,
		Fingerprints:  stats.UniqueHashes,
		Images:        stats.TotalImages,
	}

	out := cmd.OutOrStdout()
	if statsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	}

	fmt.Fprintf(out, "Database     : %s\n", output.Database)
	fmt.Fprintf(out, "Created      : %s\n", output.CreatedAt)
	fmt.Fprintf(out, "Hash size    : %d\n", output.HashSize)
	fmt.Fprintf(out, "Resampler    : %s\n", output.Resampler)
	fmt.Fprintf(out, "Fingerprints : %d\n", output.Fingerprints)
	fmt.Fprintf(out, "Images       : %d\n", output.Images)
	return nil
}
