package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/R1cK-ChaN/doc-parser/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored parsing results",
	Long: `List every stored run under DATA_DIR/parsed with its document hash,
run number, status and extracted metadata.`,
	Example: `  docparser status`,
	Args:    cobra.NoArgs,
	RunE:    runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	flat := storage.NewStore(cfg.ParsedPath())
	results, err := flat.ListResults()
	if err != nil {
		return fmt.Errorf("listing results: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No stored results.")
		return nil
	}

	byStatus := make(map[string]int)
	for _, r := range results {
		byStatus[r.Status]++
	}

	fmt.Printf("%d stored runs (%d completed, %d failed)\n\n", len(results), byStatus["completed"], byStatus["failed"])
	fmt.Printf("  %-12s  %-4s  %-10s  %-12s  %s\n", "SHA256", "RUN", "STATUS", "BROKER", "TITLE")
	for _, r := range results {
		title := r.Meta.Title
		if title == "" {
			title = "-"
		}
		broker := r.Meta.Broker
		if broker == "" {
			broker = "-"
		}
		fmt.Printf("  %-12s  %-4d  %-10s  %-12s  %s\n", r.SHA256[:12], r.RunID, r.Status, broker, title)
	}
	return nil
}
