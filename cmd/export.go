package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/R1cK-ChaN/doc-parser/internal/logger"
	"github.com/R1cK-ChaN/doc-parser/internal/sheets"
	"github.com/R1cK-ChaN/doc-parser/internal/storage"
)

var exportSheetCmd = &cobra.Command{
	Use:   "export-sheet [sheet-url]",
	Short: "Export stored run summaries to a Google Sheet",
	Long: `Append every stored run summary to a Google Sheet.

The spreadsheet is addressed by its URL. The target sheet tab is created
with a header row when it does not exist yet.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string`,
	Example: `  docparser export-sheet "https://docs.google.com/spreadsheets/d/1AbCdEf/edit"

  docparser export-sheet "https://docs.google.com/spreadsheets/d/1AbCdEf/edit" --sheet Runs`,
	Args: cobra.ExactArgs(1),
	RunE: runExportSheet,
}

func init() {
	rootCmd.AddCommand(exportSheetCmd)

	exportSheetCmd.Flags().String("sheet", "Documents", "Sheet tab name to append to")
}

func runExportSheet(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("export-sheet")

	sheetName, _ := cmd.Flags().GetString("sheet")
	sheetURL := args[0]

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
		fmt.Println("No stored results to export.")
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	svc, err := sheets.NewService(ctx, sheetURL)
	if err != nil {
		return err
	}

	if err := svc.ExportResults(ctx, results, sheetName); err != nil {
		return fmt.Errorf("exporting to sheet: %w", err)
	}

	log.Info().Int("rows", len(results)).Msg("Export complete")
	fmt.Printf("Exported %d runs to sheet %q\n", len(results), sheetName)
	return nil
}
