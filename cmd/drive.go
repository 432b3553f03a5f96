package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/R1cK-ChaN/doc-parser/internal/config"
	"github.com/R1cK-ChaN/doc-parser/internal/drive"
	"github.com/R1cK-ChaN/doc-parser/internal/logger"
	"github.com/R1cK-ChaN/doc-parser/internal/pipeline"
)

var parseFileCmd = &cobra.Command{
	Use:   "parse-file [file-id]",
	Short: "Parse a single Google Drive file",
	Long: `Download a Google Drive file and run the full parsing pipeline on it.

The file is downloaded to DATA_DIR/downloads and then processed exactly
like a local file.

Required environment variables:
  TEXTIN_APP_ID      - TextIn application ID
  TEXTIN_SECRET_CODE - TextIn secret code
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string`,
	Example: `  docparser parse-file 1AbCdEfGhIjKlMnOpQrStUvWxYz

  docparser parse-file 1AbCdEfGhIjKlMnOpQrStUvWxYz --force`,
	Args: cobra.ExactArgs(1),
	RunE: runParseFile,
}

var parseFolderCmd = &cobra.Command{
	Use:   "parse-folder [folder-id]",
	Short: "Parse every supported file in a Google Drive folder",
	Long: `List the supported documents in a Google Drive folder and run the
full parsing pipeline on each of them.

At most TEXTIN_MAX_CONCURRENT files are processed at once. A file that
fails is logged and skipped; the rest of the batch continues.`,
	Example: `  docparser parse-folder 1FoLdErIdAbCdEfGh

  docparser parse-folder 1FoLdErIdAbCdEfGh --force`,
	Args: cobra.ExactArgs(1),
	RunE: runParseFolder,
}

var listFilesCmd = &cobra.Command{
	Use:   "list-files [folder-id]",
	Short: "List supported documents in a Google Drive folder",
	Example: `  docparser list-files 1FoLdErIdAbCdEfGh`,
	Args:    cobra.ExactArgs(1),
	RunE:    runListFiles,
}

func init() {
	rootCmd.AddCommand(parseFileCmd)
	rootCmd.AddCommand(parseFolderCmd)
	rootCmd.AddCommand(listFilesCmd)

	parseFileCmd.Flags().Bool("force", false, "Reprocess even when stored results exist")
	parseFileCmd.Flags().String("parse-mode", "", "Override parse mode (auto or scan)")
	parseFolderCmd.Flags().Bool("force", false, "Reprocess even when stored results exist")
	parseFolderCmd.Flags().String("parse-mode", "", "Override parse mode (auto or scan)")
}

func newDriveClient(ctx context.Context, cfg *config.Config) (*drive.Client, error) {
	return drive.NewClient(ctx, cfg.GoogleCredentialsFile, cfg.GoogleCredentialsJSON)
}

func runParseFile(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("parse-file")

	force, _ := cmd.Flags().GetBool("force")
	parseMode, _ := cmd.Flags().GetString("parse-mode")
	fileID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := signalContext()
	defer cancel()

	dc, err := newDriveClient(ctx, cfg)
	if err != nil {
		return err
	}
	p.SetDriveClient(dc)

	log.Info().Str("file_id", fileID).Msg("Processing Drive file")

	result, err := p.ProcessDriveFile(ctx, fileID, pipeline.Options{Force: force, ParseMode: parseMode})
	if err != nil {
		return fmt.Errorf("processing %s: %w", fileID, err)
	}

	printFileResult(fileID, result)
	return nil
}

func runParseFolder(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("parse-folder")

	force, _ := cmd.Flags().GetBool("force")
	parseMode, _ := cmd.Flags().GetString("parse-mode")
	folderID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := signalContext()
	defer cancel()

	dc, err := newDriveClient(ctx, cfg)
	if err != nil {
		return err
	}
	p.SetDriveClient(dc)

	log.Info().Str("folder_id", folderID).Msg("Processing Drive folder")

	results, err := p.ProcessDriveFolder(ctx, folderID, pipeline.Options{Force: force, ParseMode: parseMode})
	if err != nil {
		return fmt.Errorf("processing folder %s: %w", folderID, err)
	}

	var processed, skipped, failed int
	for _, r := range results {
		switch {
		case r == nil:
			failed++
		case r.Skipped:
			skipped++
		default:
			processed++
		}
	}
	fmt.Printf("Folder %s: %d processed, %d skipped, %d failed\n", folderID, processed, skipped, failed)
	return nil
}

func runListFiles(cmd *cobra.Command, args []string) error {
	folderID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	dc, err := newDriveClient(ctx, cfg)
	if err != nil {
		return err
	}

	files, err := dc.ListFiles(ctx, folderID)
	if err != nil {
		return fmt.Errorf("listing folder %s: %w", folderID, err)
	}

	if len(files) == 0 {
		fmt.Println("No supported files found.")
		return nil
	}

	fmt.Printf("%d files in folder %s:\n\n", len(files), folderID)
	for _, f := range files {
		fmt.Printf("  %-44s  %-9s  %s  (%s)\n", f.ID, humanSize(f.Size), f.CreatedTime.Format("2006-01-02"), f.Name)
	}
	return nil
}

func humanSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
