package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/R1cK-ChaN/doc-parser/internal/logger"
	"github.com/R1cK-ChaN/doc-parser/internal/pipeline"
)

var parseLocalCmd = &cobra.Command{
	Use:   "parse-local [file]",
	Short: "Parse a local document file",
	Long: `Parse a local PDF or image file with the TextIn ParseX API.

The parsed Markdown, page details, element details and exported tables
are stored under DATA_DIR/parsed keyed by the file's SHA-256 hash. When
VLM_MODEL is set, chart and table regions are re-described by a vision
model. Entity extraction runs afterwards and records document metadata.

A file whose hash already has stored results is skipped unless --force
is given.

Required environment variables:
  TEXTIN_APP_ID      - TextIn application ID
  TEXTIN_SECRET_CODE - TextIn secret code`,
	Example: `  # Parse a research report
  docparser parse-local report.pdf

  # Reprocess even when results exist
  docparser parse-local report.pdf --force

  # Force scan-mode parsing for image-heavy documents
  docparser parse-local scanned.pdf --parse-mode scan`,
	Args: cobra.ExactArgs(1),
	RunE: runParseLocal,
}

func init() {
	rootCmd.AddCommand(parseLocalCmd)

	parseLocalCmd.Flags().Bool("force", false, "Reprocess even when stored results exist")
	parseLocalCmd.Flags().String("parse-mode", "", "Override parse mode (auto or scan)")
}

func runParseLocal(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("parse-local")

	force, _ := cmd.Flags().GetBool("force")
	parseMode, _ := cmd.Flags().GetString("parse-mode")
	path := args[0]

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

	log.Info().Str("file", path).Msg("Processing local file")

	result, err := p.ProcessLocal(ctx, path, pipeline.Options{Force: force, ParseMode: parseMode})
	if err != nil {
		return fmt.Errorf("processing %s: %w", path, err)
	}

	printFileResult(path, result)
	return nil
}

// printFileResult writes a short human-readable run summary to stdout.
func printFileResult(name string, result *pipeline.FileResult) {
	if result.Skipped {
		fmt.Printf("%s: already processed (sha256 %s), use --force to reprocess\n", name, result.SHA256[:12])
		return
	}
	fmt.Printf("%s: processed (sha256 %s, run %d)\n", name, result.SHA256[:12], result.RunID)
	if result.ChartCount > 0 || result.TableCount > 0 {
		fmt.Printf("  enhanced %d charts, %d tables\n", result.ChartCount, result.TableCount)
	}
	if result.Meta.Title != "" {
		fmt.Printf("  title:  %s\n", result.Meta.Title)
	}
	if result.Meta.Broker != "" {
		fmt.Printf("  broker: %s\n", result.Meta.Broker)
	}
}
