package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/R1cK-ChaN/doc-parser/internal/logger"
	"github.com/R1cK-ChaN/doc-parser/internal/storage"
)

var reExtractCmd = &cobra.Command{
	Use:   "re-extract [sha-prefix]",
	Short: "Rerun entity extraction for a stored document",
	Long: `Rerun entity extraction using the stored markdown of a previously
parsed document, without parsing it again.

The document is addressed by a prefix (at least 4 characters) of its
SHA-256 hash, as printed by parse-local or the status command. The
provider is chosen by EXTRACTION_PROVIDER (textin or llm).`,
	Example: `  # Re-extract using the first characters of the document hash
  docparser re-extract ab12f00d

  # Switch provider via environment
  EXTRACTION_PROVIDER=llm docparser re-extract ab12f00d`,
	Args: cobra.ExactArgs(1),
	RunE: runReExtract,
}

func init() {
	rootCmd.AddCommand(reExtractCmd)
}

func runReExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("re-extract")

	shaPrefix := args[0]

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

	log.Info().Str("sha_prefix", shaPrefix).Msg("Re-running extraction")

	result, err := p.ReExtract(ctx, shaPrefix)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("no stored document matches prefix %q", shaPrefix)
	case errors.Is(err, storage.ErrAmbiguousPrefix):
		return fmt.Errorf("prefix %q matches multiple documents, use more characters", shaPrefix)
	case err != nil:
		return fmt.Errorf("re-extracting %s: %w", shaPrefix, err)
	}

	fmt.Printf("%s (run %d): extraction updated\n", result.SHA256[:12], result.RunID)
	if result.Meta.Title != "" {
		fmt.Printf("  title:  %s\n", result.Meta.Title)
	}
	if result.Meta.Broker != "" {
		fmt.Printf("  broker: %s\n", result.Meta.Broker)
	}
	if result.Meta.PublishDate != "" {
		fmt.Printf("  date:   %s\n", result.Meta.PublishDate)
	}
	return nil
}
