// Package storage persists pipeline outputs on the local filesystem.
//
// Outputs are laid out under the base directory as
//
//	<sha256[:4]>/<sha256>/<run>/
//
// where run is a monotonically increasing integer per document. Each run
// directory holds output.md, detail.json, pages.json, optionally
// tables.xlsx and output_enhanced.md, and a result.json summary.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/R1cK-ChaN/doc-parser/internal/logger"
	"github.com/R1cK-ChaN/doc-parser/internal/textin"
	"github.com/R1cK-ChaN/doc-parser/internal/watermark"
	"github.com/R1cK-ChaN/doc-parser/pkg/models"
)

var (
	// ErrNotFound is returned when no stored document matches a hash prefix.
	ErrNotFound = errors.New("storage: no document matches the given hash prefix")

	// ErrAmbiguousPrefix is returned when a hash prefix matches more than
	// one stored document.
	ErrAmbiguousPrefix = errors.New("storage: hash prefix matches multiple documents")
)

// RunSummary is the result.json record written next to a run's outputs.
type RunSummary struct {
	SHA256     string            `json:"sha256"`
	RunID      int               `json:"run_id"`
	SourceFile string            `json:"source_file,omitempty"`
	Status     string            `json:"status"`
	ChartCount int               `json:"chart_count"`
	TableCount int               `json:"table_count"`
	Paths      map[string]string `json:"paths,omitempty"`
	Meta       models.ReportMeta `json:"meta,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Store writes and reads pipeline outputs under a base directory.
type Store struct {
	baseDir string
	log     zerolog.Logger
}

// NewStore creates a store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{
		baseDir: baseDir,
		log:     logger.WithComponent("storage"),
	}
}

// RelRoot returns the run directory path relative to the base directory.
func RelRoot(sha256 string, runID int) string {
	prefix := sha256
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	return filepath.Join(prefix, sha256, strconv.Itoa(runID))
}

func (s *Store) runDir(sha256 string, runID int) string {
	return filepath.Join(s.baseDir, RelRoot(sha256, runID))
}

// NextRunID returns one more than the highest existing run ID for the
// document, starting at 1.
func (s *Store) NextRunID(sha256 string) (int, error) {
	docDir := filepath.Join(s.baseDir, RelRoot(sha256, 0))
	docDir = filepath.Dir(docDir)

	entries, err := os.ReadDir(docDir)
	if errors.Is(err, os.ErrNotExist) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: reading %s: %w", docDir, err)
	}

	max := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, err := strconv.Atoi(e.Name()); err == nil && n > max {
			max = n
		}
	}
	return max + 1, nil
}

// LatestRunID returns the highest existing run ID for the document, or
// zero when none exist.
func (s *Store) LatestRunID(sha256 string) (int, error) {
	next, err := s.NextRunID(sha256)
	if err != nil {
		return 0, err
	}
	return next - 1, nil
}

// LoadMarkdown reads a run's markdown, preferring the enhanced version
// when present.
func (s *Store) LoadMarkdown(sha256 string, runID int) (string, error) {
	outDir := s.runDir(sha256, runID)
	for _, name := range []string{"output_enhanced.md", "output.md"} {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("storage: reading %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("storage: run %d of %s has no markdown: %w", runID, sha256, ErrNotFound)
}

// LoadSummary reads a run's result.json.
func (s *Store) LoadSummary(sha256 string, runID int) (*RunSummary, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir(sha256, runID), "result.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: reading result.json: %w", err)
	}
	var summary RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("storage: decoding result.json: %w", err)
	}
	return &summary, nil
}

// StoreParseResult writes the parse outputs for a run and returns the
// relative paths of the written files. The markdown is watermark-stripped
// before persisting.
func (s *Store) StoreParseResult(sha256 string, runID int, result *textin.ParseResult) (map[string]string, error) {
	relRoot := RelRoot(sha256, runID)
	outDir := s.runDir(sha256, runID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", outDir, err)
	}

	paths := map[string]string{}

	mdPath := filepath.Join(outDir, "output.md")
	if err := os.WriteFile(mdPath, []byte(watermark.Strip(result.Markdown)), 0o644); err != nil {
		return nil, fmt.Errorf("storage: writing markdown: %w", err)
	}
	paths["markdown_path"] = filepath.Join(relRoot, "output.md")

	if err := s.writeJSON(filepath.Join(outDir, "detail.json"), result.Detail); err != nil {
		return nil, err
	}
	paths["detail_json_path"] = filepath.Join(relRoot, "detail.json")

	if err := s.writeJSON(filepath.Join(outDir, "pages.json"), result.Pages); err != nil {
		return nil, err
	}
	paths["pages_json_path"] = filepath.Join(relRoot, "pages.json")

	if result.ExcelBase64 != "" {
		xlsx, err := textin.DecodeExcel(result.ExcelBase64)
		if err != nil {
			return nil, fmt.Errorf("storage: decoding excel: %w", err)
		}
		if err := os.WriteFile(filepath.Join(outDir, "tables.xlsx"), xlsx, 0o644); err != nil {
			return nil, fmt.Errorf("storage: writing excel: %w", err)
		}
		paths["excel_path"] = filepath.Join(relRoot, "tables.xlsx")
	}

	s.log.Info().
		Str("sha256", sha256).
		Int("run_id", runID).
		Int("files", len(paths)).
		Msg("Stored parse result")
	return paths, nil
}

// StoreEnhancedMarkdown writes the VLM-enhanced markdown for a run and
// returns its relative path.
func (s *Store) StoreEnhancedMarkdown(sha256 string, runID int, content string) (string, error) {
	outDir := s.runDir(sha256, runID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("storage: creating %s: %w", outDir, err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "output_enhanced.md"), []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("storage: writing enhanced markdown: %w", err)
	}
	return filepath.Join(RelRoot(sha256, runID), "output_enhanced.md"), nil
}

// StoreExtractionResult writes the full extraction response for a run and
// returns its relative path.
func (s *Store) StoreExtractionResult(sha256 string, runID int, result *textin.ExtractionResult) (string, error) {
	outDir := s.runDir(sha256, runID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("storage: creating %s: %w", outDir, err)
	}
	if err := s.writeJSON(filepath.Join(outDir, "extraction.json"), result); err != nil {
		return "", err
	}
	return filepath.Join(RelRoot(sha256, runID), "extraction.json"), nil
}

// WriteSummary writes the result.json record for a run.
func (s *Store) WriteSummary(summary RunSummary) error {
	outDir := s.runDir(summary.SHA256, summary.RunID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("storage: creating %s: %w", outDir, err)
	}
	return s.writeJSON(filepath.Join(outDir, "result.json"), summary)
}

// ListResults returns all run summaries under the base directory, newest
// run first within each document.
func (s *Store) ListResults() ([]RunSummary, error) {
	var results []RunSummary

	err := filepath.WalkDir(s.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || d.Name() != "result.json" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var summary RunSummary
		if err := json.Unmarshal(data, &summary); err != nil {
			s.log.Warn().Str("path", path).Err(err).Msg("Skipping unreadable result.json")
			return nil
		}
		results = append(results, summary)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: listing results: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].SHA256 != results[j].SHA256 {
			return results[i].SHA256 < results[j].SHA256
		}
		return results[i].RunID > results[j].RunID
	})
	return results, nil
}

// ResolveShaPrefix expands a hash prefix (at least 4 characters) to the
// full SHA-256 of a stored document.
func (s *Store) ResolveShaPrefix(prefix string) (string, error) {
	if len(prefix) < 4 {
		return "", fmt.Errorf("storage: hash prefix %q is too short (need at least 4 characters)", prefix)
	}

	bucket := filepath.Join(s.baseDir, prefix[:4])
	entries, err := os.ReadDir(bucket)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("storage: reading %s: %w", bucket, err)
	}

	var matches []string
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) >= len(prefix) && e.Name()[:len(prefix)] == prefix {
			matches = append(matches, e.Name())
		}
	}
	switch len(matches) {
	case 0:
		return "", ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return "", ErrAmbiguousPrefix
	}
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("storage: writing %s: %w", path, err)
	}
	return nil
}
