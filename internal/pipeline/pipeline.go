// Package pipeline orchestrates the document flow: fetch, parse, enhance,
// store, extract.
//
// Parsing is critical and aborts a file's run on failure. Entity
// extraction is non-fatal: a failed extraction leaves the stored parse
// outputs in place. Folder batches run with a bounded number of
// concurrent files and isolate per-file failures.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/R1cK-ChaN/doc-parser/internal/config"
	"github.com/R1cK-ChaN/doc-parser/internal/drive"
	"github.com/R1cK-ChaN/doc-parser/internal/enhance"
	"github.com/R1cK-ChaN/doc-parser/internal/extraction"
	"github.com/R1cK-ChaN/doc-parser/internal/hasher"
	"github.com/R1cK-ChaN/doc-parser/internal/logger"
	"github.com/R1cK-ChaN/doc-parser/internal/storage"
	"github.com/R1cK-ChaN/doc-parser/internal/store"
	"github.com/R1cK-ChaN/doc-parser/internal/textin"
	"github.com/R1cK-ChaN/doc-parser/pkg/models"
)

// Parser parses a document file to Markdown and structural elements.
type Parser interface {
	ParseFileX(ctx context.Context, path string, opts textin.ParseXOptions) (*textin.ParseResult, error)
}

// Enhancer substitutes chart and table fragments in parsed markdown.
type Enhancer interface {
	Enhance(ctx context.Context, path, markdown string, detail []models.Element, pages []models.Page) enhance.Result
}

// DriveClient is the subset of the Drive API the pipeline uses.
type DriveClient interface {
	ListFiles(ctx context.Context, folderID string) ([]drive.File, error)
	GetFileMetadata(ctx context.Context, fileID string) (*drive.File, error)
	DownloadFile(ctx context.Context, fileID, destPath string) error
}

// Options adjust a single pipeline invocation.
type Options struct {
	// Force reprocesses a document even when stored results exist.
	Force bool

	// ParseMode overrides the configured TextIn parse mode.
	ParseMode string
}

// FileResult summarizes one processed file.
type FileResult struct {
	SHA256     string
	RunID      int
	ChartCount int
	TableCount int
	Meta       models.ReportMeta

	// Skipped is true when results already existed and Force was not set.
	Skipped bool
}

// Pipeline wires the pipeline stages together.
type Pipeline struct {
	cfg      *config.Config
	parser   Parser
	drive    DriveClient
	enhancer Enhancer
	provider extraction.Provider
	storage  *storage.Store
	db       *store.Store
	log      zerolog.Logger
}

// New builds a pipeline from configuration: TextIn parser, flat storage
// under DATA_DIR, the configured extraction provider, a VLM enhancer when
// VLM_MODEL is set, and a PostgreSQL store when DATABASE_URL is set. The
// Drive client is attached separately because local-only runs do not need
// credentials.
func New(cfg *config.Config) (*Pipeline, error) {
	client, err := textin.NewClient(cfg.TextinAppID, cfg.TextinSecretCode, cfg.TextinParseMode)
	if err != nil {
		return nil, err
	}

	provider, err := extraction.NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	var enhancer Enhancer
	if cfg.VLMEnabled() {
		summarizer := enhance.NewOpenAISummarizer(cfg.LLMAPIKey, cfg.LLMBaseURL, enhance.VLMConfig{
			Model:     cfg.VLMModel,
			MaxTokens: cfg.VLMMaxTokens,
		})
		enhancer = enhance.NewEnhancer(enhance.NewFitzRenderer(), summarizer)
	}

	var db *store.Store
	if cfg.DatabaseURL != "" {
		db, err = store.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
	}

	return NewWithDeps(cfg, client, nil, enhancer, provider, storage.NewStore(cfg.ParsedPath()), db), nil
}

// NewWithDeps builds a pipeline with explicit collaborators (for testing).
func NewWithDeps(cfg *config.Config, parser Parser, driveClient DriveClient, enhancer Enhancer, provider extraction.Provider, flatStore *storage.Store, db *store.Store) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		parser:   parser,
		drive:    driveClient,
		enhancer: enhancer,
		provider: provider,
		storage:  flatStore,
		db:       db,
		log:      logger.WithComponent("pipeline"),
	}
}

// SetDriveClient attaches a Drive client for the Drive-based flows.
func (p *Pipeline) SetDriveClient(c DriveClient) {
	p.drive = c
}

// Close releases held connections.
func (p *Pipeline) Close() error {
	if p.provider != nil {
		p.provider.Close()
	}
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// ProcessLocal runs the full pipeline for a local file.
func (p *Pipeline) ProcessLocal(ctx context.Context, path string, opts Options) (*FileResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	name := filepath.Base(path)
	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return p.process(ctx, processInput{
		path:     path,
		fileID:   "local:" + name,
		source:   "local",
		fileName: name,
		mimeType: mimeType,
		size:     info.Size(),
	}, opts)
}

// ProcessDriveFile downloads a Drive file and runs the full pipeline on it.
func (p *Pipeline) ProcessDriveFile(ctx context.Context, fileID string, opts Options) (*FileResult, error) {
	if p.drive == nil {
		return nil, fmt.Errorf("pipeline: no Drive client configured")
	}

	meta, err := p.drive.GetFileMetadata(ctx, fileID)
	if err != nil {
		return nil, err
	}

	// Keyed by file ID so concurrent downloads of same-named files cannot
	// overwrite each other.
	dest := filepath.Join(p.cfg.DataDir, "downloads", fileID, meta.Name)
	if err := p.drive.DownloadFile(ctx, fileID, dest); err != nil {
		return nil, err
	}

	return p.process(ctx, processInput{
		path:          dest,
		fileID:        fileID,
		source:        "drive",
		fileName:      meta.Name,
		mimeType:      meta.MimeType,
		size:          meta.Size,
		driveFolderID: firstParent(meta.Parents),
	}, opts)
}

// ProcessDriveFolder runs the full pipeline for every supported file in a
// Drive folder. At most TEXTIN_MAX_CONCURRENT files are in flight at once;
// a failed file is logged and does not abort the batch.
func (p *Pipeline) ProcessDriveFolder(ctx context.Context, folderID string, opts Options) ([]*FileResult, error) {
	if p.drive == nil {
		return nil, fmt.Errorf("pipeline: no Drive client configured")
	}

	files, err := p.drive.ListFiles(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		p.log.Warn().Str("folder_id", folderID).Msg("No supported files found")
		return nil, nil
	}

	results := make([]*FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.TextinMaxConcurrent)

	for i, f := range files {
		g.Go(func() error {
			res, err := p.ProcessDriveFile(gctx, f.ID, opts)
			if err != nil {
				p.log.Error().Str("file", f.Name).Err(err).Msg("Failed to process file")
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// ReExtract reruns entity extraction for a stored document using its
// persisted markdown, without re-parsing. The document is addressed by a
// SHA-256 prefix of at least four characters.
func (p *Pipeline) ReExtract(ctx context.Context, shaPrefix string) (*FileResult, error) {
	sha256, err := p.storage.ResolveShaPrefix(shaPrefix)
	if err != nil {
		return nil, err
	}

	runID, err := p.storage.LatestRunID(sha256)
	if err != nil {
		return nil, err
	}
	if runID == 0 {
		return nil, storage.ErrNotFound
	}

	markdown, err := p.storage.LoadMarkdown(sha256, runID)
	if err != nil {
		return nil, err
	}

	summary, err := p.storage.LoadSummary(sha256, runID)
	if err != nil {
		summary = &storage.RunSummary{SHA256: sha256, RunID: runID, Status: "completed"}
	}

	result, err := p.provider.Extract(ctx, extraction.Request{
		FilePath: summary.SourceFile,
		Markdown: markdown,
	})
	if err != nil {
		return nil, err
	}

	if _, err := p.storage.StoreExtractionResult(sha256, runID, result); err != nil {
		return nil, err
	}

	meta := extraction.MetaFromFields(result.Fields)
	summary.Meta = meta
	if err := p.storage.WriteSummary(*summary); err != nil {
		return nil, err
	}

	return &FileResult{
		SHA256:     sha256,
		RunID:      runID,
		ChartCount: summary.ChartCount,
		TableCount: summary.TableCount,
		Meta:       meta,
	}, nil
}

type processInput struct {
	path          string
	fileID        string
	source        string
	fileName      string
	mimeType      string
	size          int64
	driveFolderID string
}

func (p *Pipeline) process(ctx context.Context, in processInput, opts Options) (*FileResult, error) {
	sha, err := hasher.SHA256File(in.path)
	if err != nil {
		return nil, err
	}
	log := p.log.With().Str("file", in.fileName).Str("sha256", sha[:12]).Logger()

	runID, err := p.storage.NextRunID(sha)
	if err != nil {
		return nil, err
	}
	if runID > 1 && !opts.Force {
		log.Info().Msg("Skipping, results exist (use --force)")
		return &FileResult{SHA256: sha, Skipped: true}, nil
	}

	docFileID, parseID, err := p.recordParseStart(ctx, in, sha, opts)
	if err != nil {
		return nil, err
	}

	parseOpts := textin.DefaultParseXOptions()
	parseOpts.ParseMode = opts.ParseMode
	parsed, err := p.parser.ParseFileX(ctx, in.path, parseOpts)
	if err != nil {
		p.recordParseFailure(ctx, parseID, err)
		return nil, err
	}
	log.Info().
		Int("elements", len(parsed.Detail)).
		Int("pages", parsed.TotalPageNumber).
		Msg("Parsed")

	paths, err := p.storage.StoreParseResult(sha, runID, parsed)
	if err != nil {
		p.recordParseFailure(ctx, parseID, err)
		return nil, err
	}

	markdown := parsed.Markdown
	var chartCount, tableCount int
	if p.enhancer != nil {
		enhanced := p.enhancer.Enhance(ctx, in.path, parsed.Markdown, parsed.Detail, parsed.Pages)
		markdown = enhanced.Markdown
		chartCount = enhanced.ChartCount
		tableCount = enhanced.TableCount
		if chartCount > 0 || tableCount > 0 {
			rel, err := p.storage.StoreEnhancedMarkdown(sha, runID, markdown)
			if err != nil {
				return nil, err
			}
			paths["enhanced_markdown_path"] = rel
		}
	}

	p.recordParseSuccess(ctx, parseID, parsed, paths)

	summary := storage.RunSummary{
		SHA256:     sha,
		RunID:      runID,
		SourceFile: in.path,
		Status:     "completed",
		ChartCount: chartCount,
		TableCount: tableCount,
		Paths:      paths,
		CreatedAt:  time.Now().UTC(),
	}

	// Extraction is non-fatal: parse outputs are already stored.
	meta, err := p.runExtraction(ctx, in, sha, runID, docFileID, parseID, markdown)
	if err != nil {
		log.Warn().Err(err).Msg("Extraction failed, parse results kept")
	} else {
		summary.Meta = meta
	}

	if err := p.storage.WriteSummary(summary); err != nil {
		return nil, err
	}

	return &FileResult{
		SHA256:     sha,
		RunID:      runID,
		ChartCount: chartCount,
		TableCount: tableCount,
		Meta:       summary.Meta,
	}, nil
}

func (p *Pipeline) runExtraction(ctx context.Context, in processInput, sha string, runID int, docFileID, parseID int64, markdown string) (models.ReportMeta, error) {
	var extractionID int64
	if p.db != nil {
		var err error
		extractionID, err = p.db.CreateExtraction(ctx, docFileID, parseID, p.cfg.ExtractionProvider, p.cfg.LLMModel)
		if err != nil {
			return models.ReportMeta{}, err
		}
		if err := p.db.StartExtraction(ctx, extractionID); err != nil {
			return models.ReportMeta{}, err
		}
	}

	result, err := p.provider.Extract(ctx, extraction.Request{
		FilePath: in.path,
		Markdown: markdown,
	})
	if err != nil {
		if p.db != nil {
			if dbErr := p.db.FailExtraction(ctx, extractionID, err.Error()); dbErr != nil {
				p.log.Error().Err(dbErr).Msg("Recording extraction failure")
			}
		}
		return models.ReportMeta{}, err
	}

	rel, err := p.storage.StoreExtractionResult(sha, runID, result)
	if err != nil {
		return models.ReportMeta{}, err
	}

	meta := extraction.MetaFromFields(result.Fields)
	if p.db != nil {
		outcome := store.ExtractionOutcome{
			RequestID:  result.RequestID,
			DurationMS: result.DurationMS,
			Meta:       meta,
			JSONPath:   rel,
		}
		if err := p.db.CompleteExtraction(ctx, extractionID, outcome); err != nil {
			return meta, err
		}
		if err := p.db.UpdateDocFileMeta(ctx, docFileID, meta); err != nil {
			return meta, err
		}
	}

	p.log.Info().
		Str("title", meta.Title).
		Str("broker", meta.Broker).
		Str("provider", p.cfg.ExtractionProvider).
		Msg("Extracted entities")
	return meta, nil
}

func (p *Pipeline) recordParseStart(ctx context.Context, in processInput, sha string, opts Options) (docFileID, parseID int64, err error) {
	if p.db == nil {
		return 0, 0, nil
	}

	docFile := &store.DocFile{
		FileID:        in.fileID,
		SHA256:        sha,
		Source:        in.source,
		MimeType:      nullString(in.mimeType),
		FileName:      in.fileName,
		FileSizeBytes: nullInt64(in.size),
		DriveFolderID: nullString(in.driveFolderID),
		LocalPath:     nullString(in.path),
	}
	docFileID, err = p.db.UpsertDocFile(ctx, docFile)
	if err != nil {
		return 0, 0, err
	}

	mode := opts.ParseMode
	if mode == "" {
		mode = p.cfg.TextinParseMode
	}
	parseConfig := textin.DefaultParseXOptions()
	parseConfig.ParseMode = mode
	parseID, err = p.db.CreateParse(ctx, docFileID, mode, parseConfig)
	if err != nil {
		return 0, 0, err
	}
	if err := p.db.StartParse(ctx, parseID); err != nil {
		return 0, 0, err
	}
	return docFileID, parseID, nil
}

func (p *Pipeline) recordParseSuccess(ctx context.Context, parseID int64, parsed *textin.ParseResult, paths map[string]string) {
	if p.db == nil {
		return
	}

	outcome := store.ParseOutcome{
		RequestID:      parsed.RequestID,
		DurationMS:     parsed.DurationMS,
		Paths:          paths,
		HasChart:       parsed.HasChart,
		PageCount:      parsed.TotalPageNumber,
		ValidPageCount: parsed.ValidPageNumber,
		SrcPageCount:   parsed.SrcPageCount,
	}
	if err := p.db.CompleteParse(ctx, parseID, outcome); err != nil {
		p.log.Error().Err(err).Msg("Recording parse completion")
		return
	}
	if err := p.db.InsertElements(ctx, parseID, parsed.Detail); err != nil {
		p.log.Error().Err(err).Msg("Recording parse elements")
	}
}

func (p *Pipeline) recordParseFailure(ctx context.Context, parseID int64, cause error) {
	if p.db == nil {
		return
	}
	if err := p.db.FailParse(ctx, parseID, cause.Error()); err != nil {
		p.log.Error().Err(err).Msg("Recording parse failure")
	}
}

func firstParent(parents []string) string {
	if len(parents) == 0 {
		return ""
	}
	return parents[0]
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v > 0}
}
