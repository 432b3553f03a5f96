// Package store persists pipeline runs in PostgreSQL.
//
// Three tables track the pipeline: doc_file (one row per unique source
// file), doc_parse (one row per TextIn parse invocation), and
// doc_extraction (one row per entity extraction invocation). doc_element
// holds the structural elements of a parse for querying. Timestamps are
// Unix epoch seconds. Status values move pending -> running ->
// completed/failed.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R1cK-ChaN/doc-parser/pkg/models"
)

// Run status values
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS doc_file (
	id              BIGSERIAL PRIMARY KEY,
	file_id         VARCHAR(255) NOT NULL UNIQUE,
	sha256          VARCHAR(64) NOT NULL,
	source          VARCHAR(50) NOT NULL,
	mime_type       VARCHAR(127),
	file_name       VARCHAR(512) NOT NULL,
	file_size_bytes BIGINT,
	publish_date    BIGINT,
	broker          VARCHAR(255),
	title           VARCHAR(1024),
	drive_folder_id VARCHAR(255),
	local_path      VARCHAR(1024),
	market          VARCHAR(255),
	sector          VARCHAR(255),
	document_type   VARCHAR(255),
	target_company  VARCHAR(255),
	ticker_symbol   VARCHAR(50),
	authors         VARCHAR(1024),
	created_at      BIGINT NOT NULL,
	updated_at      BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_doc_file_sha256 ON doc_file (sha256);

CREATE TABLE IF NOT EXISTS doc_parse (
	id                BIGSERIAL PRIMARY KEY,
	doc_file_id       BIGINT NOT NULL REFERENCES doc_file(id) ON DELETE CASCADE,
	parse_mode        VARCHAR(50) NOT NULL DEFAULT 'auto',
	status            VARCHAR(20) NOT NULL DEFAULT 'pending',
	started_at        BIGINT,
	completed_at      BIGINT,
	duration_ms       INTEGER,
	textin_request_id VARCHAR(255),
	markdown_path     VARCHAR(1024),
	detail_json_path  VARCHAR(1024),
	pages_json_path   VARCHAR(1024),
	excel_path        VARCHAR(1024),
	has_excel         BOOLEAN DEFAULT FALSE,
	has_chart         BOOLEAN DEFAULT FALSE,
	page_count        INTEGER,
	valid_page_count  INTEGER,
	src_page_count    INTEGER,
	error_message     TEXT,
	parse_config      JSONB
);

CREATE TABLE IF NOT EXISTS doc_element (
	id             BIGSERIAL PRIMARY KEY,
	doc_parse_id   BIGINT NOT NULL REFERENCES doc_parse(id) ON DELETE CASCADE,
	page_number    INTEGER,
	element_type   VARCHAR(50),
	sub_type       VARCHAR(50),
	text           TEXT,
	position       JSONB,
	char_pos_start INTEGER,
	char_pos_end   INTEGER,
	outline_level  INTEGER,
	content_flag   VARCHAR(50),
	image_url      VARCHAR(1024)
);
CREATE INDEX IF NOT EXISTS ix_doc_element_parse_page ON doc_element (doc_parse_id, page_number);

CREATE TABLE IF NOT EXISTS doc_extraction (
	id                   BIGSERIAL PRIMARY KEY,
	doc_file_id          BIGINT NOT NULL REFERENCES doc_file(id) ON DELETE CASCADE,
	doc_parse_id         BIGINT REFERENCES doc_parse(id) ON DELETE SET NULL,
	status               VARCHAR(20) NOT NULL DEFAULT 'pending',
	started_at           BIGINT,
	completed_at         BIGINT,
	duration_ms          INTEGER,
	textin_request_id    VARCHAR(255),
	provider             VARCHAR(50),
	llm_model            VARCHAR(255),
	title                VARCHAR(1024),
	broker               VARCHAR(255),
	authors              VARCHAR(1024),
	publish_date         BIGINT,
	market               VARCHAR(255),
	sector               VARCHAR(255),
	document_type        VARCHAR(255),
	target_company       VARCHAR(255),
	ticker_symbol        VARCHAR(50),
	extraction_json_path VARCHAR(1024),
	extraction_config    JSONB,
	error_message        TEXT
);
`

// DocFile is one row per unique source file.
type DocFile struct {
	ID            int64          `db:"id"`
	FileID        string         `db:"file_id"`
	SHA256        string         `db:"sha256"`
	Source        string         `db:"source"` // "drive" or "local"
	MimeType      sql.NullString `db:"mime_type"`
	FileName      string         `db:"file_name"`
	FileSizeBytes sql.NullInt64  `db:"file_size_bytes"`
	PublishDate   sql.NullInt64  `db:"publish_date"`
	Broker        sql.NullString `db:"broker"`
	Title         sql.NullString `db:"title"`
	DriveFolderID sql.NullString `db:"drive_folder_id"`
	LocalPath     sql.NullString `db:"local_path"`
	Market        sql.NullString `db:"market"`
	Sector        sql.NullString `db:"sector"`
	DocumentType  sql.NullString `db:"document_type"`
	TargetCompany sql.NullString `db:"target_company"`
	TickerSymbol  sql.NullString `db:"ticker_symbol"`
	Authors       sql.NullString `db:"authors"`
	CreatedAt     int64          `db:"created_at"`
	UpdatedAt     int64          `db:"updated_at"`
}

// DocParse is one row per TextIn parse invocation.
type DocParse struct {
	ID              int64          `db:"id"`
	DocFileID       int64          `db:"doc_file_id"`
	ParseMode       string         `db:"parse_mode"`
	Status          string         `db:"status"`
	StartedAt       sql.NullInt64  `db:"started_at"`
	CompletedAt     sql.NullInt64  `db:"completed_at"`
	DurationMS      sql.NullInt64  `db:"duration_ms"`
	TextinRequestID sql.NullString `db:"textin_request_id"`
	MarkdownPath    sql.NullString `db:"markdown_path"`
	DetailJSONPath  sql.NullString `db:"detail_json_path"`
	PagesJSONPath   sql.NullString `db:"pages_json_path"`
	ExcelPath       sql.NullString `db:"excel_path"`
	HasExcel        bool           `db:"has_excel"`
	HasChart        bool           `db:"has_chart"`
	PageCount       sql.NullInt64  `db:"page_count"`
	ValidPageCount  sql.NullInt64  `db:"valid_page_count"`
	SrcPageCount    sql.NullInt64  `db:"src_page_count"`
	ErrorMessage    sql.NullString `db:"error_message"`
	ParseConfig     []byte         `db:"parse_config"`
}

// DocExtraction is one row per entity extraction invocation.
type DocExtraction struct {
	ID                 int64          `db:"id"`
	DocFileID          int64          `db:"doc_file_id"`
	DocParseID         sql.NullInt64  `db:"doc_parse_id"`
	Status             string         `db:"status"`
	StartedAt          sql.NullInt64  `db:"started_at"`
	CompletedAt        sql.NullInt64  `db:"completed_at"`
	DurationMS         sql.NullInt64  `db:"duration_ms"`
	TextinRequestID    sql.NullString `db:"textin_request_id"`
	Provider           sql.NullString `db:"provider"`
	LLMModel           sql.NullString `db:"llm_model"`
	Title              sql.NullString `db:"title"`
	Broker             sql.NullString `db:"broker"`
	Authors            sql.NullString `db:"authors"`
	PublishDate        sql.NullInt64  `db:"publish_date"`
	Market             sql.NullString `db:"market"`
	Sector             sql.NullString `db:"sector"`
	DocumentType       sql.NullString `db:"document_type"`
	TargetCompany      sql.NullString `db:"target_company"`
	TickerSymbol       sql.NullString `db:"ticker_symbol"`
	ExtractionJSONPath sql.NullString `db:"extraction_json_path"`
	ExtractionConfig   []byte         `db:"extraction_config"`
	ErrorMessage       sql.NullString `db:"error_message"`
}

// Store wraps the PostgreSQL connection.
type Store struct {
	db *sqlx.DB
}

// Open connects to PostgreSQL and ensures the schema exists.
func Open(databaseURL string) (*Store, error) {
	const op = "Open"

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: %s: connecting: %w", op, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: %s: ensuring schema: %w", op, err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB creates a store on an existing connection (for testing).
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func epochNow() int64 {
	return time.Now().Unix()
}

// UpsertDocFile inserts the file or, when file_id already exists, refreshes
// its hash, name, size, and path columns. Returns the row ID.
func (s *Store) UpsertDocFile(ctx context.Context, f *DocFile) (int64, error) {
	const op = "UpsertDocFile"

	now := epochNow()
	f.CreatedAt = now
	f.UpdatedAt = now

	query := `
		INSERT INTO doc_file (
			file_id, sha256, source, mime_type, file_name, file_size_bytes,
			drive_folder_id, local_path, created_at, updated_at
		) VALUES (
			:file_id, :sha256, :source, :mime_type, :file_name, :file_size_bytes,
			:drive_folder_id, :local_path, :created_at, :updated_at
		)
		ON CONFLICT (file_id) DO UPDATE SET
			sha256 = EXCLUDED.sha256,
			mime_type = EXCLUDED.mime_type,
			file_name = EXCLUDED.file_name,
			file_size_bytes = EXCLUDED.file_size_bytes,
			drive_folder_id = EXCLUDED.drive_folder_id,
			local_path = EXCLUDED.local_path,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	rows, err := s.db.NamedQueryContext(ctx, query, f)
	if err != nil {
		return 0, fmt.Errorf("store: %s: %w", op, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, fmt.Errorf("store: %s: no id returned", op)
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return 0, fmt.Errorf("store: %s: %w", op, err)
	}
	f.ID = id
	return id, nil
}

// GetDocFileBySHA returns the most recently updated file row with the
// given content hash.
func (s *Store) GetDocFileBySHA(ctx context.Context, sha256 string) (*DocFile, error) {
	const op = "GetDocFileBySHA"

	var f DocFile
	query := `SELECT * FROM doc_file WHERE sha256 = $1 ORDER BY updated_at DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &f, query, sha256); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}
	return &f, nil
}

// UpdateDocFileMeta backfills the extracted bibliographic columns.
func (s *Store) UpdateDocFileMeta(ctx context.Context, docFileID int64, meta models.ReportMeta) error {
	const op = "UpdateDocFileMeta"

	query := `
		UPDATE doc_file SET
			title = NULLIF($2, ''),
			broker = NULLIF($3, ''),
			authors = NULLIF($4, ''),
			publish_date = $5,
			market = NULLIF($6, ''),
			sector = NULLIF($7, ''),
			document_type = NULLIF($8, ''),
			target_company = NULLIF($9, ''),
			ticker_symbol = NULLIF($10, ''),
			updated_at = $11
		WHERE id = $1`

	_, err := s.db.ExecContext(ctx, query,
		docFileID, meta.Title, meta.Broker, meta.Authors, EpochFromDate(meta.PublishDate),
		meta.Market, meta.Sector, meta.DocumentType, meta.TargetCompany, meta.TickerSymbol,
		epochNow())
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return nil
}

// CreateParse inserts a pending parse row and returns its ID.
func (s *Store) CreateParse(ctx context.Context, docFileID int64, parseMode string, parseConfig any) (int64, error) {
	const op = "CreateParse"

	config, err := json.Marshal(parseConfig)
	if err != nil {
		return 0, fmt.Errorf("store: %s: encoding parse config: %w", op, err)
	}

	var id int64
	query := `
		INSERT INTO doc_parse (doc_file_id, parse_mode, status, parse_config)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := s.db.GetContext(ctx, &id, query, docFileID, parseMode, StatusPending, config); err != nil {
		return 0, fmt.Errorf("store: %s: %w", op, err)
	}
	return id, nil
}

// StartParse marks a parse row as running.
func (s *Store) StartParse(ctx context.Context, parseID int64) error {
	const op = "StartParse"

	query := `UPDATE doc_parse SET status = $2, started_at = $3 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, parseID, StatusRunning, epochNow()); err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return nil
}

// ParseOutcome carries the columns written when a parse completes.
type ParseOutcome struct {
	RequestID      string
	DurationMS     int
	Paths          map[string]string
	HasChart       bool
	PageCount      int
	ValidPageCount int
	SrcPageCount   int
}

// CompleteParse marks a parse row as completed and records its outputs.
func (s *Store) CompleteParse(ctx context.Context, parseID int64, outcome ParseOutcome) error {
	const op = "CompleteParse"

	query := `
		UPDATE doc_parse SET
			status = $2,
			completed_at = $3,
			duration_ms = $4,
			textin_request_id = NULLIF($5, ''),
			markdown_path = NULLIF($6, ''),
			detail_json_path = NULLIF($7, ''),
			pages_json_path = NULLIF($8, ''),
			excel_path = NULLIF($9, ''),
			has_excel = $10,
			has_chart = $11,
			page_count = $12,
			valid_page_count = $13,
			src_page_count = $14
		WHERE id = $1`

	_, err := s.db.ExecContext(ctx, query,
		parseID, StatusCompleted, epochNow(), outcome.DurationMS, outcome.RequestID,
		outcome.Paths["markdown_path"], outcome.Paths["detail_json_path"],
		outcome.Paths["pages_json_path"], outcome.Paths["excel_path"],
		outcome.Paths["excel_path"] != "", outcome.HasChart,
		outcome.PageCount, outcome.ValidPageCount, outcome.SrcPageCount)
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return nil
}

// FailParse marks a parse row as failed with an error message.
func (s *Store) FailParse(ctx context.Context, parseID int64, message string) error {
	const op = "FailParse"

	query := `UPDATE doc_parse SET status = $2, completed_at = $3, error_message = $4 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, parseID, StatusFailed, epochNow(), message); err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return nil
}

// InsertElements bulk-inserts the structural elements of a parse.
func (s *Store) InsertElements(ctx context.Context, parseID int64, elements []models.Element) error {
	const op = "InsertElements"

	if len(elements) == 0 {
		return nil
	}

	type row struct {
		DocParseID   int64          `db:"doc_parse_id"`
		PageNumber   int            `db:"page_number"`
		ElementType  string         `db:"element_type"`
		SubType      sql.NullString `db:"sub_type"`
		Text         sql.NullString `db:"text"`
		Position     []byte         `db:"position"`
		CharPosStart int            `db:"char_pos_start"`
		CharPosEnd   int            `db:"char_pos_end"`
		OutlineLevel int            `db:"outline_level"`
		ContentFlag  sql.NullString `db:"content_flag"`
		ImageURL     sql.NullString `db:"image_url"`
	}

	rows := make([]row, len(elements))
	for i, el := range elements {
		rows[i] = row{
			DocParseID:   parseID,
			PageNumber:   el.Page(),
			ElementType:  el.Type,
			SubType:      sql.NullString{String: el.SubType, Valid: el.SubType != ""},
			Text:         sql.NullString{String: el.Text, Valid: el.Text != ""},
			Position:     el.Position,
			CharPosStart: el.CharPosStart,
			CharPosEnd:   el.CharPosEnd,
			OutlineLevel: el.OutlineLevel,
			ContentFlag:  sql.NullString{String: el.ContentFlag, Valid: el.ContentFlag != ""},
			ImageURL:     sql.NullString{String: el.ImageURL, Valid: el.ImageURL != ""},
		}
	}

	query := `
		INSERT INTO doc_element (
			doc_parse_id, page_number, element_type, sub_type, text, position,
			char_pos_start, char_pos_end, outline_level, content_flag, image_url
		) VALUES (
			:doc_parse_id, :page_number, :element_type, :sub_type, :text, :position,
			:char_pos_start, :char_pos_end, :outline_level, :content_flag, :image_url
		)`
	if _, err := s.db.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return nil
}

// ListParsesByStatus returns parse rows in the given status.
func (s *Store) ListParsesByStatus(ctx context.Context, status string) ([]DocParse, error) {
	const op = "ListParsesByStatus"

	var parses []DocParse
	query := `SELECT * FROM doc_parse WHERE status = $1 ORDER BY id`
	if err := s.db.SelectContext(ctx, &parses, query, status); err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}
	return parses, nil
}

// CreateExtraction inserts a pending extraction row and returns its ID.
func (s *Store) CreateExtraction(ctx context.Context, docFileID int64, parseID int64, provider, llmModel string) (int64, error) {
	const op = "CreateExtraction"

	var id int64
	query := `
		INSERT INTO doc_extraction (doc_file_id, doc_parse_id, status, provider, llm_model)
		VALUES ($1, NULLIF($2, 0), $3, $4, NULLIF($5, ''))
		RETURNING id`
	if err := s.db.GetContext(ctx, &id, query, docFileID, parseID, StatusPending, provider, llmModel); err != nil {
		return 0, fmt.Errorf("store: %s: %w", op, err)
	}
	return id, nil
}

// StartExtraction marks an extraction row as running.
func (s *Store) StartExtraction(ctx context.Context, extractionID int64) error {
	const op = "StartExtraction"

	query := `UPDATE doc_extraction SET status = $2, started_at = $3 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, extractionID, StatusRunning, epochNow()); err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return nil
}

// ExtractionOutcome carries the columns written when an extraction
// completes.
type ExtractionOutcome struct {
	RequestID  string
	DurationMS int
	Meta       models.ReportMeta
	JSONPath   string
}

// CompleteExtraction marks an extraction row as completed and records the
// extracted fields.
func (s *Store) CompleteExtraction(ctx context.Context, extractionID int64, outcome ExtractionOutcome) error {
	const op = "CompleteExtraction"

	query := `
		UPDATE doc_extraction SET
			status = $2,
			completed_at = $3,
			duration_ms = $4,
			textin_request_id = NULLIF($5, ''),
			title = NULLIF($6, ''),
			broker = NULLIF($7, ''),
			authors = NULLIF($8, ''),
			publish_date = $9,
			market = NULLIF($10, ''),
			sector = NULLIF($11, ''),
			document_type = NULLIF($12, ''),
			target_company = NULLIF($13, ''),
			ticker_symbol = NULLIF($14, ''),
			extraction_json_path = NULLIF($15, '')
		WHERE id = $1`

	meta := outcome.Meta
	_, err := s.db.ExecContext(ctx, query,
		extractionID, StatusCompleted, epochNow(), outcome.DurationMS, outcome.RequestID,
		meta.Title, meta.Broker, meta.Authors, EpochFromDate(meta.PublishDate),
		meta.Market, meta.Sector, meta.DocumentType, meta.TargetCompany, meta.TickerSymbol,
		outcome.JSONPath)
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return nil
}

// FailExtraction marks an extraction row as failed with an error message.
func (s *Store) FailExtraction(ctx context.Context, extractionID int64, message string) error {
	const op = "FailExtraction"

	query := `UPDATE doc_extraction SET status = $2, completed_at = $3, error_message = $4 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, extractionID, StatusFailed, epochNow(), message); err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return nil
}

// EpochFromDate parses a date string into Unix epoch seconds, trying the
// common formats extraction returns. Unparseable or empty input yields a
// NULL value.
func EpochFromDate(date string) sql.NullInt64 {
	if date == "" {
		return sql.NullInt64{}
	}
	for _, layout := range []string{"2006-01-02", "2006/01/02", "2006-01-02T15:04:05Z07:00", "January 2, 2006", "2 January 2006"} {
		if t, err := time.Parse(layout, date); err == nil {
			return sql.NullInt64{Int64: t.Unix(), Valid: true}
		}
	}
	return sql.NullInt64{}
}
