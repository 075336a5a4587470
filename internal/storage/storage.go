// Package storage persists crawl results. The relational sink writes pages
// into Postgres; a vector sink can be attached for embedding pipelines.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pq "github.com/lib/pq"

	"sitecrawler/internal/config"
	"sitecrawler/pkg/types"
)

// Document is the persisted form of one crawled page.
type Document struct {
	URL       string
	Depth     int
	Title     string
	Content   string
	RawHTML   []byte
	Metadata  map[string]string
	CrawledAt time.Time
}

// RelationalStore persists structured crawl data into a SQL database.
type RelationalStore interface {
	SavePage(ctx context.Context, doc Document) error
	Close() error
}

// VectorStore persists embeddings into a vector database.
type VectorStore interface {
	UpsertEmbedding(ctx context.Context, doc Document) error
}

// Pipeline fans out crawl results to relational and vector stores.
type Pipeline struct {
	relational RelationalStore
	vector     VectorStore
}

// NewPipeline constructs a storage pipeline. It returns nil when no sink is
// configured, which callers treat as persistence disabled.
func NewPipeline(rel RelationalStore, vec VectorStore) *Pipeline {
	if rel == nil && vec == nil {
		return nil
	}
	return &Pipeline{relational: rel, vector: vec}
}

// Persist stores the crawl result in the configured sinks.
func (p *Pipeline) Persist(ctx context.Context, result types.CrawlResult) error {
	if p == nil {
		return nil
	}
	if result.URL == "" {
		return errors.New("invalid crawl result: missing url")
	}
	doc := Document{
		URL:       result.URL,
		Depth:     result.Depth,
		Title:     result.Title,
		Content:   result.Content,
		RawHTML:   []byte(result.RawHTML),
		Metadata:  result.Metadata,
		CrawledAt: time.Now(),
	}

	if p.relational != nil {
		if err := p.relational.SavePage(ctx, doc); err != nil {
			return fmt.Errorf("relational store: %w", err)
		}
	}
	if p.vector != nil {
		if err := p.vector.UpsertEmbedding(ctx, doc); err != nil {
			return fmt.Errorf("vector store: %w", err)
		}
	}
	return nil
}

// Close releases the relational sink.
func (p *Pipeline) Close() error {
	if p == nil || p.relational == nil {
		return nil
	}
	return p.relational.Close()
}

// SQLWriter is a relational store backed by database/sql.
type SQLWriter struct {
	db          *sql.DB
	autoMigrate bool
}

// NewSQLWriter initialises a SQLWriter from configuration.
func NewSQLWriter(cfg config.SQLConfig) (*SQLWriter, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.New("sql config missing driver or dsn")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sql connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}
	writer := &SQLWriter{
		db:          db,
		autoMigrate: cfg.AutoMigrate,
	}
	if cfg.AutoMigrate {
		if err := writer.ensureSchema(context.Background()); err != nil {
			db.Close()
			return nil, err
		}
	}
	return writer, nil
}

// SavePage upserts the crawl document into the pages table, keyed by URL.
func (s *SQLWriter) SavePage(ctx context.Context, doc Document) error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.upsertPage(ctx, doc); err != nil {
		if s.autoMigrate && isUndefinedTableErr(err) {
			if schemaErr := s.ensureSchema(ctx); schemaErr != nil {
				return fmt.Errorf("ensure schema: %w", schemaErr)
			}
			if retryErr := s.upsertPage(ctx, doc); retryErr != nil {
				return fmt.Errorf("insert page: %w", retryErr)
			}
			return nil
		}
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

func (s *SQLWriter) upsertPage(ctx context.Context, doc Document) error {
	query := `
        INSERT INTO pages (url, depth, title, content, raw_html, crawled_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (url) DO UPDATE SET
            depth = EXCLUDED.depth,
            title = EXCLUDED.title,
            content = EXCLUDED.content,
            raw_html = EXCLUDED.raw_html,
            crawled_at = EXCLUDED.crawled_at
    `
	_, err := s.db.ExecContext(ctx, query,
		doc.URL,
		doc.Depth,
		doc.Title,
		doc.Content,
		doc.RawHTML,
		doc.CrawledAt,
	)
	return err
}

// Close closes the underlying DB connection.
func (s *SQLWriter) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLWriter) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil || !s.autoMigrate {
		return nil
	}
	schemaCtx := ctx
	if schemaCtx == nil || schemaCtx.Err() != nil {
		schemaCtx = context.Background()
	}
	schemaCtx, cancel := context.WithTimeout(schemaCtx, 10*time.Second)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pages (
		    url TEXT PRIMARY KEY,
		    depth INT,
		    title TEXT,
		    content TEXT,
		    raw_html BYTEA,
		    crawled_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_crawled_at ON pages (crawled_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func isUndefinedTableErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	return false
}

// NoopVectorStore satisfies VectorStore without persisting anything.
type NoopVectorStore struct{}

// UpsertEmbedding is a no-op.
func (NoopVectorStore) UpsertEmbedding(ctx context.Context, doc Document) error {
	return nil
}
