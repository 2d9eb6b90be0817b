package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

// ErrSourceNotFound is returned when a source identifier matches no row.
var ErrSourceNotFound = errors.New("source not found")

// Store provides source, article, and crawl-log persistence.
type Store struct {
	db  *sqlx.DB
	log logger.Logger
}

// NewStore creates a store over an open connection pool.
func NewStore(db *sqlx.DB, log logger.Logger) *Store {
	return &Store{db: db, log: log}
}

// sourceRow is the database shape of a source; Config travels as JSONB.
type sourceRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	URL           string         `db:"url"`
	CrawlURL      string         `db:"crawl_url"`
	Technique     string         `db:"technique"`
	Config        []byte         `db:"config"`
	Active        bool           `db:"active"`
	Priority      int            `db:"priority"`
	LastCrawledAt sql.NullTime   `db:"last_crawled_at"`
}

// toDomain decodes the row into the domain model.
func (r *sourceRow) toDomain() (*domain.Source, error) {
	src := &domain.Source{
		ID:        r.ID,
		Name:      r.Name,
		URL:       r.URL,
		CrawlURL:  r.CrawlURL,
		Technique: domain.Technique(r.Technique),
		Active:    r.Active,
		Priority:  r.Priority,
	}

	if len(r.Config) > 0 {
		if err := json.Unmarshal(r.Config, &src.Config); err != nil {
			return nil, fmt.Errorf("decode source config %s: %w", r.ID, err)
		}
	}

	if r.LastCrawledAt.Valid {
		t := r.LastCrawledAt.Time
		src.LastCrawledAt = &t
	}

	return src, nil
}

const sourceColumns = `id, name, url, crawl_url, technique, config, active, priority, last_crawled_at`

// ActiveSources returns the active sources ordered by priority, highest
// first, then by identifier for a stable batch order.
func (s *Store) ActiveSources(ctx context.Context) ([]domain.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE active ORDER BY priority DESC, id`

	var rows []sourceRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}

	sources := make([]domain.Source, 0, len(rows))

	for i := range rows {
		src, err := rows[i].toDomain()
		if err != nil {
			// One corrupt config must not take down the batch.
			s.log.Warn("skipping source with bad config",
				logger.String("source", rows[i].ID),
				logger.String("error", err.Error()))

			continue
		}

		sources = append(sources, *src)
	}

	return sources, nil
}

// GetSource returns one source by identifier.
func (s *Store) GetSource(ctx context.Context, id string) (*domain.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE id = $1`

	var row sourceRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSourceNotFound
		}

		return nil, fmt.Errorf("get source: %w", err)
	}

	return row.toDomain()
}

// SaveSource inserts a source or replaces its mutable fields.
func (s *Store) SaveSource(ctx context.Context, src *domain.Source) error {
	cfg, err := json.Marshal(src.Config)
	if err != nil {
		return fmt.Errorf("encode source config: %w", err)
	}

	query := `
		INSERT INTO sources (id, name, url, crawl_url, technique, config, active, priority, last_crawled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			crawl_url = EXCLUDED.crawl_url,
			technique = EXCLUDED.technique,
			config = EXCLUDED.config,
			active = EXCLUDED.active,
			priority = EXCLUDED.priority`

	_, err = s.db.ExecContext(ctx, query,
		src.ID, src.Name, src.URL, src.CrawlURL, src.Technique.String(),
		cfg, src.Active, src.Priority, src.LastCrawledAt)
	if err != nil {
		return fmt.Errorf("save source: %w", err)
	}

	return nil
}

// SaveResolution writes the resolver's decision back onto a source:
// technique, optimized crawl URL, and the config carrying detection
// metadata.
func (s *Store) SaveResolution(ctx context.Context, src *domain.Source) error {
	cfg, err := json.Marshal(src.Config)
	if err != nil {
		return fmt.Errorf("encode source config: %w", err)
	}

	query := `UPDATE sources SET technique = $2, crawl_url = $3, config = $4 WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, src.ID, src.Technique.String(), src.CrawlURL, cfg)
	if err != nil {
		return fmt.Errorf("save resolution: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSourceNotFound
	}

	return nil
}

// TouchLastCrawled records the completion time of a source's run.
func (s *Store) TouchLastCrawled(ctx context.Context, sourceID string, at time.Time) error {
	query := `UPDATE sources SET last_crawled_at = $2 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, sourceID, at); err != nil {
		return fmt.Errorf("touch last crawled: %w", err)
	}

	return nil
}

// UpsertArticles inserts articles, skipping identifiers that already
// exist. It returns how many rows were actually inserted.
func (s *Store) UpsertArticles(ctx context.Context, articles []domain.CrawledArticle) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO articles (id, source_id, title, url, thumbnail, author, category, published_at, preview)
		VALUES (:id, :source_id, :title, :url, :thumbnail, :author, :category, :published_at, :preview)
		ON CONFLICT (id) DO NOTHING`

	inserted := 0

	for i := range articles {
		res, execErr := tx.NamedExecContext(ctx, query, &articles[i])
		if execErr != nil {
			return 0, fmt.Errorf("upsert article %s: %w", articles[i].ID, execErr)
		}

		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}

	return inserted, nil
}

// RecentArticles returns a source's newest stored articles.
func (s *Store) RecentArticles(ctx context.Context, sourceID string, limit int) ([]domain.CrawledArticle, error) {
	query := `
		SELECT id, source_id, title, url, thumbnail, author, category, published_at, preview
		FROM articles WHERE source_id = $1 ORDER BY created_at DESC LIMIT $2`

	var articles []domain.CrawledArticle
	if err := s.db.SelectContext(ctx, &articles, query, sourceID, limit); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}

	return articles, nil
}

// InsertCrawlLog appends one run row.
func (s *Store) InsertCrawlLog(ctx context.Context, entry *domain.CrawlLog) error {
	query := `
		INSERT INTO crawl_logs (run_id, source_id, status, found, new, errors, started_at, finished_at)
		VALUES (:run_id, :source_id, :status, :found, :new, :errors, :started_at, :finished_at)`

	if _, err := s.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert crawl log: %w", err)
	}

	return nil
}
