package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flaneur/internal/core"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

// psql builds Postgres-flavoured statements with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PoolOptions tunes the connection pool
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresDB implements the Database interface for PostgreSQL
type PostgresDB struct {
	db        *sql.DB
	locales   LocaleRepository
	briefs    BriefRepository
	articles  ArticleRepository
	sources   SourceRepository
	cronExecs CronExecutionRepository
	sightings SightingRepository
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(ctx context.Context, connectionString string, opts PoolOptions) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{
		db:        db,
		locales:   &postgresLocaleRepo{db: db},
		briefs:    &postgresBriefRepo{db: db},
		articles:  &postgresArticleRepo{db: db},
		sources:   &postgresSourceRepo{db: db},
		cronExecs: &postgresCronExecutionRepo{db: db},
		sightings: &postgresSightingRepo{db: db},
	}, nil
}

func (p *PostgresDB) Locales() LocaleRepository               { return p.locales }
func (p *PostgresDB) Briefs() BriefRepository                 { return p.briefs }
func (p *PostgresDB) Articles() ArticleRepository             { return p.articles }
func (p *PostgresDB) Sources() SourceRepository               { return p.sources }
func (p *PostgresDB) CronExecutions() CronExecutionRepository { return p.cronExecs }
func (p *PostgresDB) Sightings() SightingRepository           { return p.sightings }

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// mapError converts driver errors to package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
	}
	return err
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// enrichmentColumns are shared by the briefs and articles tables.
var enrichmentColumns = []string{
	"enriched_content", "enriched_categories", "enrichment_model",
	"enriched_at", "subject_teaser", "email_teaser",
}

// enrichmentScan holds nullable enrichment columns during a row scan.
type enrichmentScan struct {
	content    sql.NullString
	categories []byte
	model      sql.NullString
	enrichedAt sql.NullTime
	subject    sql.NullString
	email      sql.NullString
}

func (e *enrichmentScan) dest() []any {
	return []any{&e.content, &e.categories, &e.model, &e.enrichedAt, &e.subject, &e.email}
}

// enrichment converts the scanned columns; nil when the row is unenriched.
func (e *enrichmentScan) enrichment() (*core.Enrichment, error) {
	if !e.enrichedAt.Valid {
		return nil, nil
	}
	out := &core.Enrichment{
		Content:       e.content.String,
		Model:         e.model.String,
		EnrichedAt:    e.enrichedAt.Time,
		SubjectTeaser: e.subject.String,
		EmailTeaser:   e.email.String,
	}
	if len(e.categories) > 0 {
		if err := json.Unmarshal(e.categories, &out.Categories); err != nil {
			return nil, fmt.Errorf("failed to unmarshal enriched categories: %w", err)
		}
	}
	return out, nil
}

// enrichmentSet builds the SET clause map for an enrichment update.
func enrichmentSet(e core.Enrichment) (map[string]any, error) {
	categories, err := json.Marshal(e.Categories)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal enriched categories: %w", err)
	}
	return map[string]any{
		"enriched_content":    e.Content,
		"enriched_categories": categories,
		"enrichment_model":    e.Model,
		"enriched_at":         e.EnrichedAt,
		"subject_teaser":      nullString(e.SubjectTeaser),
		"email_teaser":        nullString(e.EmailTeaser),
	}, nil
}

// excludeTypes adds a NOT IN filter on article_type when types is non-empty.
func excludeTypes(b sq.SelectBuilder, types []core.ArticleType) sq.SelectBuilder {
	if len(types) == 0 {
		return b
	}
	vals := make([]string, len(types))
	for i, t := range types {
		vals[i] = string(t)
	}
	return b.Where(sq.NotEq{"article_type": vals})
}
