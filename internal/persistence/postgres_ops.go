package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"flaneur/internal/core"

	sq "github.com/Masterminds/squirrel"
)

var localeColumns = []string{
	"id", "name", "city", "country", "timezone", "currency",
	"has_listings_api", "enable_crowdsourced_sightings", "latitude", "longitude", "is_active",
}

// postgresLocaleRepo implements LocaleRepository for PostgreSQL
type postgresLocaleRepo struct {
	db *sql.DB
}

func (r *postgresLocaleRepo) Get(ctx context.Context, id string) (*core.Locale, error) {
	locales, err := r.list(ctx, psql.Select(localeColumns...).From("neighborhoods").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(locales) == 0 {
		return nil, fmt.Errorf("locale %s: %w", id, ErrNotFound)
	}
	return &locales[0], nil
}

func (r *postgresLocaleRepo) GetMany(ctx context.Context, ids []string) (map[string]core.Locale, error) {
	out := make(map[string]core.Locale, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	locales, err := r.list(ctx, psql.Select(localeColumns...).From("neighborhoods").Where(sq.Eq{"id": ids}))
	if err != nil {
		return nil, err
	}
	for _, l := range locales {
		out[l.ID] = l
	}
	return out, nil
}

func (r *postgresLocaleRepo) ListActive(ctx context.Context) ([]core.Locale, error) {
	return r.list(ctx, psql.Select(localeColumns...).From("neighborhoods").
		Where(sq.Eq{"is_active": true}).OrderBy("id"))
}

func (r *postgresLocaleRepo) list(ctx context.Context, b sq.SelectBuilder) ([]core.Locale, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list locales: %w", err)
	}
	defer rows.Close()

	var locales []core.Locale
	for rows.Next() {
		var l core.Locale
		var tz, currency sql.NullString
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&l.ID, &l.Name, &l.City, &l.Country, &tz, &currency,
			&l.HasListingsAPI, &l.EnableSightings, &lat, &lng, &l.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan locale: %w", err)
		}
		l.Timezone, l.Currency = tz.String, currency.String
		l.Latitude, l.Longitude = lat.Float64, lng.Float64
		locales = append(locales, l)
	}
	return locales, rows.Err()
}

// postgresSourceRepo implements SourceRepository for PostgreSQL
type postgresSourceRepo struct {
	db *sql.DB
}

func (r *postgresSourceRepo) CreateBatch(ctx context.Context, sources []core.ArticleSource) error {
	if len(sources) == 0 {
		return nil
	}
	b := psql.Insert("article_sources").Columns("id", "article_id", "source_name", "source_type", "source_url")
	for _, s := range sources {
		b = b.Values(s.ID, s.ArticleID, s.Name, string(s.Type), nullString(s.URL))
	}
	q, args, err := b.ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("failed to insert article sources: %w", mapError(err))
	}
	return nil
}

func (r *postgresSourceRepo) ListByArticle(ctx context.Context, articleID string) ([]core.ArticleSource, error) {
	q, args, err := psql.Select("id", "article_id", "source_name", "source_type", "source_url").
		From("article_sources").Where(sq.Eq{"article_id": articleID}).OrderBy("source_name").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list article sources: %w", err)
	}
	defer rows.Close()

	var out []core.ArticleSource
	for rows.Next() {
		var s core.ArticleSource
		var sourceType string
		var url sql.NullString
		if err := rows.Scan(&s.ID, &s.ArticleID, &s.Name, &sourceType, &url); err != nil {
			return nil, fmt.Errorf("failed to scan article source: %w", err)
		}
		s.Type = core.SourceType(sourceType)
		s.URL = url.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// postgresCronExecutionRepo implements CronExecutionRepository for PostgreSQL
type postgresCronExecutionRepo struct {
	db *sql.DB
}

func (r *postgresCronExecutionRepo) Create(ctx context.Context, exec *core.CronExecution) error {
	errs := exec.Errors
	if errs == nil {
		errs = []string{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}
	responseJSON, err := json.Marshal(exec.ResponseData)
	if err != nil {
		return fmt.Errorf("failed to marshal response data: %w", err)
	}

	q, args, err := psql.Insert("cron_executions").
		Columns("id", "job_name", "started_at", "completed_at", "success",
			"items_processed", "items_created", "items_failed", "errors", "response_data").
		Values(exec.ID, exec.JobName, exec.StartedAt, exec.CompletedAt, exec.Success,
			exec.ItemsProcessed, exec.ItemsCreated, exec.ItemsFailed, errorsJSON, responseJSON).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("failed to insert cron execution: %w", mapError(err))
	}
	return nil
}

func (r *postgresCronExecutionRepo) ListRecent(ctx context.Context, jobName string, limit int) ([]core.CronExecution, error) {
	b := psql.Select("id", "job_name", "started_at", "completed_at", "success",
		"items_processed", "items_created", "items_failed", "errors", "response_data").
		From("cron_executions").OrderBy("started_at DESC")
	if jobName != "" {
		b = b.Where(sq.Eq{"job_name": jobName})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cron executions: %w", err)
	}
	defer rows.Close()

	var out []core.CronExecution
	for rows.Next() {
		var e core.CronExecution
		var errorsJSON, responseJSON []byte
		if err := rows.Scan(&e.ID, &e.JobName, &e.StartedAt, &e.CompletedAt, &e.Success,
			&e.ItemsProcessed, &e.ItemsCreated, &e.ItemsFailed, &errorsJSON, &responseJSON); err != nil {
			return nil, fmt.Errorf("failed to scan cron execution: %w", err)
		}
		if len(errorsJSON) > 0 {
			_ = json.Unmarshal(errorsJSON, &e.Errors)
		}
		if len(responseJSON) > 0 {
			_ = json.Unmarshal(responseJSON, &e.ResponseData)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// postgresSightingRepo implements SightingRepository for PostgreSQL
type postgresSightingRepo struct {
	db *sql.DB
}

func (r *postgresSightingRepo) Create(ctx context.Context, s *core.PropertySighting) error {
	status := s.Status
	if status == "" {
		status = core.SightingPending
	}
	q, args, err := psql.Insert("property_sightings").
		Columns("id", "neighborhood_id", "address", "description", "price_text",
			"photo_url", "submitted_by", "status", "created_at").
		Values(s.ID, s.LocaleID, s.Address, s.Description, nullString(s.PriceText),
			nullString(s.PhotoURL), nullString(s.SubmittedBy), string(status), s.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("failed to insert sighting: %w", mapError(err))
	}
	return nil
}

func (r *postgresSightingRepo) ListPending(ctx context.Context, limit int) ([]core.PropertySighting, error) {
	b := psql.Select("id", "neighborhood_id", "address", "description", "price_text",
		"photo_url", "submitted_by", "status", "confidence", "article_id", "created_at").
		From("property_sightings").
		Where(sq.Eq{"status": string(core.SightingPending)}).
		OrderBy("created_at ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sightings: %w", err)
	}
	defer rows.Close()

	var out []core.PropertySighting
	for rows.Next() {
		var (
			s                                    core.PropertySighting
			status                               string
			price, photo, submittedBy, articleID sql.NullString
			confidence                           sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &s.LocaleID, &s.Address, &s.Description, &price,
			&photo, &submittedBy, &status, &confidence, &articleID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sighting: %w", err)
		}
		s.PriceText, s.PhotoURL, s.SubmittedBy = price.String, photo.String, submittedBy.String
		s.Status = core.SightingStatus(status)
		s.ArticleID = articleID.String
		if confidence.Valid {
			c := confidence.Float64
			s.Confidence = &c
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *postgresSightingRepo) MarkProcessed(ctx context.Context, id string, status core.SightingStatus, confidence float64, articleID string) error {
	q, args, err := psql.Update("property_sightings").
		Set("status", string(status)).
		Set("confidence", confidence).
		Set("article_id", nullString(articleID)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("failed to update sighting: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sighting %s: %w", id, ErrNotFound)
	}
	return nil
}
