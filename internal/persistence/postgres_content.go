package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"flaneur/internal/core"

	sq "github.com/Masterminds/squirrel"
)

var briefColumns = append([]string{
	"id", "neighborhood_id", "headline", "content", "generated_at",
}, enrichmentColumns...)

// postgresBriefRepo implements BriefRepository for PostgreSQL
type postgresBriefRepo struct {
	db *sql.DB
}

func (r *postgresBriefRepo) Create(ctx context.Context, brief *core.Brief) error {
	q, args, err := psql.Insert("neighborhood_briefs").
		Columns("id", "neighborhood_id", "headline", "content", "generated_at").
		Values(brief.ID, brief.LocaleID, brief.Headline, brief.Content, brief.GeneratedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("failed to insert brief: %w", mapError(err))
	}
	return nil
}

func (r *postgresBriefRepo) Get(ctx context.Context, id string) (*core.Brief, error) {
	q, args, err := psql.Select(briefColumns...).From("neighborhood_briefs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get brief: %w", err)
	}
	briefs, err := scanBriefs(rows)
	if err != nil {
		return nil, err
	}
	if len(briefs) == 0 {
		return nil, fmt.Errorf("brief %s: %w", id, ErrNotFound)
	}
	return &briefs[0], nil
}

func (r *postgresBriefRepo) ListUnenriched(ctx context.Context, cq CandidateQuery) ([]core.Brief, error) {
	b := psql.Select(briefColumns...).From("neighborhood_briefs").
		Where(sq.Eq{"enriched_at": nil}).
		Where(sq.GtOrEq{"generated_at": cq.Since}).
		OrderBy("generated_at DESC")
	if cq.Limit > 0 {
		b = b.Limit(uint64(cq.Limit))
	}
	return r.list(ctx, b)
}

func (r *postgresBriefRepo) ListRecent(ctx context.Context, rq RecentQuery) ([]core.Brief, error) {
	b := psql.Select(briefColumns...).From("neighborhood_briefs").
		Where(sq.Eq{"neighborhood_id": rq.LocaleID}).
		Where(sq.GtOrEq{"generated_at": rq.Since}).
		OrderBy("generated_at DESC")
	if rq.Limit > 0 {
		b = b.Limit(uint64(rq.Limit))
	}
	return r.list(ctx, b)
}

func (r *postgresBriefRepo) list(ctx context.Context, b sq.SelectBuilder) ([]core.Brief, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list briefs: %w", err)
	}
	return scanBriefs(rows)
}

func (r *postgresBriefRepo) SetEnrichment(ctx context.Context, id string, e core.Enrichment) error {
	set, err := enrichmentSet(e)
	if err != nil {
		return err
	}
	q, args, err := psql.Update("neighborhood_briefs").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("failed to update brief enrichment: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("brief %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanBriefs(rows *sql.Rows) ([]core.Brief, error) {
	defer rows.Close()
	var briefs []core.Brief
	for rows.Next() {
		var b core.Brief
		var e enrichmentScan
		dest := append([]any{&b.ID, &b.LocaleID, &b.Headline, &b.Content, &b.GeneratedAt}, e.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan brief: %w", err)
		}
		enr, err := e.enrichment()
		if err != nil {
			return nil, err
		}
		b.Enrichment = enr
		briefs = append(briefs, b)
	}
	return briefs, rows.Err()
}

var articleColumns = append([]string{
	"id", "neighborhood_id", "headline", "body_text", "preview_text", "slug",
	"status", "published_at", "article_type", "brief_id", "created_at",
}, enrichmentColumns...)

// postgresArticleRepo implements ArticleRepository for PostgreSQL
type postgresArticleRepo struct {
	db *sql.DB
}

func (r *postgresArticleRepo) Create(ctx context.Context, a *core.Article) error {
	var publishedAt sql.NullTime
	if a.PublishedAt != nil {
		publishedAt = nullTime(*a.PublishedAt)
	}
	cols := []string{
		"id", "neighborhood_id", "headline", "body_text", "preview_text", "slug",
		"status", "published_at", "article_type", "brief_id", "created_at",
	}
	vals := []any{
		a.ID, a.LocaleID, a.Headline, a.Body, a.PreviewText, a.Slug,
		string(a.Status), publishedAt, string(a.Type), nullString(a.BriefID), a.CreatedAt,
	}
	if a.Enrichment != nil {
		set, err := enrichmentSet(*a.Enrichment)
		if err != nil {
			return err
		}
		for _, c := range enrichmentColumns {
			cols = append(cols, c)
			vals = append(vals, set[c])
		}
	}
	q, args, err := psql.Insert("articles").Columns(cols...).Values(vals...).ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("failed to insert article %s: %w", a.Slug, mapError(err))
	}
	return nil
}

func (r *postgresArticleRepo) Get(ctx context.Context, id string) (*core.Article, error) {
	return r.one(ctx, sq.Eq{"id": id}, "article "+id)
}

func (r *postgresArticleRepo) GetByBriefID(ctx context.Context, briefID string) (*core.Article, error) {
	return r.one(ctx, sq.Eq{"brief_id": briefID}, "article for brief "+briefID)
}

func (r *postgresArticleRepo) one(ctx context.Context, where sq.Eq, label string) (*core.Article, error) {
	articles, err := r.list(ctx, psql.Select(articleColumns...).From("articles").Where(where).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("%s: %w", label, ErrNotFound)
	}
	return &articles[0], nil
}

func (r *postgresArticleRepo) ListUnenriched(ctx context.Context, cq CandidateQuery) ([]core.Article, error) {
	b := psql.Select(articleColumns...).From("articles").
		Where(sq.Eq{"status": string(core.StatusPublished)}).
		Where(sq.Eq{"enriched_at": nil}).
		Where(sq.GtOrEq{"published_at": cq.Since}).
		OrderBy("published_at DESC")
	b = excludeTypes(b, cq.ExcludeTypes)
	if cq.Limit > 0 {
		b = b.Limit(uint64(cq.Limit))
	}
	return r.list(ctx, b)
}

func (r *postgresArticleRepo) ListRecent(ctx context.Context, rq RecentQuery) ([]core.Article, error) {
	b := psql.Select(articleColumns...).From("articles").
		Where(sq.Eq{"neighborhood_id": rq.LocaleID}).
		Where(sq.Eq{"status": string(core.StatusPublished)}).
		Where(sq.GtOrEq{"published_at": rq.Since}).
		OrderBy("published_at DESC")
	b = excludeTypes(b, rq.ExcludeTypes)
	if rq.Limit > 0 {
		b = b.Limit(uint64(rq.Limit))
	}
	return r.list(ctx, b)
}

func (r *postgresArticleRepo) SetEnrichment(ctx context.Context, id string, e core.Enrichment, previewText string) error {
	set, err := enrichmentSet(e)
	if err != nil {
		return err
	}
	if previewText != "" {
		set["preview_text"] = previewText
	}
	q, args, err := psql.Update("articles").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("failed to update article enrichment: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresArticleRepo) list(ctx context.Context, b sq.SelectBuilder) ([]core.Article, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		var (
			a           core.Article
			status      string
			articleType string
			publishedAt sql.NullTime
			briefID     sql.NullString
			e           enrichmentScan
		)
		dest := append([]any{
			&a.ID, &a.LocaleID, &a.Headline, &a.Body, &a.PreviewText, &a.Slug,
			&status, &publishedAt, &articleType, &briefID, &a.CreatedAt,
		}, e.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		a.Status = core.ArticleStatus(status)
		a.Type = core.ArticleType(articleType)
		a.BriefID = briefID.String
		if publishedAt.Valid {
			t := publishedAt.Time
			a.PublishedAt = &t
		}
		enr, err := e.enrichment()
		if err != nil {
			return nil, err
		}
		a.Enrichment = enr
		articles = append(articles, a)
	}
	return articles, rows.Err()
}
