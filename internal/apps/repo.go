package apps

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"reviewdash/pkg/database"
	"reviewdash/pkg/models"
)

const table = "apps"

var columns = []string{"id", "source", "app_id", "title", "released_year", "updated_at"}

type Repo struct {
	DB     *sqlx.DB
	flavor sqlbuilder.Flavor
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{DB: db, flavor: database.Flavor(db.DriverName())}
}

// Upsert writes the metadata for (source, appID), overwriting title and
// released year of an existing row, and returns the stored row.
func (r *Repo) Upsert(ctx context.Context, source models.Source, appID string, title *string, releasedYear *int) (*models.AppMeta, error) {
	ib := r.flavor.NewInsertBuilder()
	ib.InsertInto(table).
		Cols("source", "app_id", "title", "released_year", "updated_at").
		Values(string(source), appID, title, releasedYear, time.Now().UTC())
	ib.SQL(`ON CONFLICT (source, app_id) DO UPDATE SET
		title = excluded.title,
		released_year = excluded.released_year,
		updated_at = excluded.updated_at`)

	query, args := ib.Build()
	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		return nil, database.Wrap("upsert app", err)
	}
	return r.Get(ctx, source, appID)
}

func (r *Repo) Get(ctx context.Context, source models.Source, appID string) (*models.AppMeta, error) {
	sb := r.flavor.NewSelectBuilder()
	sb.Select(columns...).From(table).Where(
		sb.Equal("source", string(source)),
		sb.Equal("app_id", appID),
	)

	query, args := sb.Build()
	var m models.AppMeta
	if err := r.DB.GetContext(ctx, &m, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, database.Wrap("get app", err)
	}
	return &m, nil
}

func (r *Repo) Count(ctx context.Context) (int, error) {
	sb := r.flavor.NewSelectBuilder()
	sb.Select("COUNT(*)").From(table)

	query, args := sb.Build()
	var n int
	if err := r.DB.GetContext(ctx, &n, query, args...); err != nil {
		return 0, database.Wrap("count apps", err)
	}
	return n, nil
}

func (r *Repo) List(ctx context.Context, limit, offset int) ([]models.AppMeta, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	sb := r.flavor.NewSelectBuilder()
	sb.Select(columns...).From(table).OrderBy("updated_at DESC", "id DESC").Limit(limit).Offset(offset)

	query, args := sb.Build()
	out := make([]models.AppMeta, 0, limit)
	if err := r.DB.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, database.Wrap("list apps", err)
	}
	return out, nil
}
