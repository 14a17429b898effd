package reviews

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"reviewdash/pkg/database"
	"reviewdash/pkg/models"
	"reviewdash/pkg/tracing"
)

const (
	table = "store_reviews"

	// rows per INSERT statement inside one batch transaction
	upsertChunk = 100
	// summary average is computed over at most this many rows
	summarySample = 2000

	SortDateDesc    = "date_desc"
	SortHelpfulDesc = "helpful_desc"
)

var ErrNoIDs = errors.New("ids required")

var selectColumns = []string{
	"id", "ext_key", "rating", "review_text", "version", "date_iso", "date_localized",
	"year", "helpful_count", "source", "app_id", "country", "lang", "label", "created_at",
}

var insertColumns = []string{
	"ext_key", "rating", "review_text", "version", "date_iso", "date_localized",
	"year", "helpful_count", "source", "app_id", "country", "lang",
}

type Repo struct {
	DB     *sqlx.DB
	flavor sqlbuilder.Flavor
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{DB: db, flavor: database.Flavor(db.DriverName())}
}

// UpsertBatch inserts rows, ignoring any whose ext_key already exists, and
// returns the number of new rows. The batch commits atomically.
func (r *Repo) UpsertBatch(ctx context.Context, rows []models.Review) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	ctx, span := tracing.StartSpan(ctx, "reviews.Repo.UpsertBatch")
	defer span.End()

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, database.Wrap("begin upsert", err)
	}
	defer tx.Rollback()

	inserted := 0
	for start := 0; start < len(rows); start += upsertChunk {
		end := min(start+upsertChunk, len(rows))

		ib := r.flavor.NewInsertBuilder()
		ib.InsertInto(table).Cols(insertColumns...)
		for _, rv := range rows[start:end] {
			ib.Values(
				rv.ExtKey, rv.Rating, rv.Text, rv.Version, rv.DateISO, rv.DateLocalized,
				rv.Year, rv.HelpfulCount, string(rv.Source), rv.AppID, rv.Country, rv.Language,
			)
		}
		ib.SQL("ON CONFLICT (ext_key) DO NOTHING")

		query, args := ib.Build()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, database.Wrap("upsert reviews", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, database.Wrap("upsert rows affected", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, database.Wrap("commit upsert", err)
	}
	return inserted, nil
}

// SetLabel assigns label (nil clears it) to every review whose ext_key is in
// keys and returns the number of rows updated.
func (r *Repo) SetLabel(ctx context.Context, keys []string, label *models.Label) (int, error) {
	uniq := make([]any, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		uniq = append(uniq, k)
	}
	if len(uniq) == 0 {
		return 0, ErrNoIDs
	}

	ctx, span := tracing.StartSpan(ctx, "reviews.Repo.SetLabel")
	defer span.End()

	var value any
	if label != nil {
		value = string(*label)
	}

	ub := r.flavor.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(ub.Assign("label", value))
	ub.Where(ub.In("ext_key", uniq...))

	query, args := ub.Build()
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, database.Wrap("set label", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, database.Wrap("set label rows affected", err)
	}
	return int(n), nil
}

type ListQuery struct {
	Sources []models.Source
	AppID   string
	Year    int
	Ratings []int
	Label   string // "", "inbox" or a label value
	Sort    string
	Limit   int
	Offset  int
}

func (q *ListQuery) clamp() {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

func (r *Repo) applyFilters(sb *sqlbuilder.SelectBuilder, q ListQuery) {
	if len(q.Sources) > 0 {
		vals := make([]any, 0, len(q.Sources))
		for _, s := range q.Sources {
			vals = append(vals, string(s))
		}
		sb.Where(sb.In("source", vals...))
	}
	if q.AppID != "" {
		sb.Where(sb.Equal("app_id", q.AppID))
	}
	if q.Year > 0 {
		sb.Where(sb.Equal("year", q.Year))
	}
	if len(q.Ratings) > 0 {
		vals := make([]any, 0, len(q.Ratings))
		for _, v := range q.Ratings {
			vals = append(vals, v)
		}
		sb.Where(sb.In("rating", vals...))
	}
	switch q.Label {
	case "":
	case models.LabelInbox:
		sb.Where(sb.IsNull("label"))
	default:
		sb.Where(sb.Equal("label", q.Label))
	}
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sb := r.flavor.NewSelectBuilder()
	sb.Select("COUNT(*)").From(table)
	r.applyFilters(sb, q)

	query, args := sb.Build()
	var total int
	if err := r.DB.GetContext(ctx, &total, query, args...); err != nil {
		return 0, database.Wrap("count reviews", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Review, error) {
	q.clamp()
	ctx, span := tracing.StartSpan(ctx, "reviews.Repo.List")
	defer span.End()

	sb := r.listBuilder(q)
	sb.Limit(q.Limit).Offset(q.Offset)

	query, args := sb.Build()
	out := make([]models.Review, 0, q.Limit)
	if err := r.DB.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, database.Wrap("list reviews", err)
	}
	return out, nil
}

func (r *Repo) listBuilder(q ListQuery) *sqlbuilder.SelectBuilder {
	sb := r.flavor.NewSelectBuilder()
	sb.Select(selectColumns...).From(table)
	r.applyFilters(sb, q)
	if q.Sort == SortHelpfulDesc {
		sb.OrderBy("helpful_count DESC", "date_iso DESC", "id DESC")
	} else {
		sb.OrderBy("date_iso DESC", "id DESC")
	}
	return sb
}

// Each streams every review matching q (limit and offset ignored) to fn.
func (r *Repo) Each(ctx context.Context, q ListQuery, fn func(models.Review) error) error {
	query, args := r.listBuilder(q).Build()
	rows, err := r.DB.QueryxContext(ctx, query, args...)
	if err != nil {
		return database.Wrap("stream reviews", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rv models.Review
		if err := rows.StructScan(&rv); err != nil {
			return database.Wrap("scan review", err)
		}
		if err := fn(rv); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return database.Wrap("stream reviews", err)
	}
	return nil
}

// Latest returns the most recently inserted reviews.
func (r *Repo) Latest(ctx context.Context, limit int) ([]models.Review, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	sb := r.flavor.NewSelectBuilder()
	sb.Select(selectColumns...).From(table).OrderBy("created_at DESC", "id DESC").Limit(limit)

	query, args := sb.Build()
	out := make([]models.Review, 0, limit)
	if err := r.DB.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, database.Wrap("latest reviews", err)
	}
	return out, nil
}

func (r *Repo) GetByExtKey(ctx context.Context, key string) (*models.Review, error) {
	sb := r.flavor.NewSelectBuilder()
	sb.Select(selectColumns...).From(table).Where(sb.Equal("ext_key", key))

	query, args := sb.Build()
	var rv models.Review
	if err := r.DB.GetContext(ctx, &rv, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, database.Wrap("get review", err)
	}
	return &rv, nil
}

type groupCount struct {
	Key sql.NullString `db:"k"`
	N   int            `db:"n"`
}

func (r *Repo) groupCounts(ctx context.Context, column string) ([]groupCount, error) {
	sb := r.flavor.NewSelectBuilder()
	sb.Select(column+" AS k", "COUNT(*) AS n").From(table).GroupBy(column)

	query, args := sb.Build()
	var out []groupCount
	if err := r.DB.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, database.Wrap("count by "+column, err)
	}
	return out, nil
}

// Summary returns the total count, per-rating counts and the average rating
// over a bounded sample of rows.
func (r *Repo) Summary(ctx context.Context) (models.Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "reviews.Repo.Summary")
	defer span.End()

	s := models.EmptySummary()

	byRating, err := r.groupCounts(ctx, "rating")
	if err != nil {
		return s, err
	}
	for _, g := range byRating {
		s.TotalCount += g.N
		if rating, err := strconv.Atoi(g.Key.String); err == nil && rating >= 1 && rating <= 5 {
			s.RatingCounts[rating] += g.N
		}
	}

	sample := r.flavor.NewSelectBuilder()
	sample.Select("rating").From(table).OrderBy("id DESC").Limit(summarySample)

	sb := r.flavor.NewSelectBuilder()
	sb.Select("CAST(COALESCE(AVG(rating), 0) AS DOUBLE PRECISION)").From(sb.BuilderAs(sample, "sample"))

	query, args := sb.Build()
	var avg float64
	if err := r.DB.GetContext(ctx, &avg, query, args...); err != nil {
		return s, database.Wrap("average rating", err)
	}
	s.Avg = math.Round(avg*100) / 100
	return s, nil
}

func (r *Repo) LabelCounts(ctx context.Context) (models.LabelCounts, error) {
	var c models.LabelCounts

	groups, err := r.groupCounts(ctx, "label")
	if err != nil {
		return c, err
	}
	for _, g := range groups {
		c.Total += g.N
		if !g.Key.Valid {
			c.Inbox += g.N
			continue
		}
		switch models.Label(g.Key.String) {
		case models.LabelFunctional:
			c.Functional += g.N
		case models.LabelNonfunctional:
			c.Nonfunctional += g.N
		case models.LabelDomain:
			c.Domain += g.N
		case models.LabelGeneral:
			c.General += g.N
		}
	}
	return c, nil
}
