package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"reviewdash/internal/metrics"
	"reviewdash/internal/notify"
	"reviewdash/pkg/models"
	"reviewdash/pkg/tracing"
	"reviewdash/pkg/utils"
)

type Options struct {
	BatchSize       int
	DefaultMaxPages int
	HardMaxPages    int
	// PageDelay is the minimum gap between two page requests to one provider.
	PageDelay       time.Duration
	DefaultCountry  string
	DefaultLanguage string
	Retry           RetryPolicy
	Publisher       notify.Publisher
}

func OptionsFrom(cfg utils.IngestConfig) Options {
	return Options{
		BatchSize:       cfg.BatchSize,
		DefaultMaxPages: cfg.DefaultMaxPages,
		HardMaxPages:    cfg.HardMaxPages,
		PageDelay:       cfg.PageDelay,
		DefaultCountry:  cfg.DefaultCountry,
		DefaultLanguage: cfg.DefaultLanguage,
		Retry:           RetryPolicyFrom(cfg),
	}
}

type Request struct {
	Source    models.Source
	AppID     string
	Countries []string
	Languages []string
	MaxPages  int
}

type Result struct {
	RunID              string         `json:"runId"`
	Source             models.Source  `json:"provider"`
	AppID              string         `json:"appId"`
	Countries          []string       `json:"countries"`
	Languages          []string       `json:"languages"`
	MaxPages           int            `json:"maxPages"`
	Pages              int            `json:"pages"`
	Seen               int            `json:"seen"`
	Rejected           int            `json:"rejected"`
	Rejections         map[string]int `json:"rejections"`
	Accepted           int            `json:"accepted"`
	Inserted           int            `json:"upserted"`
	CombinationsTried  int            `json:"combinationsTried"`
	CombinationsFailed []string       `json:"combinationsFailed"`
	StartedAt          time.Time      `json:"startedAt"`
	FinishedAt         time.Time      `json:"finishedAt"`
}

// Driver pages through a provider for every requested country/language
// combination, normalizes items and upserts them in batches.
type Driver struct {
	sources map[models.Source]Source
	sink    Sink
	opts    Options
	logger  *zap.Logger

	mu       sync.Mutex
	limiters map[models.Source]*rate.Limiter
}

func NewDriver(sink Sink, logger *zap.Logger, opts Options, sources ...Source) *Driver {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.DefaultMaxPages <= 0 {
		opts.DefaultMaxPages = 10
	}
	if opts.HardMaxPages <= 0 {
		opts.HardMaxPages = 50
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Publisher == nil {
		opts.Publisher = notify.NopPublisher{}
	}

	d := &Driver{
		sources:  make(map[models.Source]Source, len(sources)),
		sink:     sink,
		opts:     opts,
		logger:   logger,
		limiters: make(map[models.Source]*rate.Limiter),
	}
	for _, s := range sources {
		d.sources[s.Name()] = s
	}
	return d
}

// Source returns the adapter registered for name.
func (d *Driver) Source(name models.Source) (Source, error) {
	src, ok := d.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return src, nil
}

func (d *Driver) Defaults() (country, language string) {
	return d.opts.DefaultCountry, d.opts.DefaultLanguage
}

func (d *Driver) limiter(name models.Source) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[name]
	if !ok {
		if d.opts.PageDelay > 0 {
			l = rate.NewLimiter(rate.Every(d.opts.PageDelay), 1)
		} else {
			l = rate.NewLimiter(rate.Inf, 1)
		}
		d.limiters[name] = l
	}
	return l
}

// waitTurn blocks until the provider's page delay has passed. A delay that
// would outlast the context deadline fails as context.DeadlineExceeded.
func (d *Driver) waitTurn(ctx context.Context, name models.Source) error {
	if err := d.limiter(name).Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return nil
}

func (d *Driver) maxPages(requested int) int {
	n := requested
	if n <= 0 {
		n = d.opts.DefaultMaxPages
	}
	if n > d.opts.HardMaxPages {
		n = d.opts.HardMaxPages
	}
	return n
}

func cleanList(values []string, def string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		out = append(out, strings.ToLower(def))
	}
	return out
}

// Run ingests reviews for one app. A failed combination is recorded in the
// result and does not stop the run; permanent provider errors, store errors
// and cancellation do, and are returned together with the partial result.
func (d *Driver) Run(ctx context.Context, req Request) (*Result, error) {
	src, err := d.Source(req.Source)
	if err != nil {
		return nil, err
	}
	appID, err := src.NormalizeAppID(req.AppID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:      uuid.NewString(),
		Source:     src.Name(),
		AppID:      appID,
		Countries:  cleanList(req.Countries, d.opts.DefaultCountry),
		Languages:  cleanList(req.Languages, d.opts.DefaultLanguage),
		MaxPages:   d.maxPages(req.MaxPages),
		Rejections: map[string]int{string(RejectEmptyText): 0, string(RejectUndated): 0},
		StartedAt:  time.Now().UTC(),
	}
	res.CombinationsFailed = []string{}

	ctx, span := tracing.StartSpan(ctx, "scraper.Driver.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", res.RunID),
		attribute.String("source", string(res.Source)),
		attribute.String("app_id", appID),
	)

	logger := d.logger.With(
		zap.String("run_id", res.RunID),
		zap.String("source", string(res.Source)),
		zap.String("app_id", appID),
	)
	logger.Info("ingestion started",
		zap.Strings("countries", res.Countries),
		zap.Strings("languages", res.Languages),
		zap.Int("max_pages", res.MaxPages))

	b := newBatcher(d.sink, d.opts.BatchSize)
	var runErr error

combinations:
	for _, country := range res.Countries {
		for _, lang := range res.Languages {
			if runErr = d.runCombination(ctx, src, b, res, country, lang, logger); runErr != nil {
				break combinations
			}
		}
	}

	// a permanent provider error still commits what was already accepted
	if runErr == nil || IsPermanent(runErr) {
		if err := b.flush(ctx); err != nil && runErr == nil {
			runErr = err
		}
	}
	res.Inserted = b.inserted
	res.FinishedAt = time.Now().UTC()

	metrics.ItemsInserted.WithLabelValues(string(res.Source)).Add(float64(res.Inserted))

	fields := []zap.Field{
		zap.Int("seen", res.Seen),
		zap.Int("rejected", res.Rejected),
		zap.Int("inserted", res.Inserted),
		zap.Int("pages", res.Pages),
		zap.Int("combinations_tried", res.CombinationsTried),
		zap.Strings("combinations_failed", res.CombinationsFailed),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		logger.Error("ingestion aborted", append(fields, zap.Error(runErr))...)
	} else {
		logger.Info("ingestion finished", fields...)
	}

	d.publish(ctx, res, runErr, logger)
	return res, runErr
}

func (d *Driver) runCombination(ctx context.Context, src Source, b *batcher, res *Result, country, lang string, logger *zap.Logger) error {
	res.CombinationsTried++
	combo := country + "/" + lang
	name := string(src.Name())
	logger = logger.With(zap.String("country", country), zap.String("lang", lang))

	token := ""
	for page := 1; page <= res.MaxPages; page++ {
		if err := d.waitTurn(ctx, src.Name()); err != nil {
			return err
		}

		raw, err := d.fetchPage(ctx, src, PageQuery{
			AppID:    res.AppID,
			Country:  country,
			Language: lang,
			Page:     page,
			Token:    token,
		}, logger.With(zap.Int("page", page)))
		if err != nil {
			if IsTransient(err) {
				res.CombinationsFailed = append(res.CombinationsFailed, fmt.Sprintf("%s#page%d", combo, page))
				metrics.Combinations.WithLabelValues(name, "failed").Inc()
				logger.Warn("combination failed", zap.Int("page", page), zap.Error(err))
				return nil
			}
			return err
		}
		res.Pages++

		if len(raw.Items) == 0 {
			break
		}
		res.Seen += len(raw.Items)
		metrics.ItemsSeen.WithLabelValues(name).Add(float64(len(raw.Items)))

		for _, item := range raw.Items {
			review, reason := Normalize(src.Name(), item, res.AppID, country, lang)
			if reason != RejectNone {
				res.Rejected++
				res.Rejections[string(reason)]++
				metrics.ItemsRejected.WithLabelValues(name, string(reason)).Inc()
				continue
			}
			res.Accepted++
			if err := b.add(ctx, review); err != nil {
				return err
			}
		}

		if exhausted(src, raw) {
			break
		}
		token = raw.NextToken
	}

	metrics.Combinations.WithLabelValues(name, "ok").Inc()
	return nil
}

func (d *Driver) fetchPage(ctx context.Context, src Source, q PageQuery, logger *zap.Logger) (*RawPage, error) {
	ctx, span := tracing.StartSpan(ctx, "scraper.fetchPage")
	defer span.End()
	span.SetAttributes(
		attribute.String("country", q.Country),
		attribute.String("lang", q.Language),
		attribute.Int("page", q.Page),
	)

	name := string(src.Name())
	var page *RawPage
	err := d.opts.Retry.Do(ctx, func(attempt int) error {
		p, err := src.FetchReviewPage(ctx, q)
		if err != nil {
			metrics.ProviderRequests.WithLabelValues(name, outcome(err)).Inc()
			return err
		}
		metrics.ProviderRequests.WithLabelValues(name, "ok").Inc()
		page = p
		return nil
	}, func(attempt int, wait time.Duration, err error) {
		logger.Warn("page fetch failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return page, nil
}

func outcome(err error) string {
	switch {
	case IsTransient(err):
		return "transient"
	case IsPermanent(err):
		return "permanent"
	}
	return "error"
}

func (d *Driver) publish(ctx context.Context, res *Result, runErr error, logger *zap.Logger) {
	ev := notify.IngestEvent{
		Type:               notify.IngestCompletedType,
		RunID:              res.RunID,
		Source:             string(res.Source),
		AppID:              res.AppID,
		Countries:          res.Countries,
		Languages:          res.Languages,
		Seen:               res.Seen,
		Rejected:           res.Rejected,
		Inserted:           res.Inserted,
		CombinationsTried:  res.CombinationsTried,
		CombinationsFailed: res.CombinationsFailed,
		StartedAt:          res.StartedAt,
		FinishedAt:         res.FinishedAt,
	}
	if runErr != nil {
		ev.Error = runErr.Error()
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.opts.Publisher.PublishIngest(pubCtx, ev); err != nil {
		logger.Warn("publish ingest event failed", zap.Error(err))
	}
}
