package apps

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"reviewdash/internal/scraper"
	"reviewdash/pkg/models"
	"reviewdash/pkg/tracing"
)

// Store is the persistence the metadata service needs.
type Store interface {
	Upsert(ctx context.Context, source models.Source, appID string, title *string, releasedYear *int) (*models.AppMeta, error)
}

// SourceLookup resolves a provider adapter by name.
type SourceLookup interface {
	Source(name models.Source) (scraper.Source, error)
}

type Meta struct {
	Title        *string `json:"title"`
	ReleasedYear *int    `json:"releasedYear"`
}

type FetchResult struct {
	Meta  Meta            `json:"meta"`
	Raw   any             `json:"raw,omitempty"`
	Saved *models.AppMeta `json:"saved,omitempty"`
}

type Service struct {
	store          Store
	sources        SourceLookup
	retry          scraper.RetryPolicy
	defaultCountry string
	logger         *zap.Logger
}

func NewService(store Store, sources SourceLookup, retry scraper.RetryPolicy, defaultCountry string, logger *zap.Logger) *Service {
	return &Service{
		store:          store,
		sources:        sources,
		retry:          retry,
		defaultCountry: defaultCountry,
		logger:         logger,
	}
}

// Fetch reads app metadata from the provider. In debug mode the raw provider
// payload is returned and nothing is written.
func (s *Service) Fetch(ctx context.Context, source models.Source, appID, country string, debug bool) (*FetchResult, error) {
	src, err := s.sources.Source(source)
	if err != nil {
		return nil, err
	}
	appID, err = src.NormalizeAppID(appID)
	if err != nil {
		return nil, err
	}
	if country = strings.ToLower(strings.TrimSpace(country)); country == "" {
		country = s.defaultCountry
	}

	ctx, span := tracing.StartSpan(ctx, "apps.Service.Fetch")
	defer span.End()

	var raw *scraper.RawMeta
	err = s.retry.Do(ctx, func(int) error {
		m, err := src.FetchMetadata(ctx, appID, country)
		if err != nil {
			return err
		}
		raw = m
		return nil
	}, func(attempt int, wait time.Duration, err error) {
		s.logger.Warn("metadata fetch failed, retrying",
			zap.String("source", string(source)),
			zap.String("app_id", appID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	})
	if err != nil {
		return nil, err
	}

	res := &FetchResult{Meta: Meta{ReleasedYear: scraper.ReleaseYear(raw.ReleaseDate)}}
	if t := strings.TrimSpace(raw.Title); t != "" {
		res.Meta.Title = &t
	}

	if debug {
		res.Raw = raw.Payload
		return res, nil
	}

	saved, err := s.store.Upsert(ctx, source, appID, res.Meta.Title, res.Meta.ReleasedYear)
	if err != nil {
		return nil, err
	}
	res.Saved = saved
	s.logger.Info("app metadata saved",
		zap.String("source", string(source)),
		zap.String("app_id", appID))
	return res, nil
}
