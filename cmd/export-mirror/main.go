package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"reviewdash/internal/apps"
	"reviewdash/internal/mirror"
	"reviewdash/internal/reviews"
	"reviewdash/pkg/database"
	"reviewdash/pkg/models"
	"reviewdash/pkg/utils"
)

func main() {
	var (
		outPath = flag.String("out", "data/mirror.json", "output JSON path")
		appID   = flag.String("app", "", "only export this App Store id")
	)
	flag.Parse()

	cfg := utils.MustLoadConfig()
	logger, err := utils.NewLogger(cfg.App)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db := database.MustOpen(database.ConfigFrom(cfg.Database), logger)
	defer db.Close()

	if err := database.Migrate(db, logger); err != nil {
		logger.Fatal("db migrate failed", zap.Error(err))
	}

	snap, err := buildSnapshot(ctx, reviews.NewRepo(db), apps.NewRepo(db), *appID)
	if err != nil {
		logger.Fatal("export mirror failed", zap.Error(err))
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		logger.Fatal("create output dir failed", zap.Error(err))
	}
	if err := snap.Save(*outPath); err != nil {
		logger.Fatal("write mirror failed", zap.Error(err))
	}
	logger.Info("exported mirror", zap.Int("apps", len(snap.Apps)), zap.String("path", *outPath))
}

func buildSnapshot(ctx context.Context, rv *reviews.Repo, ar *apps.Repo, appID string) (*mirror.Snapshot, error) {
	snap := &mirror.Snapshot{Apps: map[string]*mirror.App{}}
	q := reviews.ListQuery{Sources: []models.Source{models.SourceAppStore}, AppID: appID}

	err := rv.Each(ctx, q, func(r models.Review) error {
		id := strings.TrimPrefix(r.ExtKey, fmt.Sprintf("%s:%s:", r.Source, r.AppID))
		snap.Add(r.AppID, mirror.Review{
			ID:      id,
			Text:    r.Text,
			Rating:  r.Rating,
			Version: r.Version,
			Updated: r.DateISO,
			Votes:   r.HelpfulCount,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	for id, app := range snap.Apps {
		meta, err := ar.Get(ctx, models.SourceAppStore, id)
		if err != nil {
			return nil, err
		}
		if meta == nil {
			continue
		}
		if meta.Title != nil {
			app.Title = *meta.Title
		}
		if meta.ReleasedYear != nil {
			app.ReleaseDate = fmt.Sprintf("%04d-01-01T00:00:00Z", *meta.ReleasedYear)
		}
	}
	return snap, nil
}
