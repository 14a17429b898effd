package main

import (
	"context"
	"encoding/csv"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"reviewdash/internal/reviews"
	"reviewdash/pkg/database"
	"reviewdash/pkg/models"
	"reviewdash/pkg/utils"
)

var header = []string{
	"ext_key", "source", "app_id", "country", "lang", "rating", "date_iso",
	"date_localized", "year", "helpful_count", "version", "label", "review_text",
}

func main() {
	var (
		out      = flag.String("out", "data/reviews.csv", "output CSV path")
		label    = flag.String("label", "", "label filter (inbox, functional, nonfunctional, domain, general)")
		provider = flag.String("provider", "", "provider filter (play|app)")
		appID    = flag.String("app", "", "app id filter")
	)
	flag.Parse()

	cfg := utils.MustLoadConfig()
	logger, err := utils.NewLogger(cfg.App)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	q := reviews.ListQuery{AppID: *appID, Label: *label}
	if *label != "" && *label != models.LabelInbox && !models.Label(*label).Valid() {
		logger.Fatal("invalid label", zap.String("label", *label))
	}
	if *provider != "" {
		src, err := models.ParseSource(*provider)
		if err != nil {
			logger.Fatal("invalid provider", zap.Error(err))
		}
		q.Sources = []models.Source{src}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db := database.MustOpen(database.ConfigFrom(cfg.Database), logger)
	defer db.Close()

	if err := database.Migrate(db, logger); err != nil {
		logger.Fatal("db migrate failed", zap.Error(err))
	}

	n, err := exportReviews(ctx, reviews.NewRepo(db), q, *out)
	if err != nil {
		logger.Fatal("export reviews failed", zap.Error(err))
	}
	logger.Info("exported reviews", zap.Int("rows", n), zap.String("path", *out))
}

func exportReviews(ctx context.Context, repo *reviews.Repo, q reviews.ListQuery, outPath string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return 0, err
	}

	n := 0
	err = repo.Each(ctx, q, func(rv models.Review) error {
		n++
		return w.Write(record(rv))
	})
	if err != nil {
		return n, err
	}

	w.Flush()
	return n, w.Error()
}

func record(rv models.Review) []string {
	label := ""
	if rv.Label != nil {
		label = *rv.Label
	}
	return []string{
		rv.ExtKey,
		string(rv.Source),
		rv.AppID,
		rv.Country,
		rv.Language,
		strconv.Itoa(rv.Rating),
		rv.DateISO,
		rv.DateLocalized,
		strconv.Itoa(rv.Year),
		strconv.Itoa(rv.HelpfulCount),
		rv.Version,
		label,
		rv.Text,
	}
}
