package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"reviewdash/internal/reviews"
	"reviewdash/pkg/database"
	"reviewdash/pkg/models"
	"reviewdash/pkg/utils"
)

// keys per UPDATE statement
const labelChunk = 500

// clearLabel groups rows whose label cell is empty.
const clearLabel = ""

func main() {
	in := flag.String("in", "data/reviews.csv", "input CSV with ext_key and label columns")
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

	f, err := os.Open(*in)
	if err != nil {
		logger.Fatal("open input failed", zap.Error(err))
	}
	defer f.Close()

	groups, skipped, err := readLabels(f)
	if err != nil {
		logger.Fatal("read labels failed", zap.Error(err))
	}

	repo := reviews.NewRepo(db)
	updated, err := applyLabels(ctx, repo, groups)
	if err != nil {
		logger.Fatal("apply labels failed", zap.Error(err))
	}

	cache := reviews.NewCache(cfg.Redis, logger)
	if err := cache.Invalidate(ctx); err != nil {
		logger.Warn("invalidate cache failed", zap.Error(err))
	}

	logger.Info("imported labels",
		zap.String("path", *in),
		zap.Int("updated", updated),
		zap.Int("skipped", skipped))
}

// readLabels groups ext_keys by label. Rows with an unknown label are
// skipped and counted; an empty label cell clears the label.
func readLabels(r io.Reader) (map[string][]string, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := readHeader(cr)
	if err != nil {
		return nil, 0, err
	}
	if _, ok := header["ext_key"]; !ok {
		return nil, 0, errors.New("missing ext_key column")
	}
	if _, ok := header["label"]; !ok {
		return nil, 0, errors.New("missing label column")
	}

	groups := make(map[string][]string)
	skipped := 0
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("line %d: %w", line, err)
		}

		key := valueAt(header, row, "ext_key")
		label := strings.ToLower(valueAt(header, row, "label"))
		if key == "" || (label != clearLabel && !models.Label(label).Valid()) {
			skipped++
			continue
		}
		groups[label] = append(groups[label], key)
	}
	return groups, skipped, nil
}

func applyLabels(ctx context.Context, repo *reviews.Repo, groups map[string][]string) (int, error) {
	labels := make([]string, 0, len(groups))
	for l := range groups {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	total := 0
	for _, l := range labels {
		raw := l
		label, err := models.ParseLabel(&raw)
		if err != nil {
			return total, err
		}
		keys := groups[l]
		for start := 0; start < len(keys); start += labelChunk {
			end := min(start+labelChunk, len(keys))
			n, err := repo.SetLabel(ctx, keys[start:end], label)
			if err != nil {
				return total, err
			}
			total += n
		}
	}
	return total, nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
