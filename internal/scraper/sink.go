package scraper

import (
	"context"

	"reviewdash/pkg/models"
)

// Sink persists canonical reviews. Writing an existing ext_key must be a
// silent no-op; the returned count only includes new rows.
type Sink interface {
	UpsertBatch(ctx context.Context, rows []models.Review) (int, error)
}

// batcher accumulates rows and flushes them to the sink once size is reached.
type batcher struct {
	sink     Sink
	size     int
	pending  []models.Review
	inserted int
	flushes  int
}

func newBatcher(sink Sink, size int) *batcher {
	if size <= 0 {
		size = 500
	}
	return &batcher{sink: sink, size: size, pending: make([]models.Review, 0, size)}
}

func (b *batcher) add(ctx context.Context, r models.Review) error {
	b.pending = append(b.pending, r)
	if len(b.pending) >= b.size {
		return b.flush(ctx)
	}
	return nil
}

func (b *batcher) flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	n, err := b.sink.UpsertBatch(ctx, b.pending)
	if err != nil {
		return err
	}
	b.inserted += n
	b.flushes++
	b.pending = make([]models.Review, 0, b.size)
	return nil
}
