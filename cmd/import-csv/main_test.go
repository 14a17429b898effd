package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewdash/internal/reviews"
	"reviewdash/pkg/database/dbtest"
	"reviewdash/pkg/models"
)

func TestReadLabels(t *testing.T) {
	in := `review_text,Label,ext_key
"great, really",functional,play:p:a
meh,GENERAL,play:p:b
spam,junk,play:p:c
cleared,,play:p:d
,functional,
`
	groups, skipped, err := readLabels(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, 2, skipped)
	assert.Equal(t, map[string][]string{
		"functional": {"play:p:a"},
		"general":    {"play:p:b"},
		"":           {"play:p:d"},
	}, groups)
}

func TestReadLabels_MissingColumns(t *testing.T) {
	_, _, err := readLabels(strings.NewReader("ext_key,text\nk,v\n"))
	assert.ErrorContains(t, err, "label")

	_, _, err = readLabels(strings.NewReader("label\nfunctional\n"))
	assert.ErrorContains(t, err, "ext_key")
}

func TestApplyLabels(t *testing.T) {
	repo := reviews.NewRepo(dbtest.Open(t))
	ctx := context.Background()

	rows := make([]models.Review, 0, 3)
	for _, k := range []string{"a", "b", "c"} {
		rows = append(rows, models.Review{
			ExtKey: "play:p:" + k, Text: k, DateISO: "2024-01-01", Year: 2024,
			Source: models.SourcePlay, AppID: "p",
		})
	}
	_, err := repo.UpsertBatch(ctx, rows)
	require.NoError(t, err)

	domain := models.LabelDomain
	_, err = repo.SetLabel(ctx, []string{"play:p:c"}, &domain)
	require.NoError(t, err)

	updated, err := applyLabels(ctx, repo, map[string][]string{
		"general": {"play:p:a", "play:p:b"},
		"":        {"play:p:c"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, updated)

	counts, err := repo.LabelCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.LabelCounts{Total: 3, Inbox: 1, General: 2}, counts)
}
