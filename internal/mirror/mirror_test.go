package mirror

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"reviewdash/internal/scraper"
	"reviewdash/pkg/utils"
)

func fixture(n int) *Snapshot {
	s := &Snapshot{}
	for i := 0; i < n; i++ {
		s.Add("123", Review{
			ID:      fmt.Sprintf("r%03d", i),
			Text:    fmt.Sprintf("review %d", i),
			Rating:  1 + i%5,
			Version: "1.0",
			Updated: fmt.Sprintf("2024-01-01T00:%02d:%02d-07:00", i/60, i%60),
			Votes:   i % 3,
		})
	}
	s.Apps["123"].Title = "Example"
	s.Apps["123"].ReleaseDate = "2016-07-13T07:00:00Z"
	return s
}

func TestSnapshotPage(t *testing.T) {
	s := fixture(120)

	first := s.Page("123", 1)
	require.Len(t, first, PageSize)
	assert.Equal(t, "r119", first[0].ID)
	assert.Len(t, s.Page("123", 3), 20)
	assert.Empty(t, s.Page("123", 4))
	assert.Empty(t, s.Page("123", 0))
	assert.Empty(t, s.Page("999", 1))

	// stored order is untouched
	assert.Equal(t, "r000", s.Apps["123"].Reviews[0].ID)
}

func TestSnapshotSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.json")
	require.NoError(t, fixture(3).Save(path))

	s, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, s.Apps, "123")
	assert.Equal(t, "Example", s.Apps["123"].Title)
	assert.Len(t, s.Apps["123"].Reviews, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func newMirrorServer(t *testing.T, snap *Snapshot) (*httptest.Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "mirror.json")
	require.NoError(t, snap.Save(path))

	r := gin.New()
	NewHandler(path, zaptest.NewLogger(t)).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, path
}

func TestHandler_BadFeedPath(t *testing.T) {
	srv, _ := newMirrorServer(t, fixture(1))

	resp, err := http.Get(srv.URL + "/feed/th/rss/customerreviews/p3/id=123/sortby=mostrecent/json")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_Reload(t *testing.T) {
	srv, path := newMirrorServer(t, fixture(1))
	src := scraper.NewAppStoreSource(utils.AppStoreConfig{RSSBaseURL: srv.URL + "/feed", LookupBaseURL: srv.URL})
	ctx := context.Background()

	page, err := src.FetchReviewPage(ctx, scraper.PageQuery{AppID: "123", Country: "th", Language: "th", Page: 1})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	require.NoError(t, fixture(5).Save(path))
	resp, err := http.Post(srv.URL+"/reload", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	page, err = src.FetchReviewPage(ctx, scraper.PageQuery{AppID: "123", Country: "th", Language: "th", Page: 1})
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
}

// The App Store adapter reads the mirror exactly like the live feed.
func TestMirrorServesAppStoreSource(t *testing.T) {
	srv, _ := newMirrorServer(t, fixture(60))
	src := scraper.NewAppStoreSource(utils.AppStoreConfig{RSSBaseURL: srv.URL + "/feed", LookupBaseURL: srv.URL})
	ctx := context.Background()

	page, err := src.FetchReviewPage(ctx, scraper.PageQuery{AppID: "123", Country: "th", Language: "th", Page: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, PageSize)

	item := page.Items[0]
	assert.Equal(t, "r059", item.NativeID)
	assert.Equal(t, "review 59", item.Text)
	assert.Equal(t, "5", item.Rating)
	require.NotNil(t, item.Helpful)
	assert.Equal(t, 59%3, *item.Helpful)

	rv, reason := scraper.Normalize(src.Name(), item, "123", "th", "th")
	require.Equal(t, scraper.RejectNone, reason)
	assert.Equal(t, "app:123:r059", rv.ExtKey)
	assert.Equal(t, "2024-01-01", rv.DateISO)

	page, err = src.FetchReviewPage(ctx, scraper.PageQuery{AppID: "123", Country: "th", Language: "th", Page: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 10)

	page, err = src.FetchReviewPage(ctx, scraper.PageQuery{AppID: "456", Country: "th", Language: "th", Page: 1})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	meta, err := src.FetchMetadata(ctx, "123", "th")
	require.NoError(t, err)
	assert.Equal(t, "Example", meta.Title)
	assert.Equal(t, 2016, *scraper.ReleaseYear(meta.ReleaseDate))

	_, err = src.FetchMetadata(ctx, "456", "th")
	assert.True(t, scraper.IsPermanent(err))
}
