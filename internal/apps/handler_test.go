package apps

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"reviewdash/internal/scraper"
	"reviewdash/pkg/database/dbtest"
	"reviewdash/pkg/models"
)

func newAppsRouter(t *testing.T, src *stubSource) (*gin.Engine, *Repo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	repo := NewRepo(dbtest.Open(t))
	svc := NewService(repo, stubLookup{src}, noSleep(), "th", logger)

	r := gin.New()
	NewHandler(repo, svc, logger).RegisterRoutes(r.Group("/api"))
	return r, repo
}

func call(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFetchMetaEndpoint(t *testing.T) {
	src := &stubSource{
		name: models.SourcePlay,
		meta: &scraper.RawMeta{Title: "Example", ReleaseDate: "Oct 3, 2019", Payload: map[string]any{"og:title": "Example"}},
	}
	r, repo := newAppsRouter(t, src)

	w := call(r, http.MethodPost, "/api/apps/meta", `{"provider": "play", "appId": "com.example", "debug": true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"raw":{"og:title":"Example"}`)

	saved, err := repo.Get(context.Background(), models.SourcePlay, "com.example")
	require.NoError(t, err)
	assert.Nil(t, saved)

	w = call(r, http.MethodPost, "/api/apps/meta", `{"provider": "play", "appId": "com.example"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		OK   bool `json:"ok"`
		Meta Meta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "Example", *resp.Meta.Title)
	assert.Equal(t, 2019, *resp.Meta.ReleasedYear)
	assert.NotContains(t, w.Body.String(), `"raw"`)

	w = call(r, http.MethodGet, "/api/apps/play/COM.EXAMPLE", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.AppMeta
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Example", *got.Title)
	assert.Equal(t, 2019, *got.ReleasedYear)

	// refetch overwrites the row
	src.meta = &scraper.RawMeta{Title: "Renamed"}
	w = call(r, http.MethodPost, "/api/apps/meta", `{"provider": "play", "appId": "com.example"}`)
	require.Equal(t, http.StatusOK, w.Code)

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	saved, err = repo.Get(context.Background(), models.SourcePlay, "com.example")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", *saved.Title)
	assert.Nil(t, saved.ReleasedYear)
}

func TestFetchMetaEndpoint_Errors(t *testing.T) {
	src := &stubSource{
		name: models.SourceAppStore,
		errs: []error{&scraper.ProviderError{Source: "app", Op: "lookup", Status: http.StatusNotFound, Err: errors.New("not found")}},
	}
	r, _ := newAppsRouter(t, src)

	cases := []struct {
		body string
		want int
	}{
		{`{"provider": "steam", "appId": "1"}`, http.StatusBadRequest},
		{`{"provider": "app"}`, http.StatusBadRequest},
		{`{"provider": "app", "appId": "1", "country": "tha"}`, http.StatusBadRequest},
		{`{"provider": "app", "appId": "1"}`, http.StatusNotFound},
		{`{"provider": "play", "appId": "com.example"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := call(r, http.MethodPost, "/api/apps/meta", tc.body)
		assert.Equal(t, tc.want, w.Code, tc.body)
	}
}

func TestListAndGetEndpoints(t *testing.T) {
	r, repo := newAppsRouter(t, &stubSource{name: models.SourceAppStore})
	ctx := context.Background()

	title := "One"
	year := 2020
	_, err := repo.Upsert(ctx, models.SourceAppStore, "1", &title, &year)
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, models.SourceAppStore, "2", nil, nil)
	require.NoError(t, err)

	w := call(r, http.MethodGet, "/api/apps?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Total int              `json:"total"`
		Limit int              `json:"limit"`
		Items []models.AppMeta `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 1, list.Limit)
	assert.Len(t, list.Items, 1)

	assert.Equal(t, http.StatusNotFound, call(r, http.MethodGet, "/api/apps/app/999", "").Code)
	assert.Equal(t, http.StatusBadRequest, call(r, http.MethodGet, "/api/apps/steam/1", "").Code)
}

func TestListEndpoint_StoreDown(t *testing.T) {
	r, repo := newAppsRouter(t, &stubSource{name: models.SourceAppStore})
	_, err := repo.Upsert(context.Background(), models.SourceAppStore, "1", nil, nil)
	require.NoError(t, err)
	require.NoError(t, repo.DB.Close())

	w := call(r, http.MethodGet, "/api/apps", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total": 0, "limit": 20, "offset": 0, "items": []}`, w.Body.String())
}

func TestFetchMetaEndpoint_ProviderSpelling(t *testing.T) {
	src := &stubSource{name: models.SourceAppStore, meta: &scraper.RawMeta{Title: "Example"}}
	r, repo := newAppsRouter(t, src)

	for _, provider := range []string{"App", " app", "APP"} {
		w := call(r, http.MethodPost, "/api/apps/meta", `{"provider": "`+provider+`", "appId": "1"}`)
		assert.Equal(t, http.StatusOK, w.Code, provider)
	}

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
