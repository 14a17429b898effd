package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewdash/pkg/utils"
)

func playEnvelope(t *testing.T, payload any) string {
	t.Helper()
	inner, err := json.Marshal(payload)
	require.NoError(t, err)
	outer, err := json.Marshal([]any{[]any{"wrb.fr", playRPCID, string(inner), nil, nil, nil, "generic"}})
	require.NoError(t, err)
	return ")]}'\n\n" + string(outer)
}

func newTestPlaySource(baseURL string) *PlaySource {
	return NewPlaySource(utils.PlayConfig{BaseURL: baseURL, PageSize: 2})
}

func TestPlayNormalizeAppID(t *testing.T) {
	s := newTestPlaySource("http://unused")

	id, err := s.NormalizeAppID("  Com.Example.App ")
	require.NoError(t, err)
	assert.Equal(t, "com.example.app", id)

	for _, bad := range []string{"", "example", "com..x", "1com.example"} {
		_, err := s.NormalizeAppID(bad)
		assert.True(t, IsInvalidAppID(err), bad)
	}
}

func TestPlayFetchReviewPage(t *testing.T) {
	var gotForm url.Values
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_/PlayStoreUi/data/batchexecute", r.URL.Path)
		gotQuery = r.URL.Query()
		assert.NoError(t, r.ParseForm())
		gotForm = r.PostForm

		payload := []any{
			[]any{
				[]any{"gp:one", []any{"Ann"}, 5, nil, "Great app", []any{1709596800, 0}, 3, nil, nil, nil, "1.2.3"},
				[]any{"gp:two", []any{"Bob"}, 1, nil, "Crashes", []any{1709683200, 0}, nil},
			},
			[]any{nil, "next-token"},
		}
		_, _ = w.Write([]byte(playEnvelope(t, payload)))
	}))
	defer srv.Close()

	s := newTestPlaySource(srv.URL)
	page, err := s.FetchReviewPage(context.Background(), PageQuery{
		AppID: "com.example.app", Country: "th", Language: "en", Token: "prev-token",
	})
	require.NoError(t, err)

	assert.Equal(t, "th", gotQuery.Get("gl"))
	assert.Equal(t, "en", gotQuery.Get("hl"))
	assert.Equal(t, playRPCID, gotQuery.Get("rpcids"))
	assert.Contains(t, gotForm.Get("f.req"), `\"prev-token\"`)
	assert.Contains(t, gotForm.Get("f.req"), `com.example.app`)

	require.Len(t, page.Items, 2)
	assert.Equal(t, "next-token", page.NextToken)

	first := page.Items[0]
	assert.Equal(t, "gp:one", first.NativeID)
	assert.Equal(t, "Great app", first.Text)
	assert.Equal(t, "5", first.Rating)
	assert.Equal(t, "1709596800", first.Date)
	assert.Equal(t, "1.2.3", first.Version)
	require.NotNil(t, first.Helpful)
	assert.Equal(t, 3, *first.Helpful)

	second := page.Items[1]
	assert.Equal(t, "", second.Version)
	assert.Nil(t, second.Helpful)

	rv, reason := Normalize(s.Name(), first, "com.example.app", "th", "en")
	require.Equal(t, RejectNone, reason)
	assert.Equal(t, "2024-03-05", rv.DateISO)
}

func TestParsePlayReviews_NullPayload(t *testing.T) {
	page, err := parsePlayReviews([]byte(`)]}'` + "\n" + `[["wrb.fr","UsvDTd",null,null,null,null,"generic"]]`))
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, "", page.NextToken)
}

func TestParsePlayReviews_Garbage(t *testing.T) {
	_, err := parsePlayReviews([]byte("<html>captcha</html>"))
	assert.Error(t, err)
}

func TestPlayFetchReviewPage_StatusClassification(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := newTestPlaySource(srv.URL)
	_, err := s.FetchReviewPage(context.Background(), PageQuery{AppID: "com.example.app", Country: "th", Language: "th"})
	assert.True(t, IsTransient(err))

	status = http.StatusNotFound
	_, err = s.FetchReviewPage(context.Background(), PageQuery{AppID: "com.example.app", Country: "th", Language: "th"})
	assert.True(t, IsPermanent(err))
}

func TestPlayFetchMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/store/apps/details", r.URL.Path)
		assert.Equal(t, "com.example.app", r.URL.Query().Get("id"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!doctype html><html><head>
<meta property="og:title" content="Example App - Apps on Google Play">
<meta property="og:description" content="An example">
<script>var x = "Released on";</script>
</head><body>
<div><div>Updated on</div><div>Jan 2, 2024</div></div>
<div><div>Released on</div><div>Oct 3, 2019</div></div>
</body></html>`))
	}))
	defer srv.Close()

	s := newTestPlaySource(srv.URL)
	meta, err := s.FetchMetadata(context.Background(), "com.example.app", "TH")
	require.NoError(t, err)

	assert.Equal(t, "Example App", meta.Title)
	assert.Equal(t, "Oct 3, 2019", meta.ReleaseDate)
	payload, ok := meta.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "An example", payload["og:description"])

	year := ReleaseYear(meta.ReleaseDate)
	require.NotNil(t, year)
	assert.Equal(t, 2019, *year)
}

func TestParsePlayDetails_DatePublishedFallback(t *testing.T) {
	fields, err := parsePlayDetails([]byte(`<html><head><meta itemprop="datePublished" content="2018-06-01"></head><body></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "2018-06-01", fields["released"])
}
