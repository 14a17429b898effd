package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"reviewdash/pkg/models"
	"reviewdash/pkg/utils"
)

const (
	appStorePageSize = 50
	// Apple's customer-review feed serves at most 10 pages per country.
	appStoreMaxPages = 10
)

// AppStoreSource reads reviews from the iTunes customer-review RSS feed and
// metadata from the iTunes lookup API.
type AppStoreSource struct {
	RSSBaseURL    string
	LookupBaseURL string
	Client        *http.Client
}

func NewAppStoreSource(cfg utils.AppStoreConfig) *AppStoreSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AppStoreSource{
		RSSBaseURL:    strings.TrimRight(cfg.RSSBaseURL, "/"),
		LookupBaseURL: strings.TrimRight(cfg.LookupBaseURL, "/"),
		Client:        &http.Client{Timeout: timeout},
	}
}

func (s *AppStoreSource) Name() models.Source         { return models.SourceAppStore }
func (s *AppStoreSource) Pagination() PaginationStyle { return PaginationCounter }
func (s *AppStoreSource) PageSize() int               { return appStorePageSize }

// NormalizeAppID requires the numeric App Store id.
func (s *AppStoreSource) NormalizeAppID(appID string) (string, error) {
	id := strings.TrimSpace(appID)
	if id == "" {
		return "", permanentErr(string(s.Name()), opAppID, errors.New("app id required"))
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", permanentErr(string(s.Name()), opAppID, fmt.Errorf("app id %q must be numeric", appID))
	}
	return id, nil
}

type rssLabel struct {
	Label string `json:"label"`
}

type rssEntry struct {
	ID        rssLabel  `json:"id"`
	Title     rssLabel  `json:"title"`
	Content   rssLabel  `json:"content"`
	Rating    *rssLabel `json:"im:rating"`
	Version   rssLabel  `json:"im:version"`
	Updated   rssLabel  `json:"updated"`
	VoteCount *rssLabel `json:"im:voteCount"`
}

type rssResponse struct {
	Feed struct {
		Entry json.RawMessage `json:"entry"`
	} `json:"feed"`
}

func (s *AppStoreSource) reviewsURL(q PageQuery) string {
	u := fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%s/sortby=mostrecent/json",
		s.RSSBaseURL, url.PathEscape(strings.ToLower(q.Country)), q.Page, url.PathEscape(q.AppID))
	if q.Language != "" {
		u += "?l=" + url.QueryEscape(q.Language)
	}
	return u
}

func (s *AppStoreSource) FetchReviewPage(ctx context.Context, q PageQuery) (*RawPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > appStoreMaxPages {
		return &RawPage{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.reviewsURL(q), nil)
	if err != nil {
		return nil, permanentErr(string(s.Name()), "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := doRequest(ctx, s.Client, req, string(s.Name()), "reviews")
	if err != nil {
		return nil, err
	}

	entries, err := decodeRSSEntries(body)
	if err != nil {
		return nil, transientErr(string(s.Name()), "decode reviews", err)
	}

	page := &RawPage{Items: make([]RawReview, 0, len(entries))}
	for _, e := range entries {
		// the first entry of older feeds describes the app itself
		if e.Rating == nil {
			continue
		}
		item := RawReview{
			NativeID: e.ID.Label,
			Text:     e.Content.Label,
			Date:     e.Updated.Label,
			Rating:   e.Rating.Label,
			Version:  e.Version.Label,
		}
		if e.VoteCount != nil {
			if n, err := strconv.Atoi(strings.TrimSpace(e.VoteCount.Label)); err == nil {
				item.Helpful = &n
			}
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// decodeRSSEntries handles feed.entry being absent, a single object, or an array.
func decodeRSSEntries(body []byte) ([]rssEntry, error) {
	var resp rssResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	raw := bytes.TrimSpace(resp.Feed.Entry)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		var one rssEntry
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, err
		}
		return []rssEntry{one}, nil
	}
	var many []rssEntry
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, err
	}
	return many, nil
}

type lookupResponse struct {
	ResultCount int              `json:"resultCount"`
	Results     []map[string]any `json:"results"`
}

func (s *AppStoreSource) FetchMetadata(ctx context.Context, appID, country string) (*RawMeta, error) {
	q := url.Values{}
	q.Set("id", appID)
	if country != "" {
		q.Set("country", strings.ToLower(country))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.LookupBaseURL+"/lookup?"+q.Encode(), nil)
	if err != nil {
		return nil, permanentErr(string(s.Name()), "build request", err)
	}

	body, err := doRequest(ctx, s.Client, req, string(s.Name()), "lookup")
	if err != nil {
		return nil, err
	}

	var lr lookupResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, transientErr(string(s.Name()), "decode lookup", err)
	}
	if len(lr.Results) == 0 {
		return nil, &ProviderError{
			Source: string(s.Name()),
			Op:     "lookup",
			Status: http.StatusNotFound,
			Err:    fmt.Errorf("app %s not found", appID),
		}
	}

	detail := lr.Results[0]
	title, _ := detail["trackName"].(string)
	released, _ := detail["releaseDate"].(string)
	return &RawMeta{Title: title, ReleaseDate: released, Payload: detail}, nil
}
