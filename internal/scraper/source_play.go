package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmespath/go-jmespath"
	"golang.org/x/net/html"

	"reviewdash/pkg/models"
	"reviewdash/pkg/utils"
)

const (
	playRPCID      = "UsvDTd"
	playSortNewest = 2
	playTitleTail  = " - Apps on Google Play"
)

var (
	playPackagePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z0-9_]+)+$`)

	// batchexecute envelope: [["wrb.fr","UsvDTd","<payload json>",...],...]
	playPayloadPath = jmespath.MustCompile("[0][2]")
	playReviewsPath = jmespath.MustCompile("[0]")
	playTokenPath   = jmespath.MustCompile("[1][1]")

	playReviewID      = jmespath.MustCompile("[0]")
	playReviewScore   = jmespath.MustCompile("[2]")
	playReviewText    = jmespath.MustCompile("[4]")
	playReviewSeconds = jmespath.MustCompile("[5][0]")
	playReviewThumbs  = jmespath.MustCompile("[6]")
	playReviewVersion = jmespath.MustCompile("[10]")
)

// PlaySource reads reviews through the Play Store web client's batchexecute
// RPC and metadata from the public details page.
type PlaySource struct {
	BaseURL string
	Count   int // reviews requested per page
	Client  *http.Client
}

func NewPlaySource(cfg utils.PlayConfig) *PlaySource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	count := cfg.PageSize
	if count <= 0 {
		count = 200
	}
	return &PlaySource{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		Count:   count,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *PlaySource) Name() models.Source         { return models.SourcePlay }
func (s *PlaySource) Pagination() PaginationStyle { return PaginationToken }
func (s *PlaySource) PageSize() int               { return s.Count }

// NormalizeAppID lowercases the package name and checks its shape.
func (s *PlaySource) NormalizeAppID(appID string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(appID))
	if id == "" {
		return "", permanentErr(string(s.Name()), opAppID, errors.New("app id required"))
	}
	if !playPackagePattern.MatchString(id) {
		return "", permanentErr(string(s.Name()), opAppID, fmt.Errorf("app id %q is not a package name", appID))
	}
	return id, nil
}

func (s *PlaySource) reviewsRequestBody(appID, token string) (string, error) {
	tokenJSON := "null"
	if token != "" {
		b, err := json.Marshal(token)
		if err != nil {
			return "", err
		}
		tokenJSON = string(b)
	}
	appJSON, err := json.Marshal(appID)
	if err != nil {
		return "", err
	}
	inner := fmt.Sprintf(`[null,null,[2,%d,[%d,null,%s],null,[]],[%s,7]]`,
		playSortNewest, s.Count, tokenJSON, appJSON)

	outer, err := json.Marshal([]any{[]any{[]any{playRPCID, inner, nil, "generic"}}})
	if err != nil {
		return "", err
	}
	return url.Values{"f.req": {string(outer)}}.Encode(), nil
}

func (s *PlaySource) FetchReviewPage(ctx context.Context, q PageQuery) (*RawPage, error) {
	form, err := s.reviewsRequestBody(q.AppID, q.Token)
	if err != nil {
		return nil, permanentErr(string(s.Name()), "encode request", err)
	}

	params := url.Values{}
	params.Set("rpcids", playRPCID)
	params.Set("hl", q.Language)
	params.Set("gl", q.Country)
	params.Set("soc-app", "121")
	params.Set("soc-platform", "1")
	params.Set("soc-device", "1")
	endpoint := s.BaseURL + "/_/PlayStoreUi/data/batchexecute?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
	if err != nil {
		return nil, permanentErr(string(s.Name()), "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")

	body, err := doRequest(ctx, s.Client, req, string(s.Name()), "reviews")
	if err != nil {
		return nil, err
	}

	page, err := parsePlayReviews(body)
	if err != nil {
		return nil, transientErr(string(s.Name()), "decode reviews", err)
	}
	return page, nil
}

// parsePlayReviews unwraps the batchexecute response. A null payload means
// the app has no (more) reviews.
func parsePlayReviews(body []byte) (*RawPage, error) {
	body = bytes.TrimSpace(body)
	body = bytes.TrimPrefix(body, []byte(")]}'"))

	var envelope any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}

	rawPayload, err := playPayloadPath.Search(envelope)
	if err != nil {
		return nil, fmt.Errorf("payload path: %w", err)
	}
	payloadStr, ok := rawPayload.(string)
	if !ok || payloadStr == "" {
		return &RawPage{}, nil
	}

	var payload any
	if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}

	reviews, _ := playReviewsPath.Search(payload)
	token, _ := playTokenPath.Search(payload)

	items, _ := reviews.([]any)
	page := &RawPage{Items: make([]RawReview, 0, len(items))}
	if t, ok := token.(string); ok {
		page.NextToken = t
	}
	for _, r := range items {
		page.Items = append(page.Items, playRawReview(r))
	}
	return page, nil
}

func playRawReview(r any) RawReview {
	item := RawReview{
		NativeID: jmesString(playReviewID, r),
		Text:     jmesString(playReviewText, r),
		Rating:   jmesString(playReviewScore, r),
		Date:     jmesString(playReviewSeconds, r),
		Version:  jmesString(playReviewVersion, r),
	}
	if v, err := playReviewThumbs.Search(r); err == nil {
		if f, ok := v.(float64); ok {
			n := int(f)
			item.Helpful = &n
		}
	}
	return item
}

// jmesString renders strings and JSON numbers found at expr; anything else is "".
func jmesString(expr *jmespath.JMESPath, data any) string {
	v, err := expr.Search(data)
	if err != nil || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func (s *PlaySource) FetchMetadata(ctx context.Context, appID, country string) (*RawMeta, error) {
	params := url.Values{}
	params.Set("id", appID)
	params.Set("hl", "en")
	if country != "" {
		params.Set("gl", strings.ToLower(country))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/store/apps/details?"+params.Encode(), nil)
	if err != nil {
		return nil, permanentErr(string(s.Name()), "build request", err)
	}

	body, err := doRequest(ctx, s.Client, req, string(s.Name()), "details")
	if err != nil {
		return nil, err
	}

	fields, err := parsePlayDetails(body)
	if err != nil {
		return nil, transientErr(string(s.Name()), "parse details", err)
	}

	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		payload[k] = v
	}
	return &RawMeta{
		Title:       strings.TrimSuffix(fields["og:title"], playTitleTail),
		ReleaseDate: fields["released"],
		Payload:     payload,
	}, nil
}

// parsePlayDetails extracts og:* meta properties and the "Released on" value
// from a details page.
func parsePlayDetails(body []byte) (map[string]string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	var texts []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if n.Data == "meta" {
				var prop, content string
				for _, a := range n.Attr {
					switch a.Key {
					case "property", "name", "itemprop":
						if prop == "" {
							prop = a.Val
						}
					case "content":
						content = a.Val
					}
				}
				if strings.HasPrefix(prop, "og:") || prop == "datePublished" {
					fields[prop] = content
				}
			}
			if n.Data == "script" || n.Data == "style" {
				return
			}
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				texts = append(texts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for i, t := range texts {
		if strings.EqualFold(t, "Released on") && i+1 < len(texts) {
			fields["released"] = texts[i+1]
			break
		}
	}
	if fields["released"] == "" && fields["datePublished"] != "" {
		fields["released"] = fields["datePublished"]
	}
	return fields, nil
}
