package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultBaseURL = "http://localhost:8080"

type apiClient struct {
	baseURL string
	http    *http.Client
}

func (a *apiClient) doJSON(ctx context.Context, method, path string, query url.Values, payload any, out any) error {
	endpoint := strings.TrimRight(a.baseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s failed: %s", method, path, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// get prints the JSON response of a GET request as is.
func (a *apiClient) get(ctx context.Context, path string, query url.Values) error {
	var out json.RawMessage
	if err := a.doJSON(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return err
	}
	return printJSON(out)
}

func (a *apiClient) post(ctx context.Context, path string, payload any) error {
	var out json.RawMessage
	if err := a.doJSON(ctx, http.MethodPost, path, nil, payload, &out); err != nil {
		return err
	}
	return printJSON(out)
}

func printJSON(v any) error {
	var buf bytes.Buffer
	switch t := v.(type) {
	case json.RawMessage:
		if err := json.Indent(&buf, t, "", "  "); err != nil {
			return err
		}
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	fmt.Println(buf.String())
	return nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func newReviewsCmd(api *apiClient) *cobra.Command {
	cmd := &cobra.Command{Use: "reviews", Short: "Browse stored reviews"}

	var (
		provider, appID, ratings, label, sortBy string
		year, limit, offset                     int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List reviews with filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			setIf(q, "provider", provider)
			setIf(q, "appId", appID)
			setIf(q, "ratings", ratings)
			setIf(q, "label", label)
			setIf(q, "sort", sortBy)
			if year > 0 {
				q.Set("year", strconv.Itoa(year))
			}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))
			return api.get(cmd.Context(), "/api/reviews", q)
		},
	}
	list.Flags().StringVar(&provider, "provider", "", "comma separated providers (play,app)")
	list.Flags().StringVar(&appID, "app", "", "app id")
	list.Flags().StringVar(&ratings, "ratings", "", "comma separated ratings")
	list.Flags().StringVar(&label, "label", "", "label or inbox")
	list.Flags().StringVar(&sortBy, "sort", "", "date_desc or helpful_desc")
	list.Flags().IntVar(&year, "year", 0, "review year")
	list.Flags().IntVar(&limit, "limit", 20, "page size")
	list.Flags().IntVar(&offset, "offset", 0, "offset")

	latest := &cobra.Command{
		Use:   "latest",
		Short: "Most recently ingested reviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.get(cmd.Context(), "/api/reviews/latest", url.Values{"limit": {strconv.Itoa(limit)}})
		},
	}
	latest.Flags().IntVar(&limit, "limit", 20, "number of reviews")

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Total count, rating histogram and average",
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.get(cmd.Context(), "/api/reviews/summary", nil)
		},
	}
	labels := &cobra.Command{
		Use:   "labels",
		Short: "Review counts per label",
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.get(cmd.Context(), "/api/reviews/labels", nil)
		},
	}

	cmd.AddCommand(list, latest, summary, labels)
	return cmd
}

func newClassifyCmd(api *apiClient) *cobra.Command {
	var label string
	var unset bool
	cmd := &cobra.Command{
		Use:   "classify <ext_key>...",
		Short: "Set or clear the label of reviews",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if label == "" && !unset {
				return fmt.Errorf("either --label or --clear is required")
			}
			payload := map[string]any{"ids": args, "label": nil}
			if !unset {
				payload["label"] = label
			}
			return api.post(cmd.Context(), "/api/classify", payload)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "functional, nonfunctional, domain or general")
	cmd.Flags().BoolVar(&unset, "clear", false, "clear the label")
	return cmd
}

func newIngestCmd(api *apiClient) *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "ingest <appId>",
		Short: "Trigger a review ingestion on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.post(cmd.Context(), "/api/ingest/reviews", map[string]string{
				"provider": provider,
				"appId":    args[0],
			})
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", "play", "provider (play|app)")

	var localesProvider, countries, languages string
	var maxPages int
	locales := &cobra.Command{
		Use:   "locales <appId>",
		Short: "Ingest across country/language combinations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{
				"provider":  localesProvider,
				"appId":     args[0],
				"countries": countries,
				"languages": languages,
				"maxPages":  maxPages,
			}
			return api.post(cmd.Context(), "/api/ingest/reviews/locales", payload)
		},
	}
	locales.Flags().StringVarP(&localesProvider, "provider", "p", "app", "provider (play|app)")
	locales.Flags().StringVarP(&countries, "countries", "c", "", "comma separated country codes")
	locales.Flags().StringVarP(&languages, "languages", "l", "", "comma separated language codes")
	locales.Flags().IntVar(&maxPages, "max-pages", 0, "pages per combination")

	cmd.AddCommand(locales)
	return cmd
}

func newAppsCmd(api *apiClient) *cobra.Command {
	cmd := &cobra.Command{Use: "apps", Short: "App metadata"}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored app metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.get(cmd.Context(), "/api/apps", url.Values{
				"limit":  {strconv.Itoa(limit)},
				"offset": {strconv.Itoa(offset)},
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "page size")
	list.Flags().IntVar(&offset, "offset", 0, "offset")

	show := &cobra.Command{
		Use:   "show <provider> <appId>",
		Short: "Show stored metadata for one app",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.get(cmd.Context(), "/api/apps/"+url.PathEscape(args[0])+"/"+url.PathEscape(args[1]), nil)
		},
	}

	var provider, country string
	var debug bool
	meta := &cobra.Command{
		Use:   "meta <appId>",
		Short: "Fetch title and release year from the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return api.post(cmd.Context(), "/api/apps/meta", map[string]any{
				"provider": provider,
				"appId":    args[0],
				"country":  country,
				"debug":    debug,
			})
		},
	}
	meta.Flags().StringVarP(&provider, "provider", "p", "play", "provider (play|app)")
	meta.Flags().StringVarP(&country, "country", "c", "", "store country")
	meta.Flags().BoolVar(&debug, "debug", false, "return the raw payload without saving")

	cmd.AddCommand(list, show, meta)
	return cmd
}

func main() {
	api := &apiClient{baseURL: defaultBaseURL, http: &http.Client{Timeout: 15 * time.Minute}}
	if v := os.Getenv("REVIEWDASH_API"); v != "" {
		api.baseURL = v
	}

	root := &cobra.Command{
		Use:           "reviewdash",
		Short:         "Command line client for the review dashboard API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&api.baseURL, "api", api.baseURL, "API base URL")
	root.AddCommand(
		newReviewsCmd(api),
		newClassifyCmd(api),
		newIngestCmd(api),
		newAppsCmd(api),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
