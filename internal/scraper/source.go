package scraper

import (
	"context"

	"reviewdash/pkg/models"
)

type PaginationStyle int

const (
	// PaginationToken sources hand back an opaque continuation token.
	PaginationToken PaginationStyle = iota
	// PaginationCounter sources take a 1-based page number.
	PaginationCounter
)

// Source is implemented by each external review provider. Each source is
// responsible for its own wire format; it hands raw values to the normalizer
// without interpreting them.
type Source interface {
	Name() models.Source
	Pagination() PaginationStyle
	// PageSize is the nominal number of items in a full page.
	PageSize() int
	// NormalizeAppID canonicalizes appID or returns a permanent ProviderError.
	NormalizeAppID(appID string) (string, error)
	FetchReviewPage(ctx context.Context, q PageQuery) (*RawPage, error)
	FetchMetadata(ctx context.Context, appID, country string) (*RawMeta, error)
}

type PageQuery struct {
	AppID    string
	Country  string
	Language string
	Page     int    // 1-based, used by counter sources
	Token    string // used by token sources, "" on the first page
}

type RawPage struct {
	Items     []RawReview
	NextToken string
}

// RawReview carries provider values verbatim.
type RawReview struct {
	NativeID string
	Text     string
	Date     string
	Rating   string
	Version  string
	Helpful  *int
}

type RawMeta struct {
	Title       string
	ReleaseDate string
	// Payload is the provider response as decoded JSON (or extracted HTML
	// fields), returned to callers in debug mode.
	Payload any
}

// exhausted reports whether no further page should be requested after p.
func exhausted(src Source, p *RawPage) bool {
	if len(p.Items) == 0 {
		return true
	}
	switch src.Pagination() {
	case PaginationToken:
		return p.NextToken == ""
	default:
		return src.PageSize() > 0 && len(p.Items) < src.PageSize()
	}
}
