package models

import "time"

// Review is the canonical, normalized form of a store review.
//
// Every provider record is mapped into this structure by the scraper's
// normalizer before it reaches the store. ExtKey is the idempotency key used
// as the upsert conflict target.
type Review struct {
	ID            int64     `db:"id" json:"id"`
	ExtKey        string    `db:"ext_key" json:"ext_key"`
	Rating        int       `db:"rating" json:"rating"`                 // 1..5, 0 when unknown
	Text          string    `db:"review_text" json:"review_text"`       // trimmed, never empty
	Version       string    `db:"version" json:"version"`               // app version or ""
	DateISO       string    `db:"date_iso" json:"date_iso"`             // YYYY-MM-DD
	DateLocalized string    `db:"date_localized" json:"date_localized"` // display only
	Year          int       `db:"year" json:"year"`
	HelpfulCount  int       `db:"helpful_count" json:"helpful_count"`
	Source        Source    `db:"source" json:"source"`
	AppID         string    `db:"app_id" json:"app_id"`
	Country       string    `db:"country" json:"country"`
	Language      string    `db:"lang" json:"lang"`
	Label         *string   `db:"label" json:"label"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Summary is the aggregate shown on the dashboard header.
type Summary struct {
	TotalCount   int         `json:"totalCount"`
	RatingCounts map[int]int `json:"ratingCounts"`
	Avg          float64     `json:"avg"`
}

// EmptySummary returns a zero summary with all five rating buckets present.
func EmptySummary() Summary {
	return Summary{RatingCounts: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
}

// LabelCounts backs the sidebar counters. Inbox counts unlabeled reviews.
type LabelCounts struct {
	Total         int `json:"total"`
	Inbox         int `json:"inbox"`
	Functional    int `json:"functional"`
	Nonfunctional int `json:"nonfunctional"`
	Domain        int `json:"domain"`
	General       int `json:"general"`
}
