package models

import "time"

// AppMeta is one row per (source, app_id). Re-fetching overwrites title and
// released year.
type AppMeta struct {
	ID           int64     `db:"id" json:"id"`
	Source       Source    `db:"source" json:"source"`
	AppID        string    `db:"app_id" json:"app_id"`
	Title        *string   `db:"title" json:"title"`
	ReleasedYear *int      `db:"released_year" json:"released_year"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
