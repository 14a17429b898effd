// Package mirror serves stored App Store reviews in the shape of the iTunes
// customer-review feed and lookup API, so ingestion can run against a local
// fixture instead of the live store.
package mirror

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
)

const PageSize = 50

// Snapshot is the on-disk fixture: apps keyed by numeric App Store id.
type Snapshot struct {
	Apps map[string]*App `json:"apps"`
}

type App struct {
	Title       string   `json:"title,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Reviews     []Review `json:"reviews"`
}

type Review struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Rating  int    `json:"rating"`
	Version string `json:"version,omitempty"`
	Updated string `json:"updated"`
	Votes   int    `json:"votes,omitempty"`
}

func Load(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Apps == nil {
		s.Apps = map[string]*App{}
	}
	return &s, nil
}

func (s *Snapshot) Save(path string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Add appends a review to the app, creating it when missing.
func (s *Snapshot) Add(appID string, r Review) {
	if s.Apps == nil {
		s.Apps = map[string]*App{}
	}
	app, ok := s.Apps[appID]
	if !ok {
		app = &App{}
		s.Apps[appID] = app
	}
	app.Reviews = append(app.Reviews, r)
}

// Page returns the 1-based page of reviews for appID, newest first.
func (s *Snapshot) Page(appID string, page int) []Review {
	app, ok := s.Apps[appID]
	if !ok || page < 1 {
		return nil
	}
	sorted := make([]Review, len(app.Reviews))
	copy(sorted, app.Reviews)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Updated > sorted[j].Updated })

	start := (page - 1) * PageSize
	if start >= len(sorted) {
		return nil
	}
	end := min(start+PageSize, len(sorted))
	return sorted[start:end]
}

type label struct {
	Label string `json:"label"`
}

type feedEntry struct {
	ID        label `json:"id"`
	Title     label `json:"title"`
	Content   label `json:"content"`
	Rating    label `json:"im:rating"`
	Version   label `json:"im:version"`
	Updated   label `json:"updated"`
	VoteCount label `json:"im:voteCount"`
}

type feed struct {
	Feed struct {
		Entry []feedEntry `json:"entry,omitempty"`
	} `json:"feed"`
}

func toFeed(reviews []Review) feed {
	var f feed
	for _, r := range reviews {
		f.Feed.Entry = append(f.Feed.Entry, feedEntry{
			ID:        label{r.ID},
			Content:   label{r.Text},
			Rating:    label{strconv.Itoa(r.Rating)},
			Version:   label{r.Version},
			Updated:   label{r.Updated},
			VoteCount: label{strconv.Itoa(r.Votes)},
		})
	}
	return f
}
