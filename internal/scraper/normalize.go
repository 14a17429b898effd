package scraper

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"reviewdash/pkg/models"
)

type RejectReason string

const (
	RejectNone      RejectReason = ""
	RejectEmptyText RejectReason = "empty_text"
	RejectUndated   RejectReason = "undated"
)

// some providers send this instead of an empty body
const emptySentinel = "EMPTY"

const isoDate = "2006-01-02"

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	isoDate,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

var digitsPattern = regexp.MustCompile(`^\d+$`)

// Normalize maps one raw provider item into a canonical review. The second
// return value is RejectNone for accepted items.
func Normalize(source models.Source, raw RawReview, appID, country, lang string) (models.Review, RejectReason) {
	text := strings.TrimSpace(raw.Text)
	if text == "" || strings.EqualFold(text, emptySentinel) {
		return models.Review{}, RejectEmptyText
	}

	t, ok := parseDate(raw.Date)
	if !ok {
		return models.Review{}, RejectUndated
	}
	dateISO := t.UTC().Format(isoDate)

	helpful := 0
	if raw.Helpful != nil && *raw.Helpful > 0 {
		helpful = *raw.Helpful
	}

	return models.Review{
		ExtKey:        IdentityKey(source, appID, raw.NativeID, text, dateISO),
		Rating:        parseRating(raw.Rating),
		Text:          text,
		Version:       strings.TrimSpace(raw.Version),
		DateISO:       dateISO,
		DateLocalized: LocalizedDate(dateISO),
		Year:          t.UTC().Year(),
		HelpfulCount:  helpful,
		Source:        source,
		AppID:         appID,
		Country:       strings.ToLower(country),
		Language:      strings.ToLower(lang),
	}, RejectNone
}

// IdentityKey is <source>:<appId>:<nativeId>, or a SHA-1 over
// appId|text|dateISO in place of the native id when the provider has none.
func IdentityKey(source models.Source, appID, nativeID, text, dateISO string) string {
	if id := strings.TrimSpace(nativeID); id != "" {
		return fmt.Sprintf("%s:%s:%s", source, appID, id)
	}
	sum := sha1.Sum([]byte(appID + "|" + text + "|" + dateISO))
	return fmt.Sprintf("%s:%s:%s", source, appID, hex.EncodeToString(sum[:]))
}

// LocalizedDate renders an ISO date in the Thai Buddhist calendar, d/m/yyyy
// with the year offset by 543. It returns "" for invalid input.
func LocalizedDate(dateISO string) string {
	t, err := time.Parse(isoDate, dateISO)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d/%d/%d", t.Day(), int(t.Month()), t.Year()+543)
}

func parseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if digitsPattern.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return time.Time{}, false
		}
		// 13 digits is epoch milliseconds
		if len(s) > 11 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseRating(raw string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	r := int(math.Round(f))
	if r < 1 || r > 5 {
		return 0
	}
	return r
}

var yearPattern = regexp.MustCompile(`\b(1[89]\d{2}|2\d{3})\b`)

// ReleaseYear derives a year from a provider release date. It returns nil
// when nothing after 1900 can be found.
func ReleaseYear(raw string) *int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	year := 0
	if t, ok := parseDate(s); ok {
		year = t.Year()
	} else if m := yearPattern.FindString(s); m != "" {
		year, _ = strconv.Atoi(m)
	}
	if year <= 1900 {
		return nil
	}
	return &year
}
