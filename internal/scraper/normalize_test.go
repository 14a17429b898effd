package scraper

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewdash/pkg/models"
)

func intPtr(n int) *int { return &n }

func TestNormalize_RejectsEmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "EMPTY", "empty", " Empty \n"} {
		_, reason := Normalize(models.SourcePlay, RawReview{Text: text, Date: "2024-03-05"}, "com.example.app", "th", "th")
		assert.Equal(t, RejectEmptyText, reason, "text %q", text)
	}
}

func TestNormalize_RejectsUndated(t *testing.T) {
	for _, date := range []string{"", "not a date", "32/13/2024", "0"} {
		_, reason := Normalize(models.SourceAppStore, RawReview{Text: "great app", Date: date}, "123", "th", "th")
		assert.Equal(t, RejectUndated, reason, "date %q", date)
	}
}

func TestNormalize_Accepted(t *testing.T) {
	raw := RawReview{
		NativeID: "gp:AOqpTO",
		Text:     "  works well  ",
		Date:     "2024-03-05T10:20:30Z",
		Rating:   "4",
		Version:  " 2.1.0 ",
		Helpful:  intPtr(7),
	}
	rv, reason := Normalize(models.SourcePlay, raw, "com.example.app", "TH", "EN")
	require.Equal(t, RejectNone, reason)

	assert.Equal(t, "play:com.example.app:gp:AOqpTO", rv.ExtKey)
	assert.Equal(t, "works well", rv.Text)
	assert.Equal(t, 4, rv.Rating)
	assert.Equal(t, "2.1.0", rv.Version)
	assert.Equal(t, "2024-03-05", rv.DateISO)
	assert.Equal(t, "5/3/2567", rv.DateLocalized)
	assert.Equal(t, 2024, rv.Year)
	assert.Equal(t, 7, rv.HelpfulCount)
	assert.Equal(t, models.SourcePlay, rv.Source)
	assert.Equal(t, "th", rv.Country)
	assert.Equal(t, "en", rv.Language)
	assert.Nil(t, rv.Label)
}

func TestNormalize_Defaults(t *testing.T) {
	rv, reason := Normalize(models.SourceAppStore, RawReview{Text: "ok", Date: "2023-12-31", Rating: "nope"}, "123", "th", "th")
	require.Equal(t, RejectNone, reason)

	assert.Equal(t, 0, rv.Rating)
	assert.Equal(t, "", rv.Version)
	assert.Equal(t, 0, rv.HelpfulCount)

	rv, _ = Normalize(models.SourceAppStore, RawReview{Text: "ok", Date: "2023-12-31", Helpful: intPtr(-3)}, "123", "th", "th")
	assert.Equal(t, 0, rv.HelpfulCount)
}

func TestNormalize_HashKeyIsDeterministic(t *testing.T) {
	raw := RawReview{Text: "same text", Date: "2024-01-02"}
	a, _ := Normalize(models.SourceAppStore, raw, "123", "th", "th")
	b, _ := Normalize(models.SourceAppStore, raw, "123", "us", "en")

	assert.Equal(t, a.ExtKey, b.ExtKey)
	assert.True(t, strings.HasPrefix(a.ExtKey, "app:123:"))
	assert.Len(t, strings.TrimPrefix(a.ExtKey, "app:123:"), 40)

	c, _ := Normalize(models.SourceAppStore, RawReview{Text: "other text", Date: "2024-01-02"}, "123", "th", "th")
	assert.NotEqual(t, a.ExtKey, c.ExtKey)
}

func TestIdentityKey(t *testing.T) {
	assert.Equal(t, "play:pkg:abc", IdentityKey(models.SourcePlay, "pkg", " abc ", "t", "2024-01-01"))

	sum := sha1.Sum([]byte("1|Hello World|2024-01-01"))
	assert.Equal(t, "app:1:"+hex.EncodeToString(sum[:]),
		IdentityKey(models.SourceAppStore, "1", "", "Hello World", "2024-01-01"))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"2024-03-05", "2024-03-05"},
		{"2024-03-05T23:59:59-07:00", "2024-03-06"},
		{"2024-03-05 08:00:00", "2024-03-05"},
		{"1709596800", "2024-03-05"},
		{"1709596800000", "2024-03-05"},
		{"Mar 5, 2024", "2024-03-05"},
		{"March 5, 2024", "2024-03-05"},
	}
	for _, tt := range tests {
		got, ok := parseDate(tt.raw)
		require.True(t, ok, tt.raw)
		assert.Equal(t, tt.want, got.UTC().Format(isoDate), tt.raw)
	}
}

func TestParseRating(t *testing.T) {
	assert.Equal(t, 5, parseRating("5"))
	assert.Equal(t, 4, parseRating("3.6"))
	assert.Equal(t, 0, parseRating("0"))
	assert.Equal(t, 0, parseRating("6"))
	assert.Equal(t, 0, parseRating(""))
}

func TestLocalizedDate(t *testing.T) {
	assert.Equal(t, "1/1/2567", LocalizedDate("2024-01-01"))
	assert.Equal(t, "31/12/2566", LocalizedDate("2023-12-31"))
	assert.Equal(t, "", LocalizedDate("garbage"))
}

func TestReleaseYear(t *testing.T) {
	require.NotNil(t, ReleaseYear("2016-07-13T07:00:00Z"))
	assert.Equal(t, 2016, *ReleaseYear("2016-07-13T07:00:00Z"))
	assert.Equal(t, 2019, *ReleaseYear("Released on Oct 3, 2019 in Thailand"))
	assert.Nil(t, ReleaseYear(""))
	assert.Nil(t, ReleaseYear("unknown"))
	assert.Nil(t, ReleaseYear("1800-01-01"))
}
