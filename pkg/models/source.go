package models

import (
	"fmt"
	"strings"
)

// Source identifies the provider a review or app record was scraped from.
type Source string

const (
	SourcePlay     Source = "play"
	SourceAppStore Source = "app"
)

// Sources lists every supported provider in a stable order.
var Sources = []Source{SourcePlay, SourceAppStore}

// ParseSource accepts "play" or "app" in any case and with surrounding
// whitespace, and returns the canonical tag.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourcePlay:
		return SourcePlay, nil
	case SourceAppStore:
		return SourceAppStore, nil
	}
	return "", fmt.Errorf("unknown provider %q (use play or app)", s)
}

func (s Source) String() string { return string(s) }
