package models

import (
	"fmt"
	"strings"
)

// Label is the manual classification assigned to a review.
type Label string

const (
	LabelFunctional    Label = "functional"
	LabelNonfunctional Label = "nonfunctional"
	LabelDomain        Label = "domain"
	LabelGeneral       Label = "general"
)

// LabelInbox is a list filter, not a stored value: it selects unlabeled rows.
const LabelInbox = "inbox"

var Labels = []Label{LabelFunctional, LabelNonfunctional, LabelDomain, LabelGeneral}

func (l Label) Valid() bool {
	for _, v := range Labels {
		if l == v {
			return true
		}
	}
	return false
}

// ParseLabel validates a label coming from a request. nil and "" both mean
// "clear the label" and yield a nil result.
func ParseLabel(raw *string) (*Label, error) {
	if raw == nil {
		return nil, nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil, nil
	}
	l := Label(s)
	if !l.Valid() {
		return nil, fmt.Errorf("invalid label %q", s)
	}
	return &l, nil
}
