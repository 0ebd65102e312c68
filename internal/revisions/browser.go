package revisions

import (
	"fmt"
	"sort"
	"strings"
)

type Filter string

const (
	FilterAll    Filter = "all"
	FilterAI     Filter = "ai"
	FilterManual Filter = "manual"
)

func ParseFilter(value string) (Filter, error) {
	switch Filter(strings.ToLower(strings.TrimSpace(value))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterAI:
		return FilterAI, nil
	case FilterManual:
		return FilterManual, nil
	default:
		return "", fmt.Errorf("unknown revision filter %q", value)
	}
}

// Matches applies the kind filter and the free-text query. The query matches
// the lower-cased description or the raw timestamp.
func Matches(rev Revision, filter Filter, query string) bool {
	switch filter {
	case FilterAI:
		if !IsAI(rev.Description) {
			return false
		}
	case FilterManual:
		if IsAI(rev.Description) {
			return false
		}
	}
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(rev.Description), term) || strings.Contains(rev.Timestamp, term)
}

// Apply returns the matching revisions, newest first.
func Apply(revs []Revision, filter Filter, query string) []Revision {
	out := make([]Revision, 0, len(revs))
	for _, rev := range revs {
		if Matches(rev, filter, query) {
			out = append(out, rev)
		}
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(revs []Revision) {
	sort.SliceStable(revs, func(i, j int) bool {
		ti, okI := ParseTimestamp(revs[i].Timestamp)
		tj, okJ := ParseTimestamp(revs[j].Timestamp)
		if okI && okJ {
			return ti.After(tj)
		}
		return revs[i].Timestamp > revs[j].Timestamp
	})
}

// Browser is the history panel state: a filtered view over a ledger with at
// most one selected revision. The selection is dropped whenever the visible
// set changes.
type Browser struct {
	source   []Revision
	filter   Filter
	query    string
	visible  []Revision
	selected string
}

func NewBrowser(revs []Revision) *Browser {
	b := &Browser{filter: FilterAll}
	b.source = append([]Revision(nil), revs...)
	b.visible = Apply(b.source, b.filter, b.query)
	return b
}

func (b *Browser) Filter() Filter { return b.filter }

func (b *Browser) Query() string { return b.query }

func (b *Browser) Visible() []Revision {
	return append([]Revision(nil), b.visible...)
}

func (b *Browser) SetFilter(filter Filter) {
	b.filter = filter
	b.refresh()
}

func (b *Browser) SetQuery(query string) {
	b.query = query
	b.refresh()
}

// Reload replaces the underlying revisions, e.g. after a delete.
func (b *Browser) Reload(revs []Revision) {
	b.source = append([]Revision(nil), revs...)
	b.refresh()
}

// Select marks a visible revision as selected.
func (b *Browser) Select(id string) error {
	for _, rev := range b.visible {
		if rev.ID == id {
			b.selected = id
			return nil
		}
	}
	return ErrNotFound
}

func (b *Browser) ClearSelection() { b.selected = "" }

func (b *Browser) Selected() (Revision, bool) {
	if b.selected == "" {
		return Revision{}, false
	}
	for _, rev := range b.visible {
		if rev.ID == b.selected {
			return rev, true
		}
	}
	return Revision{}, false
}

func (b *Browser) refresh() {
	next := Apply(b.source, b.filter, b.query)
	if !sameIDs(b.visible, next) {
		b.selected = ""
	}
	b.visible = next
}

func sameIDs(a, b []Revision) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
