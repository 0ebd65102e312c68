// Package revisions holds the append-only history of a project's document.
package revisions

import (
	"encoding/json"
	"errors"
	"time"
)

// TimestampLayout is ISO-8601 UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

const (
	DescManualEdit       = "Manual edit"
	DescInitialCreation  = "Initial creation"
	DescImported         = "Imported from old format"
	DescRestoredSnapshot = "Restored from temporary snapshot"
	DescSharedLink       = "Loaded from shared link"
)

var (
	ErrNotFound     = errors.New("revision not found")
	ErrSoleRevision = errors.New("cannot delete the only revision")
)

// Revision is immutable once appended.
type Revision struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts the millisecond layout and any RFC 3339 value.
func ParseTimestamp(value string) (time.Time, bool) {
	if t, err := time.Parse(TimestampLayout, value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Ledger is the ordered revision list of a project. The last element is the
// current content.
type Ledger struct {
	Revisions []Revision `json:"revisions"`
}

func (l Ledger) MarshalJSON() ([]byte, error) {
	revs := l.Revisions
	if revs == nil {
		revs = []Revision{}
	}
	return json.Marshal(struct {
		Revisions []Revision `json:"revisions"`
	}{Revisions: revs})
}

func (l Ledger) Len() int { return len(l.Revisions) }

func (l Ledger) Latest() (Revision, bool) {
	if len(l.Revisions) == 0 {
		return Revision{}, false
	}
	return l.Revisions[len(l.Revisions)-1], true
}

func (l Ledger) Find(id string) (Revision, bool) {
	for _, rev := range l.Revisions {
		if rev.ID == id {
			return rev, true
		}
	}
	return Revision{}, false
}

// Append adds rev unless its content equals the latest revision's content.
func (l *Ledger) Append(rev Revision) bool {
	if latest, ok := l.Latest(); ok && latest.Content == rev.Content {
		return false
	}
	l.Revisions = append(l.Revisions, rev)
	return true
}

// Remove deletes the revision with id. A ledger never drops below one
// revision through Remove.
func (l *Ledger) Remove(id string) (Revision, error) {
	index := -1
	for i, rev := range l.Revisions {
		if rev.ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		return Revision{}, ErrNotFound
	}
	if len(l.Revisions) <= 1 {
		return Revision{}, ErrSoleRevision
	}
	removed := l.Revisions[index]
	l.Revisions = append(l.Revisions[:index:index], l.Revisions[index+1:]...)
	return removed, nil
}

func (l Ledger) Clone() Ledger {
	if l.Revisions == nil {
		return Ledger{}
	}
	revs := make([]Revision, len(l.Revisions))
	copy(revs, l.Revisions)
	return Ledger{Revisions: revs}
}
