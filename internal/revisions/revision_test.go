package revisions

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rev(id, content, desc, ts string) Revision {
	return Revision{ID: id, Content: content, Description: desc, Timestamp: ts}
}

func TestAppendDeduplicatesAgainstLatest(t *testing.T) {
	var l Ledger
	require.True(t, l.Append(rev("1", "A", "AI: a", "2024-01-01T00:00:00.000Z")))
	assert.False(t, l.Append(rev("2", "A", "Manual edit", "2024-01-01T00:01:00.000Z")))
	assert.Equal(t, 1, l.Len())

	require.True(t, l.Append(rev("3", "B", "Manual edit", "2024-01-01T00:02:00.000Z")))
	// only the latest is compared
	require.True(t, l.Append(rev("4", "A", "Manual edit", "2024-01-01T00:03:00.000Z")))
	assert.Equal(t, 3, l.Len())

	latest, ok := l.Latest()
	require.True(t, ok)
	assert.Equal(t, "4", latest.ID)
}

func TestRemoveKeepsFloorOfOne(t *testing.T) {
	l := Ledger{Revisions: []Revision{rev("1", "A", "x", "")}}
	_, err := l.Remove("1")
	assert.ErrorIs(t, err, ErrSoleRevision)
	assert.Equal(t, 1, l.Len())

	_, err = l.Remove("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveMiddleRevision(t *testing.T) {
	l := Ledger{Revisions: []Revision{rev("1", "A", "x", ""), rev("2", "B", "x", ""), rev("3", "C", "x", "")}}
	original := l.Clone()

	removed, err := l.Remove("2")
	require.NoError(t, err)
	assert.Equal(t, "B", removed.Content)
	assert.Equal(t, []string{"1", "3"}, ids(l.Revisions))
	// clones do not share backing arrays
	assert.Equal(t, []string{"1", "2", "3"}, ids(original.Revisions))
}

func TestLedgerJSONShape(t *testing.T) {
	payload, err := json.Marshal(Ledger{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"revisions":[]}`, string(payload))

	l := Ledger{Revisions: []Revision{rev("id-1", "<p>x</p>", "Initial creation", "2024-05-01T10:00:00.000Z")}}
	payload, err = json.Marshal(l)
	require.NoError(t, err)
	assert.JSONEq(t, `{"revisions":[{"id":"id-1","timestamp":"2024-05-01T10:00:00.000Z","content":"<p>x</p>","description":"Initial creation"}]}`, string(payload))

	var decoded Ledger
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, l, decoded)
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 123456789, time.FixedZone("X", 3600))
	assert.Equal(t, "2024-03-09T13:05:07.123Z", FormatTimestamp(ts))

	parsed, ok := ParseTimestamp("2024-03-09T13:05:07.123Z")
	require.True(t, ok)
	assert.Equal(t, 123000000, parsed.Nanosecond())
	_, ok = ParseTimestamp("yesterday")
	assert.False(t, ok)
}

func TestAIDescription(t *testing.T) {
	assert.Equal(t, "AI: make a button", AIDescription("make a button"))

	exactly50 := strings.Repeat("a", 50)
	assert.Equal(t, "AI: "+exactly50, AIDescription(exactly50))

	long := strings.Repeat("b", 51)
	assert.Equal(t, "AI: "+strings.Repeat("b", 47)+"...", AIDescription(long))

	// counts runes, not bytes
	wide := strings.Repeat("é", 60)
	assert.Equal(t, "AI: "+strings.Repeat("é", 47)+"...", AIDescription(wide))
}

func TestIsAI(t *testing.T) {
	assert.True(t, IsAI("AI: hello"))
	assert.True(t, IsAI("ai:lower"))
	assert.False(t, IsAI("Manual edit"))
	assert.False(t, IsAI("Said AI: later"))
	assert.Equal(t, "ai", Source("AI: x"))
	assert.Equal(t, "manual", Source("Initial creation"))
}

func ids(revs []Revision) []string {
	out := make([]string, 0, len(revs))
	for _, r := range revs {
		out = append(out, r.ID)
	}
	return out
}
