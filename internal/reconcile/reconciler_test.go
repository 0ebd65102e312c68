package reconcile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcileSplitMarkers(t *testing.T) {
	got := Reconcile("", []string{"Sure, ", "here:\n```htm", "l\n<div>A</div>\n```", " done."})
	assert.Equal(t, "Sure, here:\n done.", got.Prose)
	assert.Equal(t, "\n<div>A</div>\n", got.Code)
	assert.True(t, got.Captured)
	assert.True(t, got.HasCode())
}

func TestReconcileNoCodeBlock(t *testing.T) {
	got := Reconcile("<p>existing</p>", []string{"Just ", "chatting, no ", "code `here`."})
	assert.Equal(t, "Just chatting, no code `here`.", got.Prose)
	assert.Empty(t, got.Code)
	assert.False(t, got.Captured)
	assert.False(t, got.HasCode())
}

func TestReconcileSeedsFirstBlockOnly(t *testing.T) {
	got := Reconcile("<p>old</p>", []string{"a```html<b>1</b>```b```html<i>2</i>```c"})
	assert.Equal(t, "abc", got.Prose)
	assert.Equal(t, "<p>old</p><b>1</b><i>2</i>", got.Code)
}

func TestReconcileWholeBlockInOneFragment(t *testing.T) {
	got := Reconcile("", []string{"intro ```html<main/>``` outro"})
	assert.Equal(t, "intro  outro", got.Prose)
	assert.Equal(t, "<main/>", got.Code)
}

func TestReconcileCharacterByCharacter(t *testing.T) {
	stream := "Plan:\n```html\n<h1>Hi</h1>\n```\nEnjoy ✅"
	fragments := strings.Split(stream, "")
	got := Reconcile("", fragments)
	assert.Equal(t, "Plan:\n\nEnjoy ✅", got.Prose)
	assert.Equal(t, "\n<h1>Hi</h1>\n", got.Code)
}

func TestReconcileCloseMarkerSplit(t *testing.T) {
	got := Reconcile("", []string{"```html<p>x</p>`", "`", "` after"})
	assert.Equal(t, "<p>x</p>", got.Code)
	assert.Equal(t, " after", got.Prose)
}

func TestReconcileUnterminatedBlock(t *testing.T) {
	got := Reconcile("", []string{"start ```html<div>", "partial`"})
	assert.Equal(t, "start ", got.Prose)
	assert.Equal(t, "<div>partial`", got.Code)
}

func TestReconcileTrailingBacktickInProseIsFlushed(t *testing.T) {
	got := Reconcile("", []string{"use ``"})
	assert.Equal(t, "use ``", got.Prose)
}

func TestFeedReleasesProseIncrementally(t *testing.T) {
	r := New("")
	assert.Equal(t, "Hello ", r.Feed("Hello "))
	assert.Equal(t, "world", r.Feed("world``"))
	assert.Equal(t, StateProse, r.State())
	assert.Equal(t, "", r.Feed("`html<p>"))
	assert.Equal(t, StateCode, r.State())
	assert.Equal(t, "!", r.Feed("</p>```!"))
	assert.Equal(t, StateProse, r.State())

	res := r.Finish()
	assert.Equal(t, "Hello world!", res.Prose)
	assert.Equal(t, "<p></p>", res.Code)
}

func TestPartialMarker(t *testing.T) {
	assert.Equal(t, 0, partialMarker("abc", OpenMarker))
	assert.Equal(t, 1, partialMarker("abc`", OpenMarker))
	assert.Equal(t, 6, partialMarker("x```htm", OpenMarker))
	assert.Equal(t, 0, partialMarker("x```html", OpenMarker))
	assert.Equal(t, 2, partialMarker("code``", CloseMarker))
	assert.Equal(t, 0, partialMarker("", CloseMarker))
}

func TestSpeechText(t *testing.T) {
	assert.Equal(t, "OK. Done: bold gone", SpeechText("✅ Done: **bold** gone"))
	assert.Equal(t, "Title", SpeechText("## `Title`\n"))
}
