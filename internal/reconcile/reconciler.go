// Package reconcile splits a streamed model response into conversational
// prose and the fenced HTML document it contains.
package reconcile

import "strings"

const (
	OpenMarker  = "```html"
	CloseMarker = "```"
)

type State int

const (
	StateProse State = iota
	StateCode
)

func (s State) String() string {
	if s == StateCode {
		return "code"
	}
	return "prose"
}

type Result struct {
	Prose string
	Code  string
	// Captured is true once a code block was opened.
	Captured bool
}

// HasCode reports whether the stream produced document content to apply.
func (r Result) HasCode() bool {
	return r.Captured && r.Code != ""
}

// Reconciler is a two-state machine over a growing buffer. Text that could be
// the start of a marker split across fragments is held back until the next
// fragment or Finish.
type Reconciler struct {
	state    State
	buf      string
	seed     string
	captured bool
	code     strings.Builder
	prose    strings.Builder
}

// New returns a reconciler whose code buffer is seeded with seed on the first
// opened block, so follow-up prompts edit the existing document.
func New(seed string) *Reconciler {
	return &Reconciler{seed: seed}
}

func (r *Reconciler) State() State { return r.state }

// Feed consumes one fragment and returns the prose it releases.
func (r *Reconciler) Feed(fragment string) string {
	r.buf += fragment
	var released strings.Builder
	for {
		switch r.state {
		case StateProse:
			idx := strings.Index(r.buf, OpenMarker)
			if idx < 0 {
				keep := partialMarker(r.buf, OpenMarker)
				released.WriteString(r.buf[:len(r.buf)-keep])
				r.buf = r.buf[len(r.buf)-keep:]
				r.prose.WriteString(released.String())
				return released.String()
			}
			released.WriteString(r.buf[:idx])
			r.buf = r.buf[idx+len(OpenMarker):]
			if !r.captured {
				r.captured = true
				r.code.WriteString(r.seed)
			}
			r.state = StateCode
		case StateCode:
			idx := strings.Index(r.buf, CloseMarker)
			if idx < 0 {
				keep := partialMarker(r.buf, CloseMarker)
				r.code.WriteString(r.buf[:len(r.buf)-keep])
				r.buf = r.buf[len(r.buf)-keep:]
				r.prose.WriteString(released.String())
				return released.String()
			}
			r.code.WriteString(r.buf[:idx])
			r.buf = r.buf[idx+len(CloseMarker):]
			r.state = StateProse
		}
	}
}

// Flush releases held-back text: as prose outside a block, or as code when
// the stream ended inside an unterminated block. It returns the released prose.
func (r *Reconciler) Flush() string {
	rest := r.buf
	r.buf = ""
	if r.state == StateCode {
		r.code.WriteString(rest)
		return ""
	}
	r.prose.WriteString(rest)
	return rest
}

// Finish flushes and returns the accumulated output.
func (r *Reconciler) Finish() Result {
	r.Flush()
	return r.Result()
}

// Result returns what has been accumulated so far.
func (r *Reconciler) Result() Result {
	return Result{Prose: r.prose.String(), Code: r.code.String(), Captured: r.captured}
}

// Reconcile runs a complete fragment sequence.
func Reconcile(seed string, fragments []string) Result {
	r := New(seed)
	for _, fragment := range fragments {
		r.Feed(fragment)
	}
	return r.Finish()
}

// partialMarker returns the length of the longest suffix of s that is a
// proper prefix of marker.
func partialMarker(s, marker string) int {
	n := len(marker) - 1
	if len(s) < n {
		n = len(s)
	}
	for k := n; k > 0; k-- {
		if strings.HasSuffix(s, marker[:k]) {
			return k
		}
	}
	return 0
}
