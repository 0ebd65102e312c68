// Package search indexes saved revisions so projects can be searched by
// description and document text.
package search

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/net/html"

	"pilothub/api/internal/revisions"
)

// maxTextRunes bounds the document text stored per revision.
const maxTextRunes = 4000

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	Project     string `json:"project"`
	RevisionID  string `json:"revisionId"`
	Description string `json:"description"`
	Snippet     string `json:"snippet"`
	Source      string `json:"source"`
	Timestamp   string `json:"timestamp"`
}

// Query describes a search request.
type Query struct {
	Text    string
	Project string // empty = all projects
	Source  string // "ai", "manual" or empty
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push revisions into a search index.
type Indexer interface {
	IndexRevisions(records []RevisionRecord) error
	DeleteProject(project string) error
}

// RevisionRecord is the data we index for one revision of a project.
type RevisionRecord struct {
	ID          string `json:"id"`
	Project     string `json:"project"`
	RevisionID  string `json:"revisionId"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Timestamp   string `json:"timestamp"`
	Text        string `json:"text"`
}

// RecordsFor builds index records for every revision in a ledger.
func RecordsFor(project string, ledger revisions.Ledger) []RevisionRecord {
	records := make([]RevisionRecord, 0, ledger.Len())
	for _, rev := range ledger.Revisions {
		records = append(records, RevisionRecord{
			ID:          RecordID(project, rev.ID),
			Project:     project,
			RevisionID:  rev.ID,
			Description: rev.Description,
			Source:      revisions.Source(rev.Description),
			Timestamp:   rev.Timestamp,
			Text:        VisibleText(rev.Content),
		})
	}
	return records
}

// RecordID is stable per project and revision. The same revision saved under
// two project names gets two records.
func RecordID(project, revisionID string) string {
	sum := blake2b.Sum256([]byte(project + "\x00" + revisionID))
	return hex.EncodeToString(sum[:16])
}

// VisibleText returns the text a reader would see in an HTML document,
// skipping script and style bodies.
func VisibleText(document string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(document))
	var b strings.Builder
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return truncate(strings.Join(strings.Fields(b.String()), " "), maxTextRunes)
		case html.StartTagToken:
			if name, _ := tokenizer.TagName(); isHiddenTag(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := tokenizer.TagName(); isHiddenTag(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHiddenTag(name string) bool {
	return name == "script" || name == "style" || name == "template"
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}

func snippet(text, term string, width int) string {
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)
	idx := strings.Index(lower, strings.ToLower(term))
	if term == "" || idx < 0 {
		return truncate(text, width)
	}
	start := idx - width/2
	if start < 0 {
		start = 0
	}
	// Align to a rune boundary.
	for start > 0 && !utf8RuneStart(text[start]) {
		start--
	}
	out := truncate(text[start:], width)
	if start > 0 {
		out = "..." + out
	}
	return out
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
