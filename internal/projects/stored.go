package projects

import (
	"bytes"
	"encoding/json"
	"fmt"

	"pilothub/api/internal/revisions"
)

type Kind int

const (
	KindLedger Kind = iota + 1
	KindLegacy
)

// Stored is the decoded form of a project content key: either a revision
// ledger or raw document text written by older versions.
type Stored struct {
	Kind   Kind
	Ledger revisions.Ledger
	Legacy string
}

// Decode classifies raw stored content. A JSON object with a "revisions"
// array is a ledger and any other JSON object is corrupt. Everything else,
// including bare JSON values such as 42 or "hi", is legacy document text.
func Decode(raw string) (Stored, error) {
	if raw == "" {
		return Stored{}, fmt.Errorf("%w: empty content", ErrCorrupt)
	}
	trimmed := bytes.TrimSpace([]byte(raw))
	if !bytes.HasPrefix(trimmed, []byte("{")) || !json.Valid(trimmed) {
		return Stored{Kind: KindLegacy, Legacy: raw}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Stored{}, fmt.Errorf("%w: not a JSON object", ErrCorrupt)
	}
	list, ok := fields["revisions"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(list), []byte("[")) {
		return Stored{}, fmt.Errorf("%w: missing revisions array", ErrCorrupt)
	}
	var revs []revisions.Revision
	if err := json.Unmarshal(list, &revs); err != nil {
		return Stored{}, fmt.Errorf("%w: decode revisions: %v", ErrCorrupt, err)
	}
	return Stored{Kind: KindLedger, Ledger: revisions.Ledger{Revisions: revs}}, nil
}

// Encode serializes a ledger for storage.
func Encode(ledger revisions.Ledger) (string, error) {
	payload, err := json.Marshal(ledger)
	if err != nil {
		return "", fmt.Errorf("encode ledger: %w", err)
	}
	return string(payload), nil
}
