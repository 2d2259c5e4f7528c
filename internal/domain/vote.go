package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Relevance is a tri-state vote flag. The zero value is neutral, which keeps
// the voter's ledger slot without counting either way.
type Relevance int8

const (
	RelevanceNeutral     Relevance = 0
	RelevanceRelevant    Relevance = 1
	RelevanceNotRelevant Relevance = -1
)

// RelevanceFromBool maps a nullable bool (nil = neutral).
func RelevanceFromBool(b *bool) Relevance {
	switch {
	case b == nil:
		return RelevanceNeutral
	case *b:
		return RelevanceRelevant
	default:
		return RelevanceNotRelevant
	}
}

func (r Relevance) String() string {
	switch r {
	case RelevanceRelevant:
		return "relevant"
	case RelevanceNotRelevant:
		return "not_relevant"
	default:
		return "neutral"
	}
}

// MarshalJSON encodes as true, false or null.
func (r Relevance) MarshalJSON() ([]byte, error) {
	switch r {
	case RelevanceRelevant:
		return []byte("true"), nil
	case RelevanceNotRelevant:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (r *Relevance) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true":
		*r = RelevanceRelevant
	case "false":
		*r = RelevanceNotRelevant
	case "null":
		*r = RelevanceNeutral
	default:
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("%w: relevance must be true, false or null", ErrValidation)
		}
		switch s {
		case "relevant":
			*r = RelevanceRelevant
		case "not_relevant":
			*r = RelevanceNotRelevant
		case "neutral", "":
			*r = RelevanceNeutral
		default:
			return fmt.Errorf("%w: unknown relevance %q", ErrValidation, s)
		}
	}
	return nil
}

type Vote struct {
	AuthorID string    `json:"authorId"`
	Relevant Relevance `json:"isRelevant"`
}

// Breakdown is the reporting view of a ledger; neutral votes are excluded.
type Breakdown struct {
	Up   int `json:"+1"`
	Down int `json:"-1"`
}
