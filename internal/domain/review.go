package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Review is one author's rated opinion about one item. The vote ledger is
// embedded in the document; there is no separate vote collection.
type Review struct {
	ID          string    `json:"id"`
	ItemID      string    `json:"itemId"`
	ItemName    string    `json:"itemName"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	Rating      float64   `json:"rating"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	Votes       []Vote    `json:"votes"`
	Approved    bool      `json:"approved"`
	DateCreated time.Time `json:"dateCreated"`

	// Version is owned by the store (compare-and-swap token).
	Version int64 `json:"-"`
}

func (r *Review) GetID() string      { return r.ID }
func (r *Review) SetID(id string)    { r.ID = id }
func (r *Review) GetVersion() int64  { return r.Version }
func (r *Review) SetVersion(v int64) { r.Version = v }
func (r *Review) NaturalKey() string { return ReviewKey(r.ItemID, r.AuthorID) }

// ReviewKey identifies the single review an author may hold for an item.
func ReviewKey(itemID, authorID string) string {
	return strconv.Itoa(len(itemID)) + ":" + itemID + ":" + authorID
}

// Merge overwrites the author-editable fields. Identity, ledger, approval
// and creation time are left alone.
func (r *Review) Merge(rating float64, title, text string) {
	r.Rating = rating
	r.Title = title
	r.Text = text
}

// RegisterVote records authorID's judgement, overwriting a previous vote by
// the same author in place.
func (r *Review) RegisterVote(authorID string, rel Relevance) error {
	if authorID == "" {
		return fmt.Errorf("%w: voter author id is required", ErrValidation)
	}
	for i := range r.Votes {
		if r.Votes[i].AuthorID == authorID {
			r.Votes[i].Relevant = rel
			return nil
		}
	}
	r.Votes = append(r.Votes, Vote{AuthorID: authorID, Relevant: rel})
	return nil
}

// VoteFor reports how authorID voted, if at all.
func (r *Review) VoteFor(authorID string) (Relevance, bool) {
	for _, v := range r.Votes {
		if v.AuthorID == authorID {
			return v.Relevant, true
		}
	}
	return RelevanceNeutral, false
}

func (r *Review) RelevanceBreakdown() Breakdown {
	var b Breakdown
	for _, v := range r.Votes {
		switch v.Relevant {
		case RelevanceRelevant:
			b.Up++
		case RelevanceNotRelevant:
			b.Down++
		}
	}
	return b
}

// RelevanceScore is relevant votes minus not-relevant votes.
func (r *Review) RelevanceScore() int {
	b := r.RelevanceBreakdown()
	return b.Up - b.Down
}
