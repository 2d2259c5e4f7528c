package app

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/victorhugom-zz/rio-review/internal/domain"
)

/********** outward view **********/

// ReviewView is what clients see of a review: the ledger is reduced to its
// breakdown plus, when a voter is named, that voter's own vote.
type ReviewView struct {
	ID          string            `json:"id"`
	ItemID      string            `json:"itemId"`
	ItemName    string            `json:"itemName,omitempty"`
	AuthorID    string            `json:"authorId"`
	AuthorName  string            `json:"authorName"`
	DateCreated time.Time         `json:"dateCreated"`
	Rating      float64           `json:"rating"`
	Title       string            `json:"title"`
	Text        string            `json:"text"`
	Approved    bool              `json:"approved"`
	Relevance   domain.Breakdown  `json:"relevance"`
	Score       int               `json:"score"`
	MyVote      *domain.Relevance `json:"myVote,omitempty"`
}

// ToView builds the client view of r, decorated with voterID's own vote.
func ToView(r *domain.Review, voterID string) ReviewView {
	v := ReviewView{
		ID:          r.ID,
		ItemID:      r.ItemID,
		ItemName:    r.ItemName,
		AuthorID:    r.AuthorID,
		AuthorName:  r.AuthorName,
		DateCreated: r.DateCreated,
		Rating:      r.Rating,
		Title:       r.Title,
		Text:        r.Text,
		Approved:    r.Approved,
		Relevance:   r.RelevanceBreakdown(),
		Score:       r.RelevanceScore(),
	}
	if voterID != "" {
		if rel, ok := r.VoteFor(voterID); ok {
			v.MyVote = &rel
		}
	}
	return v
}

/********** feed alias registry **********/

var feedAliases = map[string][]string{
	"author_id": {"authorId", "author_id", "userId", "user_id", "user.id", "reviewer.id"},
	"author":    {"authorName", "author", "name", "userName", "reviewer", "reviewer.name", "user.name"},
	"item_name": {"itemName", "item_name", "product.name", "productName"},
	"title":     {"title", "review_title", "headline", "summary"},
	"text":      {"text", "review_text", "review", "comment", "content", "body", "message"},
	"rating":    {"rating", "rate", "score", "stars", "rating.value", "scores.overall"},
	"created":   {"dateCreated", "date_created", "createdAt", "created_at", "date", "timestamp"},
	"approved":  {"approved", "isApproved", "is_approved", "published"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns the string (or number rendered as string) at path.
func lookupStr(m map[string]any, path string) string {
	switch v := lookupAny(m, path).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func firstAlias(m map[string]any, key string) string {
	for _, p := range feedAliases[key] {
		if s := lookupStr(m, p); s != "" {
			return s
		}
	}
	return ""
}

// floatAlias: number from several paths (float64/int/string like "4,5").
func floatAlias(m map[string]any, key string) (float64, bool) {
	for _, p := range feedAliases[key] {
		switch v := lookupAny(m, p).(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func boolAlias(m map[string]any, key string) bool {
	for _, p := range feedAliases[key] {
		switch v := lookupAny(m, p).(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b
			}
		}
	}
	return false
}

var feedTimeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func timeAlias(m map[string]any, key string) (time.Time, bool) {
	for _, p := range feedAliases[key] {
		switch v := lookupAny(m, p).(type) {
		case string:
			for _, layout := range feedTimeLayouts {
				if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
					return t.UTC(), true
				}
			}
		case float64:
			// epoch seconds
			return time.Unix(int64(v), 0).UTC(), true
		}
	}
	return time.Time{}, false
}

/********** feed mapper **********/

// mapFeedReview turns one loosely shaped export row into a Review for
// itemID. Rows without a usable author or rating are rejected.
func mapFeedReview(itemID string, row map[string]any, now time.Time) (*domain.Review, bool) {
	rating, ok := floatAlias(row, "rating")
	if !ok || rating < 1 || rating > 5 {
		log.Debug().Str("item_id", itemID).Str("context", "mapFeedReview").Msg("row without a rating in 1..5 dropped")
		return nil, false
	}

	authorName := firstAlias(row, "author")
	authorID := firstAlias(row, "author_id")
	if authorID == "" && authorName != "" {
		// No stable id upstream: derive one from the name so re-imports dedupe.
		sum := sha1.Sum([]byte(strings.ToLower(authorName)))
		authorID = "feed-" + hex.EncodeToString(sum[:8])
	}
	if authorID == "" {
		log.Debug().Str("item_id", itemID).Str("context", "mapFeedReview").Msg("row without an author dropped")
		return nil, false
	}

	created, ok := timeAlias(row, "created")
	if !ok {
		created = now.UTC()
	}

	return &domain.Review{
		ItemID:      itemID,
		ItemName:    firstAlias(row, "item_name"),
		AuthorID:    authorID,
		AuthorName:  authorName,
		Rating:      rating,
		Title:       firstAlias(row, "title"),
		Text:        firstAlias(row, "text"),
		Votes:       []domain.Vote{},
		Approved:    boolAlias(row, "approved"),
		DateCreated: created,
	}, true
}
