package domain

// MaxTake bounds the size of one listing page.
const MaxTake = 100

type SortOrder string

const (
	SortRelevance SortOrder = "relevance"
	SortDate      SortOrder = "date"
)

// ParseSortOrder accepts "", "relevance" and "date".
func ParseSortOrder(s string) (SortOrder, bool) {
	switch SortOrder(s) {
	case "", SortRelevance:
		return SortRelevance, true
	case SortDate:
		return SortDate, true
	}
	return "", false
}

type PageQuery struct {
	Skip int
	Take int
}

// Normalize clamps the query: negative skip becomes 0, and take falls back
// to MaxTake when unset and never exceeds it.
func (p PageQuery) Normalize() PageQuery {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Take <= 0 || p.Take > MaxTake {
		p.Take = MaxTake
	}
	return p
}

// Page applies skip then take to an already ordered slice.
func Page[T any](items []T, q PageQuery) []T {
	q = q.Normalize()
	if q.Skip >= len(items) {
		return []T{}
	}
	items = items[q.Skip:]
	if len(items) > q.Take {
		items = items[:q.Take]
	}
	return items
}
