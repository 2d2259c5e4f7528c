package domain

// ReviewFilter selects reviews for one item, optionally one author, and
// optionally only approved ones.
type ReviewFilter struct {
	ItemID       string
	AuthorID     string
	OnlyApproved bool
}

func (f ReviewFilter) Match(r *Review) bool {
	if r.ItemID != f.ItemID {
		return false
	}
	if f.AuthorID != "" && r.AuthorID != f.AuthorID {
		return false
	}
	return !f.OnlyApproved || r.Approved
}

func (f ReviewFilter) FieldMatches() []FieldMatch {
	m := []FieldMatch{{Field: "itemId", Value: f.ItemID}}
	if f.AuthorID != "" {
		m = append(m, FieldMatch{Field: "authorId", Value: f.AuthorID})
	}
	if f.OnlyApproved {
		m = append(m, FieldMatch{Field: "approved", Value: true})
	}
	return m
}
