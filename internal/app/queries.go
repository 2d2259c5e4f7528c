package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/victorhugom-zz/rio-review/internal/domain"
)

// ListQuery selects one page of an item's reviews. A nil OnlyApproved takes
// the service default. VoterID, when set, decorates each review with that
// author's own vote.
type ListQuery struct {
	ItemID       string
	OnlyApproved *bool
	Sort         domain.SortOrder
	Skip         int
	Take         int
	VoterID      string
}

type ReviewPage struct {
	ItemID string       `json:"itemId"`
	Sort   string       `json:"sort"`
	Skip   int          `json:"skip"`
	Take   int          `json:"take"`
	Total  int          `json:"total"`
	Items  []ReviewView `json:"items"`
}

// ItemSummary combines the per-item statistics. Average is absent when no
// review qualifies.
type ItemSummary struct {
	ItemID  string              `json:"itemId"`
	Count   int                 `json:"count"`
	Average *float64            `json:"average"`
	Stars   domain.StarsSummary `json:"stars"`
}

type VoteStatus struct {
	ReviewID string           `json:"reviewId"`
	AuthorID string           `json:"authorId"`
	Voted    bool             `json:"voted"`
	Relevant domain.Relevance `json:"relevant"`
}

type QueryService struct {
	repo         *ReviewRepository
	cache        domain.Cache
	cacheTTL     time.Duration
	onlyApproved bool
}

func NewQueryService(s domain.Store[*domain.Review], c domain.Cache, ttl time.Duration, onlyApprovedDefault bool) *QueryService {
	return &QueryService{repo: NewReviewRepository(s), cache: c, cacheTTL: ttl, onlyApproved: onlyApprovedDefault}
}

func (s *QueryService) approvedFlag(p *bool) bool {
	if p == nil {
		return s.onlyApproved
	}
	return *p
}

// ListReviews returns one page of the item's reviews in the requested order.
func (s *QueryService) ListReviews(ctx context.Context, q ListQuery) (ReviewPage, error) {
	if q.ItemID == "" {
		return ReviewPage{}, fmt.Errorf("%w: item id is required", domain.ErrValidation)
	}
	order, ok := domain.ParseSortOrder(string(q.Sort))
	if !ok {
		return ReviewPage{}, fmt.Errorf("%w: unknown sort %q", domain.ErrValidation, q.Sort)
	}

	rs, err := s.ordered(ctx, q.ItemID, s.approvedFlag(q.OnlyApproved), order)
	if err != nil {
		return ReviewPage{}, err
	}
	pq := domain.PageQuery{Skip: q.Skip, Take: q.Take}.Normalize()
	page := domain.Page(rs, pq)

	items := make([]ReviewView, 0, len(page))
	for i := range page {
		items = append(items, ToView(&page[i], q.VoterID))
	}
	return ReviewPage{
		ItemID: q.ItemID,
		Sort:   string(order),
		Skip:   pq.Skip,
		Take:   pq.Take,
		Total:  len(rs),
		Items:  items,
	}, nil
}

func (s *QueryService) GetReview(ctx context.Context, id, voterID string) (ReviewView, error) {
	rv, err := s.repo.Get(ctx, id)
	if err != nil {
		return ReviewView{}, err
	}
	return ToView(rv, voterID), nil
}

// ReviewByAuthor returns the single review the author holds for the item.
func (s *QueryService) ReviewByAuthor(ctx context.Context, itemID, authorID, voterID string) (ReviewView, error) {
	if itemID == "" || authorID == "" {
		return ReviewView{}, fmt.Errorf("%w: item id and author id are required", domain.ErrValidation)
	}
	rv, ok, err := s.repo.FindByItemAndAuthor(ctx, itemID, authorID)
	if err != nil {
		return ReviewView{}, err
	}
	if !ok {
		return ReviewView{}, fmt.Errorf("review of %s by %s: %w", itemID, authorID, domain.ErrNotFound)
	}
	return ToView(rv, voterID), nil
}

func (s *QueryService) AverageRating(ctx context.Context, itemID string, onlyApproved *bool) (float64, error) {
	rs, err := s.ordered(ctx, itemID, s.approvedFlag(onlyApproved), domain.SortRelevance)
	if err != nil {
		return 0, err
	}
	avg, err := domain.AverageRating(rs)
	if err != nil {
		return 0, fmt.Errorf("item %s: %w", itemID, err)
	}
	return avg, nil
}

func (s *QueryService) StarsSummary(ctx context.Context, itemID string, onlyApproved *bool) (domain.StarsSummary, error) {
	rs, err := s.ordered(ctx, itemID, s.approvedFlag(onlyApproved), domain.SortRelevance)
	if err != nil {
		return domain.StarsSummary{}, err
	}
	return domain.Stars(rs), nil
}

func (s *QueryService) Summary(ctx context.Context, itemID string, onlyApproved *bool) (ItemSummary, error) {
	rs, err := s.ordered(ctx, itemID, s.approvedFlag(onlyApproved), domain.SortRelevance)
	if err != nil {
		return ItemSummary{}, err
	}
	out := ItemSummary{ItemID: itemID, Count: len(rs), Stars: domain.Stars(rs)}
	if avg, err := domain.AverageRating(rs); err == nil {
		out.Average = &avg
	} else if !errors.Is(err, domain.ErrEmptyAggregate) {
		return ItemSummary{}, err
	}
	return out, nil
}

// VoteFor reports how authorID voted on the review.
func (s *QueryService) VoteFor(ctx context.Context, reviewID, authorID string) (VoteStatus, error) {
	if authorID == "" {
		return VoteStatus{}, fmt.Errorf("%w: author id is required", domain.ErrValidation)
	}
	rv, err := s.repo.Get(ctx, reviewID)
	if err != nil {
		return VoteStatus{}, err
	}
	rel, ok := rv.VoteFor(authorID)
	return VoteStatus{ReviewID: reviewID, AuthorID: authorID, Voted: ok, Relevant: rel}, nil
}

// ordered serves the sorted review list from cache when possible. Callers
// get their own copy.
func (s *QueryService) ordered(ctx context.Context, itemID string, onlyApproved bool, order domain.SortOrder) ([]domain.Review, error) {
	if itemID == "" {
		return nil, fmt.Errorf("%w: item id is required", domain.ErrValidation)
	}
	key := itemCacheKey(itemID, onlyApproved, order)
	if s.cache != nil {
		var cached []domain.Review
		if ok, _ := s.cache.Get(ctx, key, &cached); ok {
			return cached, nil
		}
	}

	rs, err := s.repo.Ordered(ctx, itemID, onlyApproved, order)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, deepCopyReviews(rs), int(s.cacheTTL.Seconds()))
	}
	return rs, nil
}

// deepCopyReviews detaches the vote ledgers so a cache holding values by
// reference never sees later mutations.
func deepCopyReviews(in []domain.Review) []domain.Review {
	out := make([]domain.Review, len(in))
	copy(out, in)
	for i := range out {
		if in[i].Votes != nil {
			out[i].Votes = append([]domain.Vote(nil), in[i].Votes...)
		}
	}
	return out
}

func itemCacheKey(itemID string, onlyApproved bool, order domain.SortOrder) string {
	scope := "all"
	if onlyApproved {
		scope = "approved"
	}
	return fmt.Sprintf("reviews:%d:%s:%s:%s", len(itemID), itemID, scope, order)
}

func itemCacheKeys(itemID string) []string {
	keys := make([]string, 0, 4)
	for _, approved := range []bool{true, false} {
		for _, order := range []domain.SortOrder{domain.SortRelevance, domain.SortDate} {
			keys = append(keys, itemCacheKey(itemID, approved, order))
		}
	}
	return keys
}
