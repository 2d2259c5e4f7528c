package app

import (
	"context"
	"fmt"

	"github.com/victorhugom-zz/rio-review/internal/domain"
)

// ReviewRepository answers review lookups using only the generic store
// primitives.
type ReviewRepository struct {
	store domain.Store[*domain.Review]
}

func NewReviewRepository(s domain.Store[*domain.Review]) *ReviewRepository {
	return &ReviewRepository{store: s}
}

func (r *ReviewRepository) Get(ctx context.Context, id string) (*domain.Review, error) {
	rv, ok, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("review %s: %w", id, domain.ErrNotFound)
	}
	return rv, nil
}

// FindByItem returns the item's reviews in retrieval order.
func (r *ReviewRepository) FindByItem(ctx context.Context, itemID string, onlyApproved bool) ([]domain.Review, error) {
	return r.collect(ctx, domain.ReviewFilter{ItemID: itemID, OnlyApproved: onlyApproved})
}

func (r *ReviewRepository) FindByItemAndAuthor(ctx context.Context, itemID, authorID string) (*domain.Review, bool, error) {
	v := r.store.Query(ctx, domain.ReviewFilter{ItemID: itemID, AuthorID: authorID})
	for rv := range v.All() {
		return rv, true, nil
	}
	if err := v.Err(); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

func (r *ReviewRepository) OrderedByRelevance(ctx context.Context, itemID string, onlyApproved bool) ([]domain.Review, error) {
	rs, err := r.FindByItem(ctx, itemID, onlyApproved)
	if err != nil {
		return nil, err
	}
	domain.SortByRelevance(rs)
	return rs, nil
}

func (r *ReviewRepository) OrderedByDate(ctx context.Context, itemID string, onlyApproved bool) ([]domain.Review, error) {
	rs, err := r.FindByItem(ctx, itemID, onlyApproved)
	if err != nil {
		return nil, err
	}
	domain.SortByDate(rs)
	return rs, nil
}

// Ordered dispatches on the sort order.
func (r *ReviewRepository) Ordered(ctx context.Context, itemID string, onlyApproved bool, order domain.SortOrder) ([]domain.Review, error) {
	if order == domain.SortDate {
		return r.OrderedByDate(ctx, itemID, onlyApproved)
	}
	return r.OrderedByRelevance(ctx, itemID, onlyApproved)
}

func (r *ReviewRepository) collect(ctx context.Context, f domain.ReviewFilter) ([]domain.Review, error) {
	v := r.store.Query(ctx, f)
	out := []domain.Review{}
	for rv := range v.All() {
		out = append(out, *rv)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
