package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/victorhugom-zz/rio-review/internal/domain"
)

type IngestResult struct {
	ItemID   string
	Fetched  int
	Dropped  int
	Skipped  int
	Imported int
	Missing  bool
}

// IngestionService imports an upstream review export into the store.
type IngestionService struct {
	feed  domain.ReviewFeed
	store domain.Store[*domain.Review]
	repo  *ReviewRepository
	cache domain.Cache
	now   func() time.Time
}

func NewIngestionService(f domain.ReviewFeed, s domain.Store[*domain.Review], cache domain.Cache) *IngestionService {
	return &IngestionService{feed: f, store: s, repo: NewReviewRepository(s), cache: cache, now: time.Now}
}

// IngestItem pulls the item's export, keeps the last row per author, skips
// authors that already hold a review, and bulk creates the rest. An item the
// feed does not know is recorded as missing, not failed.
func (s *IngestionService) IngestItem(ctx context.Context, itemID string) (IngestResult, error) {
	res := IngestResult{ItemID: itemID}
	if itemID == "" {
		return res, fmt.Errorf("%w: item id is required", domain.ErrValidation)
	}

	rows, err := s.feed.GetReviews(ctx, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Str("item_id", itemID).Msg("feed has no reviews for item")
			res.Missing = true
			return res, nil
		}
		return res, fmt.Errorf("fetch reviews for %s: %w", itemID, err)
	}
	res.Fetched = len(rows)

	// Last row per author wins, at the position the author first appeared.
	now := s.now()
	var order []string
	byAuthor := make(map[string]*domain.Review, len(rows))
	for _, row := range rows {
		rv, ok := mapFeedReview(itemID, row, now)
		if !ok {
			res.Dropped++
			continue
		}
		if _, seen := byAuthor[rv.AuthorID]; seen {
			res.Dropped++
		} else {
			order = append(order, rv.AuthorID)
		}
		byAuthor[rv.AuthorID] = rv
	}

	stored, err := s.repo.FindByItem(ctx, itemID, false)
	if err != nil {
		return res, err
	}
	have := make(map[string]struct{}, len(stored))
	for _, r := range stored {
		have[r.AuthorID] = struct{}{}
	}

	fresh := make([]*domain.Review, 0, len(order))
	for _, a := range order {
		if _, ok := have[a]; ok {
			res.Skipped++
			continue
		}
		fresh = append(fresh, byAuthor[a])
	}

	if len(fresh) > 0 {
		n, err := s.create(ctx, fresh)
		res.Imported = n
		res.Skipped += len(fresh) - n
		if err != nil {
			return res, fmt.Errorf("import reviews for %s: %w", itemID, err)
		}
	}
	invalidateItem(ctx, s.cache, itemID)

	log.Info().Str("item_id", itemID).Int("fetched", res.Fetched).Int("imported", res.Imported).
		Int("skipped", res.Skipped).Int("dropped", res.Dropped).Msg("ingested item reviews")
	return res, nil
}

// create bulk inserts docs. A batch that collides with a review submitted
// meanwhile is replayed one by one, skipping the collisions.
func (s *IngestionService) create(ctx context.Context, docs []*domain.Review) (int, error) {
	err := s.store.BulkCreate(ctx, docs)
	if err == nil {
		return len(docs), nil
	}
	if !errors.Is(err, domain.ErrDuplicate) {
		return 0, err
	}

	log.Warn().Err(err).Msg("bulk import collided; falling back to single inserts")
	n := 0
	for _, d := range docs {
		if _, ok, gerr := s.store.Get(ctx, d.ID); gerr == nil && ok {
			n++ // landed in an earlier batch
			continue
		}
		cerr := s.store.Create(ctx, d)
		switch {
		case cerr == nil:
			n++
		case errors.Is(cerr, domain.ErrDuplicate):
		default:
			return n, cerr
		}
	}
	return n, nil
}
