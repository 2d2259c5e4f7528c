package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/victorhugom-zz/rio-review/internal/domain"
)

// Policy holds the behavioural switches of the write path.
type Policy struct {
	ApproveOnCreate bool
	AllowSelfVote   bool
	MaxAttempts     int
}

func DefaultPolicy() Policy {
	return Policy{AllowSelfVote: true, MaxAttempts: DefaultMaxAttempts}
}

// SubmitInput is one author's review of one item. Submitting again for the
// same (item, author) edits the existing review.
type SubmitInput struct {
	ItemID     string  `json:"itemId" validate:"required,max=200"`
	ItemName   string  `json:"itemName" validate:"max=500"`
	AuthorID   string  `json:"authorId" validate:"required,max=200"`
	AuthorName string  `json:"authorName" validate:"max=500"`
	Rating     float64 `json:"rating" validate:"gte=1,lte=5"`
	Title      string  `json:"title" validate:"max=500"`
	Text       string  `json:"text" validate:"max=20000"`
}

type CommandService struct {
	store  domain.Store[*domain.Review]
	repo   *ReviewRepository
	cache  domain.Cache
	policy Policy
	retry  retrier
	now    func() time.Time
}

func NewCommandService(s domain.Store[*domain.Review], cache domain.Cache, p Policy) *CommandService {
	return &CommandService{
		store:  s,
		repo:   NewReviewRepository(s),
		cache:  cache,
		policy: p,
		retry:  newRetrier(p.MaxAttempts, 0),
		now:    time.Now,
	}
}

// WithClock replaces the creation-time source.
func (s *CommandService) WithClock(now func() time.Time) *CommandService {
	s.now = now
	return s
}

// Submit creates the author's review for the item or merges into the one
// they already have. A first submission that loses the natural-key race to a
// concurrent one is retried as a merge.
func (s *CommandService) Submit(ctx context.Context, in SubmitInput) (*domain.Review, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var out *domain.Review
	err := s.retry.run(ctx, "submit", func() error {
		existing, ok, err := s.repo.FindByItemAndAuthor(ctx, in.ItemID, in.AuthorID)
		if err != nil {
			return err
		}
		if ok {
			existing.Merge(in.Rating, in.Title, in.Text)
			if err := s.store.Replace(ctx, existing); err != nil {
				return err
			}
			out = existing
			return nil
		}

		rv := &domain.Review{
			ItemID:      in.ItemID,
			ItemName:    in.ItemName,
			AuthorID:    in.AuthorID,
			AuthorName:  in.AuthorName,
			Rating:      in.Rating,
			Title:       in.Title,
			Text:        in.Text,
			Votes:       []domain.Vote{},
			Approved:    s.policy.ApproveOnCreate,
			DateCreated: s.now().UTC(),
		}
		if err := s.store.Create(ctx, rv); err != nil {
			return err
		}
		out = rv
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("review_id", out.ID).Str("item_id", out.ItemID).Str("author_id", out.AuthorID).
		Int64("version", out.Version).Msg("review submitted")
	s.invalidateItem(ctx, out.ItemID)
	return out, nil
}

// RegisterVote records the voter's relevance judgement on a review.
func (s *CommandService) RegisterVote(ctx context.Context, reviewID, authorID string, rel domain.Relevance) (*domain.Review, error) {
	if authorID == "" {
		return nil, fmt.Errorf("%w: voter author id is required", domain.ErrValidation)
	}

	var out *domain.Review
	err := s.retry.run(ctx, "vote", func() error {
		rv, err := s.repo.Get(ctx, reviewID)
		if err != nil {
			return err
		}
		if !s.policy.AllowSelfVote && rv.AuthorID == authorID {
			return fmt.Errorf("%w: authors cannot vote on their own review", domain.ErrValidation)
		}
		if cur, ok := rv.VoteFor(authorID); ok && cur == rel {
			out = rv
			return nil
		}
		if err := rv.RegisterVote(authorID, rel); err != nil {
			return err
		}
		if err := s.store.Replace(ctx, rv); err != nil {
			return err
		}
		out = rv
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("review_id", reviewID).Str("voter", authorID).Str("relevance", rel.String()).Msg("vote registered")
	s.invalidateItem(ctx, out.ItemID)
	return out, nil
}

func (s *CommandService) SetApproval(ctx context.Context, reviewID string, approved bool) (*domain.Review, error) {
	var out *domain.Review
	err := s.retry.run(ctx, "approve", func() error {
		rv, err := s.repo.Get(ctx, reviewID)
		if err != nil {
			return err
		}
		out = rv
		if rv.Approved == approved {
			return nil
		}
		rv.Approved = approved
		return s.store.Replace(ctx, rv)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("review_id", reviewID).Bool("approved", approved).Msg("review approval set")
	s.invalidateItem(ctx, out.ItemID)
	return out, nil
}

// Put replaces the whole document stored under id, creating it when absent.
func (s *CommandService) Put(ctx context.Context, id string, rv *domain.Review) (*domain.Review, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: review id is required", domain.ErrValidation)
	}
	if err := validateInput(putInput{ItemID: rv.ItemID, AuthorID: rv.AuthorID, Rating: rv.Rating}); err != nil {
		return nil, err
	}
	if err := rebuildLedger(rv); err != nil {
		return nil, err
	}
	prev, found, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rv.DateCreated.IsZero() {
		rv.DateCreated = s.now().UTC()
	}
	if err := s.store.Update(ctx, id, rv); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %w", domain.ErrConflict, err)
		}
		return nil, err
	}

	log.Info().Str("review_id", id).Bool("created", !found).Msg("review replaced")
	if found && prev.ItemID != rv.ItemID {
		s.invalidateItem(ctx, prev.ItemID)
	}
	s.invalidateItem(ctx, rv.ItemID)
	return rv, nil
}

// putInput is the part of an administrative replace that has to hold for
// any stored review.
type putInput struct {
	ItemID   string  `validate:"required,max=200"`
	AuthorID string  `validate:"required,max=200"`
	Rating   float64 `validate:"gte=1,lte=5"`
}

// rebuildLedger replays the submitted votes so each voter keeps one entry,
// the last one given.
func rebuildLedger(rv *domain.Review) error {
	votes := rv.Votes
	rv.Votes = make([]domain.Vote, 0, len(votes))
	for _, v := range votes {
		if err := rv.RegisterVote(v.AuthorID, v.Relevant); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a review; deleting an absent review is not an error.
func (s *CommandService) Delete(ctx context.Context, id string) error {
	prev, found, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if found {
		log.Info().Str("review_id", id).Msg("review deleted")
		s.invalidateItem(ctx, prev.ItemID)
	}
	return nil
}

// invalidateItem drops every cached listing variant of the item.
func (s *CommandService) invalidateItem(ctx context.Context, itemID string) {
	invalidateItem(ctx, s.cache, itemID)
}

func invalidateItem(ctx context.Context, c domain.Cache, itemID string) {
	if c == nil {
		return
	}
	if err := c.Del(ctx, itemCacheKeys(itemID)...); err != nil {
		log.Warn().Err(err).Str("item_id", itemID).Msg("cache invalidation failed")
	}
}
