package app_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/victorhugom-zz/rio-review/internal/app"
	"github.com/victorhugom-zz/rio-review/internal/domain"
)

// seedScenario submits five reviews for item X by authors a1..a5.
func seedScenario(t *testing.T, cmd *app.CommandService) []*domain.Review {
	t.Helper()
	var out []*domain.Review
	for i, rating := range []float64{3, 4, 5, 2, 5} {
		rv, err := cmd.Submit(context.Background(), app.SubmitInput{
			ItemID:     "X",
			AuthorID:   fmt.Sprintf("a%d", i+1),
			AuthorName: fmt.Sprintf("Author %d", i+1),
			Rating:     rating,
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
		out = append(out, rv)
	}
	return out
}

func ids(items []app.ReviewView) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestEndToEndScenario(t *testing.T) {
	s := newStore()
	cache := &fakeCache{}
	cmd := newCommands(s, cache, app.DefaultPolicy())
	q := app.NewQueryService(s, cache, 0, true)
	ctx := context.Background()
	rs := seedScenario(t, cmd)

	avg, err := q.AverageRating(ctx, "X", ptr(false))
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if math.Abs(avg-3.8) > 1e-9 {
		t.Fatalf("average: want 3.8, got %v", avg)
	}

	page, err := q.ListReviews(ctx, app.ListQuery{ItemID: "X", OnlyApproved: ptr(false)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{rs[0].ID, rs[1].ID, rs[2].ID, rs[3].ID, rs[4].ID}
	if got := ids(page.Items); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("tied scores should keep submission order:\nwant %v\ngot  %v", want, got)
	}

	if _, err := cmd.RegisterVote(ctx, rs[4].ID, "a1", domain.RelevanceRelevant); err != nil {
		t.Fatalf("upvote: %v", err)
	}
	if _, err := cmd.RegisterVote(ctx, rs[0].ID, "a2", domain.RelevanceNotRelevant); err != nil {
		t.Fatalf("downvote: %v", err)
	}

	page, _ = q.ListReviews(ctx, app.ListQuery{ItemID: "X", OnlyApproved: ptr(false), Sort: domain.SortRelevance})
	got := ids(page.Items)
	if got[0] != rs[4].ID || got[4] != rs[0].ID {
		t.Fatalf("relevance order wrong: %v", got)
	}
	if page.Items[0].Relevance.Up != 1 || page.Items[4].Relevance.Down != 1 {
		t.Fatalf("breakdown not exposed: %+v / %+v", page.Items[0].Relevance, page.Items[4].Relevance)
	}

	page, _ = q.ListReviews(ctx, app.ListQuery{ItemID: "X", OnlyApproved: ptr(false), Sort: domain.SortDate})
	if got := ids(page.Items); got[0] != rs[4].ID || got[4] != rs[0].ID {
		t.Fatalf("date order should be newest first: %v", got)
	}

	// Default is approved only and nothing is approved yet.
	if _, err := q.AverageRating(ctx, "X", nil); !errors.Is(err, domain.ErrEmptyAggregate) {
		t.Fatalf("expected ErrEmptyAggregate, got %v", err)
	}
	stars, err := q.StarsSummary(ctx, "X", ptr(false))
	if err != nil {
		t.Fatalf("stars: %v", err)
	}
	if stars != (domain.StarsSummary{TwoStars: 1, ThreeStars: 1, FourStars: 1, FiveStars: 2}) {
		t.Fatalf("stars: %+v", stars)
	}
}

func TestSelfVoteIsVisible(t *testing.T) {
	s := newStore()
	cmd := newCommands(s, nil, app.DefaultPolicy())
	q := app.NewQueryService(s, nil, 0, true)
	ctx := context.Background()
	rs := seedScenario(t, cmd)

	if _, err := cmd.RegisterVote(ctx, rs[0].ID, "a1", domain.RelevanceRelevant); err != nil {
		t.Fatalf("self vote: %v", err)
	}
	st, err := q.VoteFor(ctx, rs[0].ID, "a1")
	if err != nil {
		t.Fatalf("vote for: %v", err)
	}
	if !st.Voted || st.Relevant != domain.RelevanceRelevant {
		t.Fatalf("unexpected status: %+v", st)
	}

	st, _ = q.VoteFor(ctx, rs[0].ID, "a9")
	if st.Voted || st.Relevant != domain.RelevanceNeutral {
		t.Fatalf("non-voter reported as voted: %+v", st)
	}

	v, err := q.GetReview(ctx, rs[0].ID, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.MyVote == nil || *v.MyVote != domain.RelevanceRelevant {
		t.Fatalf("caller's vote missing from view: %+v", v)
	}
}

func TestListReviews_PagingClampsTake(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	var docs []*domain.Review
	for i := 0; i < 150; i++ {
		docs = append(docs, &domain.Review{ItemID: "big", AuthorID: fmt.Sprintf("a%03d", i), Rating: 3, Approved: true})
	}
	if err := s.BulkCreate(ctx, docs); err != nil {
		t.Fatalf("bulk: %v", err)
	}
	q := app.NewQueryService(s, nil, 0, true)

	page, err := q.ListReviews(ctx, app.ListQuery{ItemID: "big", Take: 500})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 100 || page.Take != 100 || page.Total != 150 {
		t.Fatalf("clamp: items=%d take=%d total=%d", len(page.Items), page.Take, page.Total)
	}

	page, _ = q.ListReviews(ctx, app.ListQuery{ItemID: "big", Skip: 140, Take: 20})
	if len(page.Items) != 10 || page.Items[0].AuthorID != "a140" {
		t.Fatalf("tail page: %d items", len(page.Items))
	}
}

func TestListReviews_OnlyApprovedDefault(t *testing.T) {
	s := newStore()
	cmd := newCommands(s, nil, app.DefaultPolicy())
	ctx := context.Background()
	rs := seedScenario(t, cmd)
	if _, err := cmd.SetApproval(ctx, rs[1].ID, true); err != nil {
		t.Fatal(err)
	}

	strict := app.NewQueryService(s, nil, 0, true)
	page, _ := strict.ListReviews(ctx, app.ListQuery{ItemID: "X"})
	if len(page.Items) != 1 || page.Items[0].ID != rs[1].ID {
		t.Fatalf("approved-only default: %v", ids(page.Items))
	}

	loose := app.NewQueryService(s, nil, 0, false)
	page, _ = loose.ListReviews(ctx, app.ListQuery{ItemID: "X"})
	if len(page.Items) != 5 {
		t.Fatalf("all-reviews default: %d", len(page.Items))
	}
	page, _ = loose.ListReviews(ctx, app.ListQuery{ItemID: "X", OnlyApproved: ptr(true)})
	if len(page.Items) != 1 {
		t.Fatalf("explicit flag should win: %d", len(page.Items))
	}
}

func TestListReviews_Validation(t *testing.T) {
	q := app.NewQueryService(newStore(), nil, 0, true)
	ctx := context.Background()

	if _, err := q.ListReviews(ctx, app.ListQuery{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing item, got %v", err)
	}
	if _, err := q.ListReviews(ctx, app.ListQuery{ItemID: "X", Sort: "rating"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown sort, got %v", err)
	}
	page, err := q.ListReviews(ctx, app.ListQuery{ItemID: "unknown"})
	if err != nil || page.Items == nil || len(page.Items) != 0 {
		t.Fatalf("unknown item should list empty: %v %+v", err, page)
	}
}

func TestListReviews_CacheMissThenHit(t *testing.T) {
	s := newStore()
	cache := &fakeCache{}
	cmd := newCommands(s, nil, app.DefaultPolicy())
	seedScenario(t, cmd)
	q := app.NewQueryService(s, cache, 0, false)
	ctx := context.Background()

	first, err := q.ListReviews(ctx, app.ListQuery{ItemID: "X"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// A write that bypasses invalidation is not seen until the entry is dropped.
	if err := s.Delete(ctx, first.Items[0].ID); err != nil {
		t.Fatal(err)
	}
	second, _ := q.ListReviews(ctx, app.ListQuery{ItemID: "X"})
	if len(second.Items) != 5 || cache.hits != 1 {
		t.Fatalf("expected cached listing: %d items, %d hits", len(second.Items), cache.hits)
	}
}

func TestReviewByAuthor(t *testing.T) {
	s := newStore()
	cmd := newCommands(s, nil, app.DefaultPolicy())
	q := app.NewQueryService(s, nil, 0, true)
	ctx := context.Background()
	rs := seedScenario(t, cmd)

	v, err := q.ReviewByAuthor(ctx, "X", "a3", "")
	if err != nil || v.ID != rs[2].ID {
		t.Fatalf("by author: %v %+v", err, v)
	}
	if _, err := q.ReviewByAuthor(ctx, "X", "zz", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := q.GetReview(ctx, "nope", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	s := newStore()
	cmd := newCommands(s, nil, app.DefaultPolicy())
	q := app.NewQueryService(s, nil, 0, true)
	ctx := context.Background()

	empty, err := q.Summary(ctx, "X", nil)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if empty.Count != 0 || empty.Average != nil || empty.Stars.Total() != 0 {
		t.Fatalf("empty summary: %+v", empty)
	}

	seedScenario(t, cmd)
	sum, _ := q.Summary(ctx, "X", ptr(false))
	if sum.Count != 5 || sum.Average == nil || math.Abs(*sum.Average-3.8) > 1e-9 || sum.Stars.FiveStars != 2 {
		t.Fatalf("summary: %+v", sum)
	}
}
