package domain

import (
	"cmp"
	"math"
	"slices"
)

// StarsSummary is a fixed five-bucket histogram of floored ratings. Field
// order is the serialized key order.
type StarsSummary struct {
	OneStar    int `json:"oneStar"`
	TwoStars   int `json:"twoStars"`
	ThreeStars int `json:"threeStars"`
	FourStars  int `json:"fourStars"`
	FiveStars  int `json:"fiveStars"`
}

// Total is the number of reviews that landed in a bucket.
func (s StarsSummary) Total() int {
	return s.OneStar + s.TwoStars + s.ThreeStars + s.FourStars + s.FiveStars
}

// AverageRating is the arithmetic mean of the ratings.
func AverageRating(reviews []Review) (float64, error) {
	if len(reviews) == 0 {
		return 0, ErrEmptyAggregate
	}
	var sum float64
	for _, r := range reviews {
		sum += r.Rating
	}
	return sum / float64(len(reviews)), nil
}

// Stars buckets each review by floor(rating). Ratings outside 1..5 are
// dropped without error, so 5.9 counts nowhere while 4.7 counts as four.
func Stars(reviews []Review) StarsSummary {
	var s StarsSummary
	for _, r := range reviews {
		if math.IsNaN(r.Rating) || r.Rating < 1 || r.Rating > 5 {
			continue
		}
		switch int(math.Floor(r.Rating)) {
		case 1:
			s.OneStar++
		case 2:
			s.TwoStars++
		case 3:
			s.ThreeStars++
		case 4:
			s.FourStars++
		case 5:
			s.FiveStars++
		}
	}
	return s
}

// SortByRelevance orders by relevance score, highest first. Equal scores
// keep their retrieval order.
func SortByRelevance(reviews []Review) {
	slices.SortStableFunc(reviews, func(a, b Review) int {
		return cmp.Compare(b.RelevanceScore(), a.RelevanceScore())
	})
}

// SortByDate orders newest first; ties keep their retrieval order.
func SortByDate(reviews []Review) {
	slices.SortStableFunc(reviews, func(a, b Review) int {
		return b.DateCreated.Compare(a.DateCreated)
	})
}
