package domain

import (
	"context"
	"iter"
	"sync"
)

// Entity is a document the store can key and version.
type Entity interface {
	GetID() string
	SetID(id string)
	GetVersion() int64
	SetVersion(v int64)
}

// NaturalKeyer is implemented by entities that carry a uniqueness key besides
// their id. Stores reject a second document with the same key.
type NaturalKeyer interface {
	NaturalKey() string
}

// Predicate filters documents in memory.
type Predicate[T any] interface {
	Match(doc T) bool
}

// FieldMatch is an equality on a top-level document field, named by its
// serialized key.
type FieldMatch struct {
	Field string
	Value any
}

// FieldMatcher is implemented by predicates whose constraints a backend can
// push down. Match is still applied to every returned document.
type FieldMatcher interface {
	FieldMatches() []FieldMatch
}

// PredicateFunc adapts a plain function to Predicate.
type PredicateFunc[T any] func(T) bool

func (f PredicateFunc[T]) Match(doc T) bool { return f(doc) }

// Store is the generic document store contract.
type Store[T Entity] interface {
	Create(ctx context.Context, doc T) error
	Get(ctx context.Context, id string) (T, bool, error)
	Query(ctx context.Context, pred Predicate[T]) *View[T]
	Update(ctx context.Context, id string, doc T) error
	Replace(ctx context.Context, doc T) error
	Delete(ctx context.Context, id string) error
	BulkCreate(ctx context.Context, docs []T) error
}

// View is a lazily loaded query result. The first iteration runs the load;
// later iterations replay the same snapshot.
type View[T any] struct {
	load  func() ([]T, error)
	once  sync.Once
	items []T
	err   error
}

func NewView[T any](load func() ([]T, error)) *View[T] {
	return &View[T]{load: load}
}

func (v *View[T]) resolve() {
	v.once.Do(func() {
		v.items, v.err = v.load()
		v.load = nil
	})
}

// All yields the snapshot in retrieval order. Check Err after ranging.
func (v *View[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		v.resolve()
		for _, it := range v.items {
			if !yield(it) {
				return
			}
		}
	}
}

func (v *View[T]) Err() error {
	v.resolve()
	return v.err
}

// Collect returns a copy of the snapshot.
func (v *View[T]) Collect() ([]T, error) {
	v.resolve()
	if v.err != nil {
		return nil, v.err
	}
	out := make([]T, len(v.items))
	copy(out, v.items)
	return out, nil
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, keys ...string) error
}

// ReviewFeed pulls loosely shaped review records for an item from an
// upstream source.
type ReviewFeed interface {
	GetReviews(ctx context.Context, itemID string) ([]map[string]any, error)
}
