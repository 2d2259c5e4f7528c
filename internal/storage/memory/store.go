// Package memory is an in-process document store with the same semantics as
// the MySQL backend: documents are held as JSON bodies, versioned, and unique
// on id and natural key.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/victorhugom-zz/rio-review/internal/domain"
	"github.com/victorhugom-zz/rio-review/internal/storage"
)

type record struct {
	key     string
	version int64
	seq     uint64
	body    []byte
}

type Store[T domain.Entity] struct {
	newDoc func() T
	opts   storage.Options

	mu   sync.RWMutex
	docs map[string]*record
	keys map[string]string // natural key -> id
	seq  uint64
}

var _ domain.Store[*domain.Review] = (*Store[*domain.Review])(nil)

func New[T domain.Entity](newDoc func() T, opts storage.Options) *Store[T] {
	return &Store[T]{
		newDoc: newDoc,
		opts:   opts.WithDefaults(),
		docs:   map[string]*record{},
		keys:   map[string]string{},
	}
}

func naturalKey(doc any) string {
	if k, ok := doc.(domain.NaturalKeyer); ok {
		return k.NaturalKey()
	}
	return ""
}

func (s *Store[T]) Create(ctx context.Context, doc T) error {
	if err := ctx.Err(); err != nil {
		return storage.Classify("create", err)
	}
	if doc.GetID() == "" {
		doc.SetID(uuid.NewString())
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", doc.GetID(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFreeLocked(doc.GetID(), naturalKey(doc)); err != nil {
		return err
	}
	s.insertLocked(doc.GetID(), naturalKey(doc), body)
	doc.SetVersion(1)
	return nil
}

func (s *Store[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, storage.Classify("get", err)
	}
	s.mu.RLock()
	rec, ok := s.docs[id]
	var snap record
	if ok {
		snap = *rec
	}
	s.mu.RUnlock()
	if !ok {
		return zero, false, nil
	}
	doc, err := s.decode(snap)
	if err != nil {
		return zero, false, err
	}
	return doc, true, nil
}

func (s *Store[T]) Query(ctx context.Context, pred domain.Predicate[T]) *domain.View[T] {
	return domain.NewView(func() ([]T, error) {
		if err := ctx.Err(); err != nil {
			return nil, storage.Classify("query", err)
		}
		s.mu.RLock()
		recs := make([]record, 0, len(s.docs))
		for _, r := range s.docs {
			recs = append(recs, *r)
		}
		s.mu.RUnlock()
		sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

		out := make([]T, 0, len(recs))
		for _, r := range recs {
			doc, err := s.decode(r)
			if err != nil {
				return nil, err
			}
			if pred == nil || pred.Match(doc) {
				out = append(out, doc)
			}
		}
		return out, nil
	})
}

func (s *Store[T]) Update(ctx context.Context, id string, doc T) error {
	if err := ctx.Err(); err != nil {
		return storage.Classify("update", err)
	}
	doc.SetID(id)
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	key := naturalKey(doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[id]
	if !ok {
		if err := s.checkFreeLocked(id, key); err != nil {
			return err
		}
		s.insertLocked(id, key, body)
		doc.SetVersion(1)
		return nil
	}
	if err := s.rekeyLocked(id, rec, key); err != nil {
		return err
	}
	rec.body = body
	rec.version++
	doc.SetVersion(rec.version)
	return nil
}

func (s *Store[T]) Replace(ctx context.Context, doc T) error {
	if err := ctx.Err(); err != nil {
		return storage.Classify("replace", err)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", doc.GetID(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[doc.GetID()]
	if !ok || rec.version != doc.GetVersion() {
		return fmt.Errorf("replace %s: %w", doc.GetID(), domain.ErrVersionMismatch)
	}
	if err := s.rekeyLocked(doc.GetID(), rec, naturalKey(doc)); err != nil {
		return err
	}
	rec.body = body
	rec.version++
	doc.SetVersion(rec.version)
	return nil
}

func (s *Store[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return storage.Classify("delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.docs[id]; ok {
		if rec.key != "" {
			delete(s.keys, rec.key)
		}
		delete(s.docs, id)
	}
	return nil
}

func (s *Store[T]) BulkCreate(ctx context.Context, docs []T) error {
	for _, d := range docs {
		if d.GetID() == "" {
			d.SetID(uuid.NewString())
		}
	}
	err := storage.Paced(ctx, docs, s.opts.BatchSize, s.opts.Pacing, s.insertBatch)
	return storage.Classify("bulk create", err)
}

// insertBatch writes all of batch or none of it.
func (s *Store[T]) insertBatch(ctx context.Context, batch []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bodies := make([][]byte, len(batch))
	for i, d := range batch {
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode %s: %w", d.GetID(), err)
		}
		bodies[i] = b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seenIDs := make(map[string]struct{}, len(batch))
	seenKeys := make(map[string]struct{}, len(batch))
	for _, d := range batch {
		id, key := d.GetID(), naturalKey(d)
		if err := s.checkFreeLocked(id, key); err != nil {
			return err
		}
		if _, dup := seenIDs[id]; dup {
			return fmt.Errorf("id %s: %w", id, domain.ErrDuplicate)
		}
		seenIDs[id] = struct{}{}
		if key != "" {
			if _, dup := seenKeys[key]; dup {
				return fmt.Errorf("natural key %s: %w", key, domain.ErrDuplicate)
			}
			seenKeys[key] = struct{}{}
		}
	}
	for i, d := range batch {
		s.insertLocked(d.GetID(), naturalKey(d), bodies[i])
		d.SetVersion(1)
	}
	return nil
}

func (s *Store[T]) checkFreeLocked(id, key string) error {
	if _, ok := s.docs[id]; ok {
		return fmt.Errorf("id %s: %w", id, domain.ErrDuplicate)
	}
	if key != "" {
		if _, ok := s.keys[key]; ok {
			return fmt.Errorf("natural key %s: %w", key, domain.ErrDuplicate)
		}
	}
	return nil
}

func (s *Store[T]) insertLocked(id, key string, body []byte) {
	s.seq++
	s.docs[id] = &record{key: key, version: 1, seq: s.seq, body: body}
	if key != "" {
		s.keys[key] = id
	}
}

func (s *Store[T]) rekeyLocked(id string, rec *record, key string) error {
	if key == rec.key {
		return nil
	}
	if key != "" {
		if owner, ok := s.keys[key]; ok && owner != id {
			return fmt.Errorf("natural key %s: %w", key, domain.ErrDuplicate)
		}
		s.keys[key] = id
	}
	if rec.key != "" {
		delete(s.keys, rec.key)
	}
	rec.key = key
	return nil
}

// decode works on a copy taken under the lock; bodies are replaced, never
// mutated, so the copy stays valid.
func (s *Store[T]) decode(rec record) (T, error) {
	doc := s.newDoc()
	if err := json.Unmarshal(rec.body, doc); err != nil {
		var zero T
		return zero, fmt.Errorf("decode document: %w", err)
	}
	doc.SetVersion(rec.version)
	return doc, nil
}
