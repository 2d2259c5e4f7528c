package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/victorhugom-zz/rio-review/internal/adapters/observability"
	"github.com/victorhugom-zz/rio-review/internal/domain"
	"github.com/victorhugom-zz/rio-review/internal/storage"
)

const errDupEntry = 1062

// Store keeps documents of one collection as JSON bodies in the shared
// documents table.
type Store[T domain.Entity] struct {
	db         *sql.DB
	collection string
	newDoc     func() T
	opts       storage.Options
}

var _ domain.Store[*domain.Review] = (*Store[*domain.Review])(nil)

func New[T domain.Entity](db *sql.DB, collection string, newDoc func() T, opts storage.Options) *Store[T] {
	return &Store[T]{db: db, collection: collection, newDoc: newDoc, opts: opts.WithDefaults()}
}

// EnsureSchema creates the documents table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createDocumentsSQL); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

func nullKey(doc any) any {
	if k, ok := doc.(domain.NaturalKeyer); ok {
		if key := k.NaturalKey(); key != "" {
			return key
		}
	}
	return nil
}

func (s *Store[T]) Create(ctx context.Context, doc T) (err error) {
	defer s.observe("create", time.Now(), &err)
	if doc.GetID() == "" {
		doc.SetID(uuid.NewString())
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", doc.GetID(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	// JSON columns reject binary-charset input, so bodies go over as strings.
	if _, err := s.db.ExecContext(ctx, insertDocSQL, s.collection, doc.GetID(), nullKey(doc), string(body)); err != nil {
		return storage.ClassifyCtx(ctx, "create", dupOr(err))
	}
	doc.SetVersion(1)
	return nil
}

func (s *Store[T]) Get(ctx context.Context, id string) (doc T, ok bool, err error) {
	defer s.observe("get", time.Now(), &err)
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var (
		version int64
		body    []byte
	)
	err = s.db.QueryRowContext(ctx, getDocSQL, s.collection, id).Scan(&version, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return doc, false, nil
	}
	if err != nil {
		return doc, false, storage.ClassifyCtx(ctx, "get", err)
	}
	doc, err = s.decode(version, body)
	if err != nil {
		return doc, false, err
	}
	return doc, true, nil
}

func (s *Store[T]) Query(ctx context.Context, pred domain.Predicate[T]) *domain.View[T] {
	return domain.NewView(func() (out []T, err error) {
		defer s.observe("query", time.Now(), &err)
		ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		q, args := s.buildQuery(pred)
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, storage.ClassifyCtx(ctx, "query", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				version int64
				body    []byte
			)
			if err := rows.Scan(&version, &body); err != nil {
				return nil, storage.ClassifyCtx(ctx, "query scan", err)
			}
			doc, err := s.decode(version, body)
			if err != nil {
				return nil, err
			}
			if pred == nil || pred.Match(doc) {
				out = append(out, doc)
			}
		}
		if err := rows.Err(); err != nil {
			return nil, storage.ClassifyCtx(ctx, "query rows", err)
		}
		if out == nil {
			out = []T{}
		}
		return out, nil
	})
}

func (s *Store[T]) buildQuery(pred domain.Predicate[T]) (string, []any) {
	var b strings.Builder
	b.WriteString(queryDocsPrefix)
	args := []any{s.collection}
	if fm, ok := any(pred).(domain.FieldMatcher); ok {
		for _, m := range fm.FieldMatches() {
			path := `$."` + m.Field + `"`
			switch v := m.Value.(type) {
			case string:
				b.WriteString(condString)
				args = append(args, path, v)
			default:
				raw, err := json.Marshal(v)
				if err != nil {
					// not representable; leave it to Match
					continue
				}
				b.WriteString(condJSON)
				args = append(args, path, string(raw))
			}
		}
	}
	b.WriteString(queryDocsSuffix)
	return b.String(), args
}

// Update replaces the document, inserting it when no document has this id.
func (s *Store[T]) Update(ctx context.Context, id string, doc T) (err error) {
	defer s.observe("update", time.Now(), &err)
	doc.SetID(id)
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.ClassifyCtx(ctx, "update begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	switch err := tx.QueryRowContext(ctx, lockDocSQL, s.collection, id).Scan(&current); {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, insertDocSQL, s.collection, id, nullKey(doc), string(body)); err != nil {
			return storage.ClassifyCtx(ctx, "update insert", dupOr(err))
		}
		current = 0
	case err != nil:
		return storage.ClassifyCtx(ctx, "update lock", err)
	default:
		if _, err := tx.ExecContext(ctx, overwriteDocSQL, nullKey(doc), string(body), s.collection, id); err != nil {
			return storage.ClassifyCtx(ctx, "update overwrite", dupOr(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return storage.ClassifyCtx(ctx, "update commit", err)
	}
	doc.SetVersion(current + 1)
	return nil
}

// Replace writes doc only if the stored version still equals doc's version.
func (s *Store[T]) Replace(ctx context.Context, doc T) (err error) {
	defer s.observe("replace", time.Now(), &err)
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", doc.GetID(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, replaceDocSQL, nullKey(doc), string(body), s.collection, doc.GetID(), doc.GetVersion())
	if err != nil {
		return storage.ClassifyCtx(ctx, "replace", dupOr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.ClassifyCtx(ctx, "replace rows", err)
	}
	if n == 0 {
		return fmt.Errorf("replace %s: %w", doc.GetID(), domain.ErrVersionMismatch)
	}
	doc.SetVersion(doc.GetVersion() + 1)
	return nil
}

func (s *Store[T]) Delete(ctx context.Context, id string) (err error) {
	defer s.observe("delete", time.Now(), &err)
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, deleteDocSQL, s.collection, id); err != nil {
		return storage.ClassifyCtx(ctx, "delete", err)
	}
	return nil
}

// BulkCreate inserts docs in paced batches, one multi-row INSERT per batch.
// A failing batch is rolled back; earlier batches stay committed.
func (s *Store[T]) BulkCreate(ctx context.Context, docs []T) (err error) {
	defer s.observe("bulk_create", time.Now(), &err)
	for _, d := range docs {
		if d.GetID() == "" {
			d.SetID(uuid.NewString())
		}
	}
	return storage.Classify("bulk create", storage.Paced(ctx, docs, s.opts.BatchSize, s.opts.Pacing, s.insertBatch))
}

func (s *Store[T]) insertBatch(ctx context.Context, batch []T) error {
	values := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*4)
	for _, d := range batch {
		body, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode %s: %w", d.GetID(), err)
		}
		values = append(values, insertDocsRow)
		args = append(args, s.collection, d.GetID(), nullKey(d), string(body))
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.ClassifyCtx(ctx, "bulk begin", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, insertDocsPrefix+strings.Join(values, ","), args...); err != nil {
		return storage.ClassifyCtx(ctx, "bulk insert", dupOr(err))
	}
	if err := tx.Commit(); err != nil {
		return storage.ClassifyCtx(ctx, "bulk commit", err)
	}
	for _, d := range batch {
		d.SetVersion(1)
	}
	return nil
}

func (s *Store[T]) decode(version int64, body []byte) (T, error) {
	doc := s.newDoc()
	if err := json.Unmarshal(body, doc); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s document: %w", s.collection, err)
	}
	doc.SetVersion(version)
	return doc, nil
}

func (s *Store[T]) observe(op string, start time.Time, err *error) {
	observability.ObserveStore(s.collection, op, *err, time.Since(start))
}

func dupOr(err error) error {
	var me *gomysql.MySQLError
	if errors.As(err, &me) && me.Number == errDupEntry {
		return fmt.Errorf("%w: %s", domain.ErrDuplicate, me.Message)
	}
	return err
}
