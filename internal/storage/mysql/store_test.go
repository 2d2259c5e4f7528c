package mysql_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorhugom-zz/rio-review/internal/domain"
	"github.com/victorhugom-zz/rio-review/internal/storage"
	mysqlstore "github.com/victorhugom-zz/rio-review/internal/storage/mysql"
)

func newMockStore(t *testing.T, opts storage.Options) (*mysqlstore.Store[*domain.Review], sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return mysqlstore.New(db, "Review", func() *domain.Review { return &domain.Review{} }, opts), mock
}

const reviewBody = `{"id":"r1","itemId":"item-1","authorId":"a1","authorName":"Ana","rating":4.5,"votes":[{"authorId":"v1","isRelevant":true}],"approved":true,"dateCreated":"2024-05-01T10:00:00Z"}`

func TestCreate_InsertsWithGeneratedIDAndNaturalKey(t *testing.T) {
	s, mock := newMockStore(t, storage.Options{})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents (collection, id, natural_key, version, body)")).
		WithArgs("Review", sqlmock.AnyArg(), domain.ReviewKey("item-1", "a1"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	r := &domain.Review{ItemID: "item-1", AuthorID: "a1", Rating: 4}
	require.NoError(t, s.Create(context.Background(), r))
	assert.NotEmpty(t, r.ID)
	assert.EqualValues(t, 1, r.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DuplicateEntryIsErrDuplicate(t *testing.T) {
	s, mock := newMockStore(t, storage.Options{})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnError(&gomysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := s.Create(context.Background(), &domain.Review{ItemID: "item-1", AuthorID: "a1"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DriverFailureIsPersistenceError(t *testing.T) {
	s, mock := newMockStore(t, storage.Options{})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnError(sql.ErrConnDone)

	err := s.Create(context.Background(), &domain.Review{ItemID: "item-1", AuthorID: "a1"})
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.NotErrorIs(t, err, domain.ErrTimeout)
}

func TestGet_DecodesBodyAndVersion(t *testing.T) {
	s, mock := newMockStore(t, storage.Options{})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, body")).
		WithArgs("Review", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"version", "body"}).AddRow(int64(3), []byte(reviewBody)))

	r, ok, err := s.Get(context.Background(), "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ana", r.AuthorName)
	assert.EqualValues(t, 3, r.Version)
	assert.Equal(t, 4.5, r.Rating)
	rel, voted := r.VoteFor("v1")
	assert.True(t, voted)
	assert.Equal(t, domain.RelevanceRelevant, rel)
}

func TestGet_MissingIsAbsence(t *testing.T) {
	s, mock := newMockStore(t, storage.Options{})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, body")).
		WithArgs("Review", "nope").
		WillReturnRows(sqlmock.NewRows([]string{"version", "body"}))

	r, ok, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, r)
}

func TestGet_TimeoutIsReported(t *testing.T) {
	s, mock := newMockStore(t, storage.Options{Timeout: 10 * time.Millisecond})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, body")).
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"version", "body"}).AddRow(int64(1), []byte(reviewBody)))

	_, _, err := s.Get(context.Background(), "r1")
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestQuery_PushesDownFieldMatchesAndReappliesPredicate(t *testing.T) {
	s, mock := newMockStore(t, storage.Options{})

	q := "SELECT version, body FROM documents WHERE collection = ?" +
		" AND JSON_UNQUOTE(JSON_EXTRACT(body, ?)) = ?" +
		" AND JSON_EXTRACT(body, ?) = CAST(? AS JSON)" +
		" ORDER BY seq"
	unapproved := `{"id":"r2","itemId":"item-1","authorId":"a2","rating":2,"approved":false}`
	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs("Review", `$."itemId"`, "item-1", `$."approved"`, "true").
		WillReturnRows(sqlmock.NewRows([]string{"version", "body"}).
			AddRow(int64(1), []byte(reviewBody)).
			AddRow(int64(1), []byte(unapproved)))

	view := s.Query(context.Background(), domain.ReviewFilter{ItemID: "item-1", OnlyApproved: true})
	got, err := view.Collect()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)

	// replay does not hit the database again
	again, err := view.Collect()
	require.NoError(t, err)
	assert.Len(t, again, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_VersionMismatch(t *testing.T) {
	s, mock := newMockStore(t, storage.Options{})

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WithArgs(domain.ReviewKey("item-1", "a1"), sqlmock.AnyArg(), "Review", "r1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	r := &domain.Review{ID: "r1", ItemID: "item-1", AuthorID: "a1", Version: 3}
	err := s.Replace(context.Background(), r)
	assert.ErrorIs(t, err, domain.ErrVersionMismatch)
	assert.EqualValues(t, 3, r.Version)
}

func TestReplace_BumpsVersion(t *testing.T) {
	s, mock := newMockStore(t, storage.Options{})

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WithArgs(domain.ReviewKey("item-1", "a1"), sqlmock.AnyArg(), "Review", "r1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := &domain.Review{ID: "r1", ItemID: "item-1", AuthorID: "a1", Version: 3}
	require.NoError(t, s.Replace(context.Background(), r))
	assert.EqualValues(t, 4, r.Version)
}

func TestUpdate_InsertsWhenMissing(t *testing.T) {
	s, mock := newMockStore(t, storage.Options{})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version")).
		WithArgs("Review", "r9").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs("Review", "r9", domain.ReviewKey("item-1", "a9"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	r := &domain.Review{ItemID: "item-1", AuthorID: "a9"}
	require.NoError(t, s.Update(context.Background(), "r9", r))
	assert.Equal(t, "r9", r.ID)
	assert.EqualValues(t, 1, r.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_OverwritesExisting(t *testing.T) {
	s, mock := newMockStore(t, storage.Options{})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version")).
		WithArgs("Review", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(2)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WithArgs(domain.ReviewKey("item-1", "a1"), sqlmock.AnyArg(), "Review", "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	r := &domain.Review{ItemID: "item-1", AuthorID: "a1"}
	require.NoError(t, s.Update(context.Background(), "r1", r))
	assert.EqualValues(t, 3, r.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_MissingIsNoop(t *testing.T) {
	s, mock := newMockStore(t, storage.Options{})

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents")).
		WithArgs("Review", "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Delete(context.Background(), "gone"))
}

func TestBulkCreate_OneTransactionPerBatch(t *testing.T) {
	s, mock := newMockStore(t, storage.Options{BatchSize: 2, Pacing: -1})

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents (collection, id, natural_key, version, body)")).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()
	}

	docs := []*domain.Review{
		{ItemID: "i", AuthorID: "a1"},
		{ItemID: "i", AuthorID: "a2"},
		{ItemID: "i", AuthorID: "a3"},
	}
	require.NoError(t, s.BulkCreate(context.Background(), docs))
	for _, d := range docs {
		assert.NotEmpty(t, d.ID)
		assert.EqualValues(t, 1, d.Version)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkCreate_FailedBatchRollsBack(t *testing.T) {
	s, mock := newMockStore(t, storage.Options{BatchSize: 2, Pacing: -1})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnError(&gomysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	err := s.BulkCreate(context.Background(), []*domain.Review{{ItemID: "i", AuthorID: "a1"}})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}
