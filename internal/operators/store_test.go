package operators

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{"id", "username", "password_hash", "user_type", "created_at"}

func newSQLMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db), mock
}

func TestSQLStore_GetByUsernameIsCaseInsensitive(t *testing.T) {
	store, mock := newSQLMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM users WHERE lower\\(username\\) = lower").
		WithArgs("Alice").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(int64(2), "alice", "hash", "operator", now))

	op, err := store.GetByUsername(context.Background(), "  Alice ")
	require.NoError(t, err)
	assert.Equal(t, int64(2), op.ID)
	assert.Equal(t, RoleOperator, op.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetByIDNotFound(t *testing.T) {
	store, mock := newSQLMockStore(t)
	mock.ExpectQuery("FROM users WHERE id").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpdatePasswordHash(t *testing.T) {
	store, mock := newSQLMockStore(t)
	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs(int64(2), "newhash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs(int64(3), "newhash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.UpdatePasswordHash(context.Background(), 2, "newhash"))
	assert.ErrorIs(t, store.UpdatePasswordHash(context.Background(), 3, "newhash"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Upsert(t *testing.T) {
	store, mock := newSQLMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("admin", "h", "admin").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(int64(1), "admin", "h", "admin", now))

	op, err := store.Upsert(context.Background(), "admin", "h", RoleAdmin)
	require.NoError(t, err)
	assert.True(t, op.IsAdmin())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	op, err := store.Upsert(ctx, "Bob", "h1", RoleOperator)
	require.NoError(t, err)
	again, err := store.Upsert(ctx, "Bob", "h2", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, op.ID, again.ID)

	got, err := store.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "h2", got.PasswordHash)
	assert.Equal(t, RoleAdmin, got.Role)

	require.NoError(t, store.UpdatePasswordHash(ctx, op.ID, "h3"))
	got, err = store.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, "h3", got.PasswordHash)

	_, err = store.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
