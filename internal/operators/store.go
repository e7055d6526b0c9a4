package operators

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Store persists operator accounts.
type Store interface {
	GetByUsername(ctx context.Context, username string) (*Operator, error)
	GetByID(ctx context.Context, id int64) (*Operator, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	Upsert(ctx context.Context, username, hash string, role Role) (*Operator, error)
}

// SQLStore keeps operators in the users table.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	if db == nil {
		panic("operators: sql db required")
	}
	return &SQLStore{db: db}
}

const operatorColumns = `id, username, password_hash, user_type, created_at`

// GetByUsername matches usernames case-insensitively.
func (s *SQLStore) GetByUsername(ctx context.Context, username string) (*Operator, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+operatorColumns+` FROM users WHERE lower(username) = lower($1)`,
		strings.TrimSpace(username))
	return scanOperator(row)
}

func (s *SQLStore) GetByID(ctx context.Context, id int64) (*Operator, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+operatorColumns+` FROM users WHERE id = $1`, id)
	return scanOperator(row)
}

func (s *SQLStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("operators: update password: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert creates the account or replaces its hash and role.
func (s *SQLStore) Upsert(ctx context.Context, username, hash string, role Role) (*Operator, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, user_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
			user_type = EXCLUDED.user_type
		RETURNING `+operatorColumns,
		strings.TrimSpace(username), hash, string(role))
	op, err := scanOperator(row)
	if err != nil {
		return nil, fmt.Errorf("operators: upsert %s: %w", username, err)
	}
	return op, nil
}

func scanOperator(row *sql.Row) (*Operator, error) {
	var op Operator
	var role string
	if err := row.Scan(&op.ID, &op.Username, &op.PasswordHash, &role, &op.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("operators: scan operator: %w", err)
	}
	op.Role = Role(role)
	return &op, nil
}

// MemoryStore is used when the service runs without Postgres.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[int64]*Operator
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[int64]*Operator)}
}

func (m *MemoryStore) GetByUsername(_ context.Context, username string) (*Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	username = strings.TrimSpace(username)
	for _, op := range m.byID {
		if strings.EqualFold(op.Username, username) {
			cp := *op
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetByID(_ context.Context, id int64) (*Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (m *MemoryStore) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	op.PasswordHash = hash
	return nil
}

func (m *MemoryStore) Upsert(_ context.Context, username, hash string, role Role) (*Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	username = strings.TrimSpace(username)
	for _, op := range m.byID {
		if op.Username == username {
			op.PasswordHash = hash
			op.Role = role
			cp := *op
			return &cp, nil
		}
	}
	m.nextID++
	op := &Operator{ID: m.nextID, Username: username, PasswordHash: hash, Role: role, CreatedAt: time.Now().UTC()}
	m.byID[op.ID] = op
	cp := *op
	return &cp, nil
}
