package operators

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crisos/crisos-core/pkg/logging"
)

// AuditTrail records account events. Failures are logged, never returned.
type AuditTrail interface {
	OperatorLogin(ctx context.Context, username string, success bool) error
	PasswordChanged(ctx context.Context, username string) error
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token    string `json:"token"`
	UserType Role   `json:"user_type"`
}

// Service implements login and password management.
type Service struct {
	store  Store
	hasher *Hasher
	tokens *TokenIssuer
	audit  AuditTrail
	logger *logging.Logger
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

func WithAuditTrail(a AuditTrail) ServiceOption {
	return func(s *Service) { s.audit = a }
}

func NewService(store Store, hasher *Hasher, tokens *TokenIssuer, logger *logging.Logger, opts ...ServiceOption) *Service {
	if store == nil || hasher == nil || tokens == nil {
		panic("operators: store, hasher and tokens required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{store: store, hasher: hasher, tokens: tokens, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens exposes the issuer so middleware verifies with the same secret.
func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// Login checks the credentials and issues a token. An unknown user and a
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	op, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.recordLogin(ctx, username, false)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	ok, rehash := s.hasher.Verify(op.PasswordHash, password)
	if !ok {
		s.recordLogin(ctx, op.Username, false)
		return LoginResult{}, ErrInvalidCredentials
	}
	if rehash {
		s.upgradeHash(ctx, op, password)
	}
	token, _, err := s.tokens.Issue(*op)
	if err != nil {
		return LoginResult{}, err
	}
	s.recordLogin(ctx, op.Username, true)
	s.logger.Info("operator logged in", "username", op.Username, "role", op.Role)
	return LoginResult{Token: token, UserType: op.Role}, nil
}

// ChangePassword replaces the password of operator id after checking current.
func (s *Service) ChangePassword(ctx context.Context, id int64, current, next string) error {
	if strings.TrimSpace(next) == "" {
		return ErrPasswordRequired
	}
	op, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ok, _ := s.hasher.Verify(op.PasswordHash, current); !ok {
		return ErrInvalidCurrentPassword
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePasswordHash(ctx, id, hash); err != nil {
		return err
	}
	if s.audit != nil {
		if err := s.audit.PasswordChanged(ctx, op.Username); err != nil {
			s.logger.Warn("audit password change failed", "username", op.Username, "error", err)
		}
	}
	s.logger.Info("operator password changed", "username", op.Username)
	return nil
}

// Ensure creates or resets an account. Used to seed the first admin.
func (s *Service) Ensure(ctx context.Context, username, password string, role Role) (*Operator, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("operators: ensure: %w", ErrInvalidCredentials)
	}
	if strings.TrimSpace(password) == "" {
		return nil, ErrPasswordRequired
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	return s.store.Upsert(ctx, username, hash, role)
}

func (s *Service) upgradeHash(ctx context.Context, op *Operator, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.store.UpdatePasswordHash(ctx, op.ID, hash)
	}
	if err != nil {
		s.logger.Warn("password rehash failed", "username", op.Username, "error", err)
	}
}

func (s *Service) recordLogin(ctx context.Context, username string, success bool) {
	if s.audit == nil {
		return
	}
	if err := s.audit.OperatorLogin(ctx, username, success); err != nil {
		s.logger.Warn("audit login failed", "username", username, "error", err)
	}
}
