package operators

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAudit struct {
	logins  []string
	changed []string
	err     error
}

func (a *recordingAudit) OperatorLogin(_ context.Context, username string, success bool) error {
	outcome := "fail"
	if success {
		outcome = "ok"
	}
	a.logins = append(a.logins, username+":"+outcome)
	return a.err
}

func (a *recordingAudit) PasswordChanged(_ context.Context, username string) error {
	a.changed = append(a.changed, username)
	return a.err
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *recordingAudit) {
	t.Helper()
	store := NewMemoryStore()
	audit := &recordingAudit{}
	svc := NewService(store, testHasher(), NewTokenIssuer("secret", time.Hour), nil, WithAuditTrail(audit))
	return svc, store, audit
}

func TestService_LoginIssuesToken(t *testing.T) {
	svc, _, audit := newTestService(t)
	ctx := context.Background()
	_, err := svc.Ensure(ctx, "alice", "pw", RoleOperator)
	require.NoError(t, err)

	result, err := svc.Login(ctx, "ALICE", "pw")
	require.NoError(t, err)
	assert.Equal(t, RoleOperator, result.UserType)

	claims, err := svc.Tokens().Parse(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, []string{"alice:ok"}, audit.logins)
}

func TestService_LoginRejectsBadCredentials(t *testing.T) {
	svc, _, audit := newTestService(t)
	ctx := context.Background()
	_, err := svc.Ensure(ctx, "alice", "pw", RoleOperator)
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "mallory", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, []string{"alice:fail", "mallory:fail"}, audit.logins)
}

func TestService_LoginUpgradesLegacyHash(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	op, err := store.Upsert(ctx, "admin", LegacyHash("crisis_salt", "admin"), RoleAdmin)
	require.NoError(t, err)

	_, err = svc.Login(ctx, "admin", "admin")
	require.NoError(t, err)

	stored, err := store.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.True(t, isBcrypt(stored.PasswordHash))

	_, err = svc.Login(ctx, "admin", "admin")
	assert.NoError(t, err, "upgraded hash still verifies")
}

func TestService_ChangePassword(t *testing.T) {
	svc, _, audit := newTestService(t)
	ctx := context.Background()
	op, err := svc.Ensure(ctx, "bob", "old", RoleOperator)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, op.ID, "old", "  "), ErrPasswordRequired)
	assert.ErrorIs(t, svc.ChangePassword(ctx, op.ID, "wrong", "new"), ErrInvalidCurrentPassword)
	require.NoError(t, svc.ChangePassword(ctx, op.ID, "old", "new"))
	assert.Equal(t, []string{"bob"}, audit.changed)

	_, err = svc.Login(ctx, "bob", "old")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "bob", "new")
	assert.NoError(t, err)
}

func TestService_AuditFailureIsNotFatal(t *testing.T) {
	svc, _, audit := newTestService(t)
	audit.err = errors.New("db down")
	ctx := context.Background()
	_, err := svc.Ensure(ctx, "carol", "pw", RoleAdmin)
	require.NoError(t, err)

	_, err = svc.Login(ctx, "carol", "pw")
	assert.NoError(t, err)
}

func TestService_EnsureValidates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Ensure(ctx, "", "pw", RoleAdmin)
	assert.Error(t, err)
	_, err = svc.Ensure(ctx, "x", "", RoleAdmin)
	assert.ErrorIs(t, err, ErrPasswordRequired)
	_, err = svc.Ensure(ctx, "x", "pw", Role("root"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}
