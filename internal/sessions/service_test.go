package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateAndValidateSession(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	r, err := svc.CreateSession(ctx, "sub-1", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, r)

	sess, err := svc.ValidateRefresh(ctx, r)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, "sub-1", sess.Sub)

	require.NoError(t, svc.DeleteRefresh(ctx, r))
	sess2, err := svc.ValidateRefresh(ctx, r)
	require.NoError(t, err)
	require.Nil(t, sess2)
}

func TestValidateRefresh_Expired(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()
	r, err := svc.CreateSession(ctx, "sub-1", time.Minute)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	sess, err := svc.ValidateRefresh(ctx, r)
	require.NoError(t, err)
	require.Nil(t, sess)
	// expired sessions are cleaned up
	stored, _ := repo.GetByRefresh(ctx, r)
	require.Nil(t, stored)
}

func TestRotate(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	old, err := svc.CreateSession(ctx, "alice", time.Hour)
	require.NoError(t, err)

	sess, next, err := svc.Rotate(ctx, old, time.Hour)
	require.NoError(t, err)
	require.Equal(t, "alice", sess.Sub)
	require.NotEqual(t, old, next)

	_, _, err = svc.Rotate(ctx, old, time.Hour)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	got, err := svc.ValidateRefresh(ctx, next)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestEndAll(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	a1, _ := svc.CreateSession(ctx, "alice", time.Hour)
	a2, _ := svc.CreateSession(ctx, "alice", time.Hour)
	b1, _ := svc.CreateSession(ctx, "bob", time.Hour)

	require.NoError(t, svc.EndAll(ctx, "alice"))
	for _, r := range []string{a1, a2} {
		s, err := svc.ValidateRefresh(ctx, r)
		require.NoError(t, err)
		require.Nil(t, s)
	}
	s, err := svc.ValidateRefresh(ctx, b1)
	require.NoError(t, err)
	require.NotNil(t, s)
}
