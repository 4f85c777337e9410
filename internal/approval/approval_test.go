package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateThenResolveApproved(t *testing.T) {
	m := NewManager(NewMemoryStore(), time.Minute)
	ctx := context.Background()

	id, err := m.Create(ctx, "file_write", "sandbox", "medium", "write config", "/tmp/x", "")
	require.NoError(t, err)

	req, ok := m.Get(ctx, id)
	require.True(t, ok)
	require.Equal(t, StatusPending, req.Status)

	resolved, err := m.Resolve(ctx, id, StatusApproved, "operator")
	require.NoError(t, err)
	require.True(t, resolved)

	req, ok = m.Get(ctx, id)
	require.True(t, ok)
	require.Equal(t, StatusApproved, req.Status)
	require.Equal(t, "operator", req.ResolvedBy)
}

// TestResolvedRequestCannotBeReResolved proves invariant 3: a resolved
// approval is write-once.
func TestResolvedRequestCannotBeReResolved(t *testing.T) {
	m := NewManager(NewMemoryStore(), time.Minute)
	ctx := context.Background()

	id, err := m.Create(ctx, "file_write", "sandbox", "medium", "write config", "/tmp/x", "")
	require.NoError(t, err)

	first, err := m.Resolve(ctx, id, StatusApproved, "operator")
	require.NoError(t, err)
	require.True(t, first)

	second, err := m.Resolve(ctx, id, StatusDenied, "someone-else")
	require.NoError(t, err)
	require.False(t, second)

	req, _ := m.Get(ctx, id)
	require.Equal(t, StatusApproved, req.Status)
}

func TestWaitReturnsImmediatelyWhenAlreadyResolved(t *testing.T) {
	m := NewManager(NewMemoryStore(), time.Minute)
	ctx := context.Background()

	id, err := m.Create(ctx, "file_write", "sandbox", "medium", "write config", "/tmp/x", "")
	require.NoError(t, err)
	_, err = m.Resolve(ctx, id, StatusDenied, "operator")
	require.NoError(t, err)

	status := m.Wait(ctx, id, time.Second)
	require.Equal(t, StatusDenied, status)
}

func TestWaitTimesOutAndRecordsTimeoutStatus(t *testing.T) {
	m := NewManager(NewMemoryStore(), time.Minute)
	ctx := context.Background()

	id, err := m.Create(ctx, "file_write", "sandbox", "medium", "write config", "/tmp/x", "")
	require.NoError(t, err)

	status := m.Wait(ctx, id, 50*time.Millisecond)
	require.Equal(t, StatusTimeout, status)

	req, ok := m.Get(ctx, id)
	require.True(t, ok)
	require.Equal(t, StatusTimeout, req.Status)
}

func TestListPendingOnlyReturnsPendingRecords(t *testing.T) {
	m := NewManager(NewMemoryStore(), time.Minute)
	ctx := context.Background()

	pendingID, err := m.Create(ctx, "file_write", "sandbox", "low", "pending one", "/tmp/a", "")
	require.NoError(t, err)
	resolvedID, err := m.Create(ctx, "file_write", "sandbox", "low", "resolved one", "/tmp/b", "")
	require.NoError(t, err)
	_, err = m.Resolve(ctx, resolvedID, StatusApproved, "operator")
	require.NoError(t, err)

	pending, err := m.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, pendingID, pending[0].ID)
}

func TestGetReturnsFalseForUnknownID(t *testing.T) {
	m := NewManager(NewMemoryStore(), time.Minute)
	_, ok := m.Get(context.Background(), "ghost")
	require.False(t, ok)
}
