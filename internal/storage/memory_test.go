package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryChatHistoryStoreAppendsInOrder(t *testing.T) {
	store := NewMemoryChatHistoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "u1", ChatTurn{Role: "user", Content: "hi"}))
	require.NoError(t, store.Append(ctx, "u1", ChatTurn{Role: "assistant", Content: "hello"}))
	require.NoError(t, store.Append(ctx, "u2", ChatTurn{Role: "user", Content: "other user"}))

	turns, err := store.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "hi", turns[0].Content)
	require.Equal(t, "hello", turns[1].Content)

	turns2, err := store.History(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, turns2, 1)
}

func TestMemoryRingStoreTrimsToCap(t *testing.T) {
	store := NewMemoryRingStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Push(ctx, "logs:all", string(rune('a'+i)), 3))
	}

	recent := store.Recent("logs:all", 0)
	require.Len(t, recent, 3)
	// Most recent push first.
	require.Equal(t, "e", recent[0])
	require.Equal(t, "d", recent[1])
	require.Equal(t, "c", recent[2])
}
