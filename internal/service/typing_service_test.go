package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat-api/internal/presence"
	"github.com/noah-isme/gema-chat-api/internal/repository"
)

func TestTypingServiceSetListClear(t *testing.T) {
	store := newTestStore(t, newTestClock())
	typing := presence.NewTypingStore(presence.Options{}, testLogger())
	svc := NewTypingService(store, typing, testLogger())
	ctx := context.Background()

	alice := mustUser(t, store, "alice")
	room := mustRoom(t, store, "general")

	entry, err := svc.Set(ctx, alice.ID, room.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", entry.DisplayName)

	entries, err := svc.List(ctx, "", room.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, alice.ID, entries[0].UserID)

	require.NoError(t, svc.Clear(ctx, alice.ID, room.ID))
	entries, err = svc.List(ctx, alice.ID, room.ID)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestTypingServiceRejections(t *testing.T) {
	store := newTestStore(t, newTestClock())
	typing := presence.NewTypingStore(presence.Options{}, testLogger())
	svc := NewTypingService(store, typing, testLogger())
	ctx := context.Background()

	alice := mustUser(t, store, "alice")
	bob := mustUser(t, store, "bob")
	room := mustRoom(t, store, "general")
	mustBan(t, store, bob.ID)

	_, err := svc.Set(ctx, bob.ID, room.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Set(ctx, alice.ID, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.Set(ctx, "", room.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.List(ctx, alice.ID, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.Zero(t, typing.Len())
}

func TestTypingServiceDirectMessagesStayPrivate(t *testing.T) {
	store := newTestStore(t, newTestClock())
	typing := presence.NewTypingStore(presence.Options{}, testLogger())
	svc := NewTypingService(store, typing, testLogger())
	ctx := context.Background()

	admin := mustAdmin(t, store, "admin")
	alice := mustUser(t, store, "alice")
	bob := mustUser(t, store, "bob")
	eve := mustUser(t, store, "eve")
	dm, _, err := store.GetOrCreateDMRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = svc.Set(ctx, eve.ID, dm.ID)
	require.ErrorIs(t, err, ErrForbidden)
	require.Zero(t, typing.Len())

	_, err = svc.Set(ctx, alice.ID, dm.ID)
	require.NoError(t, err)

	_, err = svc.List(ctx, "", dm.ID)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.List(ctx, eve.ID, dm.ID)
	require.ErrorIs(t, err, ErrForbidden)

	entries, err := svc.List(ctx, bob.ID, dm.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = svc.List(ctx, admin.ID, dm.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
