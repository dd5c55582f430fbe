package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat-api/internal/dto"
	"github.com/noah-isme/gema-chat-api/internal/models"
	"github.com/noah-isme/gema-chat-api/internal/repository"
)

func newUserService(t *testing.T, store repository.Store, cache *redis.Client, clock *testClock) *userService {
	t.Helper()
	svc := NewUserService(store, cache, UserServiceConfig{
		OfflineAfter: 5 * time.Minute,
		CacheTTL:     time.Minute,
		CachePrefix:  "test",
	}, validator.New(), testLogger()).(*userService)
	svc.now = clock.Now
	return svc
}

func TestUserServiceRegister(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(t, clock)
	svc := newUserService(t, store, nil, clock)
	ctx := context.Background()

	user, err := svc.Register(ctx, dto.CreateUserRequest{Username: "  alice "})
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, models.UserStatusOnline, user.Status)
	require.False(t, user.IsAdmin)
	require.False(t, user.IsBot)

	_, err = svc.Register(ctx, dto.CreateUserRequest{Username: "alice"})
	require.ErrorIs(t, err, repository.ErrDuplicateName)

	_, err = svc.Register(ctx, dto.CreateUserRequest{Username: "bad name"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Register(ctx, dto.CreateUserRequest{Username: "x"})
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)

	bot, err := svc.GetByUsername(ctx, "GemaBot")
	require.NoError(t, err)
	require.True(t, bot.IsBot)
	require.True(t, bot.IsAdmin)
}

func TestUserServiceBootstrapAdmin(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(t, clock)
	svc := newUserService(t, store, nil, clock)
	ctx := context.Background()

	alice := mustUser(t, store, "alice")
	bob := mustUser(t, store, "bob")

	promoted, err := svc.BootstrapAdmin(ctx, alice.ID)
	require.NoError(t, err)
	require.True(t, promoted.IsAdmin)

	_, err = svc.BootstrapAdmin(ctx, bob.ID)
	require.ErrorIs(t, err, ErrForbidden)

	// repeated bootstrap by the existing admin is a no-op
	again, err := svc.BootstrapAdmin(ctx, alice.ID)
	require.NoError(t, err)
	require.True(t, again.IsAdmin)

	granted, err := svc.SetAdmin(ctx, alice.ID, bob.ID, true)
	require.NoError(t, err)
	require.True(t, granted.IsAdmin)

	_, err = svc.SetAdmin(ctx, alice.ID, store.BotID(), false)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.BootstrapAdmin(ctx, "missing")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestUserServiceBanRules(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(t, clock)
	svc := newUserService(t, store, nil, clock)
	ctx := context.Background()

	admin := mustAdmin(t, store, "admin")
	alice := mustUser(t, store, "alice")
	bob := mustUser(t, store, "bob")

	_, err := svc.Ban(ctx, alice.ID, bob.ID, dto.BanRequest{})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Ban(ctx, admin.ID, admin.ID, dto.BanRequest{})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Ban(ctx, admin.ID, store.BotID(), dto.BanRequest{})
	require.ErrorIs(t, err, ErrForbidden)

	banned, err := svc.Ban(ctx, admin.ID, alice.ID, dto.BanRequest{})
	require.NoError(t, err)
	require.NotNil(t, banned.BannedUntil)
	require.True(t, banned.BannedUntil.Equal(models.PermanentBan))

	timed, err := svc.Ban(ctx, admin.ID, bob.ID, dto.BanRequest{Minutes: 30})
	require.NoError(t, err)
	require.True(t, timed.BannedUntil.Equal(clock.Now().Add(30*time.Minute)))

	past := clock.Now().Add(-time.Hour)
	_, err = svc.Ban(ctx, admin.ID, bob.ID, dto.BanRequest{Until: &past})
	require.ErrorIs(t, err, ErrInvalidInput)

	unbanned, err := svc.Unban(ctx, admin.ID, alice.ID)
	require.NoError(t, err)
	require.Nil(t, unbanned.BannedUntil)
}

func TestUserServiceProfileAndStatusPermissions(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(t, clock)
	svc := newUserService(t, store, nil, clock)
	ctx := context.Background()

	admin := mustAdmin(t, store, "admin")
	alice := mustUser(t, store, "alice")
	bob := mustUser(t, store, "bob")

	_, err := svc.UpdateStatus(ctx, bob.ID, alice.ID, dto.UpdateStatusRequest{Status: models.UserStatusAway})
	require.ErrorIs(t, err, ErrForbidden)

	updated, err := svc.UpdateStatus(ctx, alice.ID, alice.ID, dto.UpdateStatusRequest{Status: models.UserStatusBusy})
	require.NoError(t, err)
	require.Equal(t, models.UserStatusBusy, updated.Status)

	updated, err = svc.UpdateStatus(ctx, admin.ID, alice.ID, dto.UpdateStatusRequest{Status: models.UserStatusAway})
	require.NoError(t, err)
	require.Equal(t, models.UserStatusAway, updated.Status)

	_, err = svc.UpdateStatus(ctx, alice.ID, alice.ID, dto.UpdateStatusRequest{Status: "sleeping"})
	require.Error(t, err)

	renamed, err := svc.UpdateProfile(ctx, alice.ID, alice.ID, dto.UpdateProfileRequest{Username: "alicia"})
	require.NoError(t, err)
	require.Equal(t, "alicia", renamed.Username)

	_, err = svc.UpdateProfile(ctx, alice.ID, alice.ID, dto.UpdateProfileRequest{Username: "bob"})
	require.ErrorIs(t, err, repository.ErrDuplicateName)

	_, err = svc.UpdateProfile(ctx, admin.ID, store.BotID(), dto.UpdateProfileRequest{Username: "RoboBot"})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestUserServiceHeartbeat(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(t, clock)
	svc := newUserService(t, store, nil, clock)
	ctx := context.Background()

	alice := mustUser(t, store, "alice")
	bob := mustUser(t, store, "bob")
	_, err := store.UpdateUserStatus(ctx, alice.ID, models.UserStatusOffline)
	require.NoError(t, err)

	_, err = svc.Heartbeat(ctx, bob.ID, alice.ID)
	require.ErrorIs(t, err, ErrForbidden)

	clock.Advance(10 * time.Minute)
	beat, err := svc.Heartbeat(ctx, alice.ID, alice.ID)
	require.NoError(t, err)
	require.Equal(t, models.UserStatusOnline, beat.Status)
	require.True(t, beat.LastSeen.Equal(clock.Now()))
}

func TestUserServicePresenceListings(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(t, clock)
	svc := newUserService(t, store, nil, clock)
	ctx := context.Background()

	alice := mustUser(t, store, "alice")
	clock.Advance(6 * time.Minute)
	mustUser(t, store, "bob")
	carol := mustUser(t, store, "carol")
	_, err := store.UpdateUserStatus(ctx, carol.ID, models.UserStatusAway)
	require.NoError(t, err)

	online, err := svc.ListOnline(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"GemaBot", "bob"}, responseNames(online))

	offline, err := svc.ListOffline(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, responseNames(offline))

	_, err = svc.Heartbeat(ctx, alice.ID, alice.ID)
	require.NoError(t, err)
	online, err = svc.ListOnline(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"GemaBot", "alice", "bob"}, responseNames(online))
	require.NotContains(t, responseNames(online), "carol")
}

func TestUserServicePresenceCache(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	clock := newTestClock()
	store := newTestStore(t, clock)
	svc := newUserService(t, store, client, clock)
	ctx := context.Background()

	alice := mustUser(t, store, "alice")

	online, err := svc.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, online, 2)
	require.True(t, server.Exists("test:presence:online:v1"))

	// a direct store write is invisible until the cache entry goes away
	_, err = store.UpdateUserStatus(ctx, alice.ID, models.UserStatusOffline)
	require.NoError(t, err)
	cached, err := svc.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 2)

	_, err = svc.UpdateStatus(ctx, alice.ID, alice.ID, dto.UpdateStatusRequest{Status: models.UserStatusOffline})
	require.NoError(t, err)
	require.False(t, server.Exists("test:presence:online:v1"))

	fresh, err := svc.ListOnline(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"GemaBot"}, responseNames(fresh))
}

func TestUserServiceDeleteSelfOnly(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(t, clock)
	svc := newUserService(t, store, nil, clock)
	ctx := context.Background()

	admin := mustAdmin(t, store, "admin")
	alice := mustUser(t, store, "alice")

	require.ErrorIs(t, svc.Delete(ctx, admin.ID, alice.ID), ErrForbidden)
	require.NoError(t, svc.Delete(ctx, alice.ID, alice.ID))

	_, err := svc.Get(ctx, alice.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserServiceDeleteReleasesFiles(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(t, clock)
	files := newStorageStub()
	svc := NewUserService(store, nil, UserServiceConfig{Files: files}, nil, testLogger())
	ctx := context.Background()

	alice := mustUser(t, store, "alice")
	bob := mustUser(t, store, "bob")
	room := mustRoom(t, store, "general")
	postFile(t, store, alice.ID, room.ID, "/uploads/alice.png")
	postFile(t, store, alice.ID, room.ID, "/uploads/shared.png")
	postFile(t, store, bob.ID, room.ID, "/uploads/shared.png")

	require.NoError(t, svc.Delete(ctx, alice.ID, alice.ID))
	require.Equal(t, []string{"/uploads/alice.png"}, files.deleted)
}

func responseNames(users []dto.UserResponse) []string {
	names := make([]string, 0, len(users))
	for _, user := range users {
		names = append(names, user.Username)
	}
	return names
}
