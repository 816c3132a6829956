package graph

import (
	"context"
	"sync"
	"testing"
	"time"

	"sharexp/notifications"
	"sharexp/presence"
	"sharexp/storage"
	"sharexp/storage/memory"
	"sharexp/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (e *recordingEmitter) Emit(_ context.Context, event notifications.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) all() []notifications.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]notifications.Event(nil), e.events...)
}

func newManager(t *testing.T, users ...string) *storage.Manager {
	t.Helper()
	manager := storage.NewManager(memory.New(), nil, storage.Options{})
	for _, id := range users {
		_, err := manager.CreateUser(context.Background(), models.User{ID: id, Username: id})
		require.NoError(t, err)
	}
	return manager
}

func TestToggleFollowRoundTrip(t *testing.T) {
	ctx := context.Background()
	manager := newManager(t, "alice", "bob")
	emitter := &recordingEmitter{}
	g := NewGraph(manager, emitter)

	result, err := g.ToggleFollow(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, FollowResult{IsFollowing: true, FollowerCount: 1}, result)

	alice, err := manager.GetUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := manager.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Contains(t, alice.Following, "bob")
	assert.Contains(t, bob.Followers, "alice")

	events := emitter.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.TypeFollow, events[0].Type)
	assert.Equal(t, "bob", events[0].RecipientID)
	assert.Equal(t, "alice", events[0].SenderID)

	result, err = g.ToggleFollow(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, FollowResult{IsFollowing: false, FollowerCount: 0}, result)
	assert.Len(t, emitter.all(), 1)

	alice, _ = manager.GetUser(ctx, "alice")
	bob, _ = manager.GetUser(ctx, "bob")
	assert.NotContains(t, alice.Following, "bob")
	assert.NotContains(t, bob.Followers, "alice")
}

func TestToggleFollowValidation(t *testing.T) {
	ctx := context.Background()
	emitter := &recordingEmitter{}
	g := NewGraph(newManager(t, "alice"), emitter)

	_, err := g.ToggleFollow(ctx, "alice", "alice")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = g.ToggleFollow(ctx, "alice", "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Empty(t, emitter.all())
}

func TestConcurrentOppositeTogglesKeepGraphSymmetric(t *testing.T) {
	ctx := context.Background()
	manager := newManager(t, "alice", "bob")
	g := NewGraph(manager, &recordingEmitter{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := g.ToggleFollow(ctx, "alice", "bob")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := g.ToggleFollow(ctx, "bob", "alice")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	alice, _ := manager.GetUser(ctx, "alice")
	bob, _ := manager.GetUser(ctx, "bob")
	assert.Equal(t, bob.IsFollowedBy("alice"), contains(alice.Following, "bob"))
	assert.Equal(t, alice.IsFollowedBy("bob"), contains(bob.Following, "alice"))
	assert.Equal(t, len(alice.Following), alice.FollowingCount)
	assert.Equal(t, len(bob.Followers), bob.FollowersCount)
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func TestFollowNotificationReachesOfflineUserDurably(t *testing.T) {
	ctx := context.Background()
	manager := newManager(t, "alice", "bob")
	dispatcher := notifications.NewDispatcher(manager, noPresence{}, 10*time.Millisecond)
	g := NewGraph(manager, dispatcher)

	_, err := g.ToggleFollow(ctx, "alice", "bob")
	require.NoError(t, err)

	count, err := manager.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	manager := newManager(t, "alice", "bob")
	g := NewGraph(manager, &recordingEmitter{})

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"p1", "p2"} {
		_, err := manager.CreatePost(ctx, models.Post{ID: id, OwnerID: "bob", CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	_, err := manager.AddLike(ctx, "p1", "alice")
	require.NoError(t, err)

	view, err := g.Profile(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, view.IsFollowing)
	require.Len(t, view.Posts, 2)
	assert.Equal(t, "p2", view.Posts[0].ID)
	assert.True(t, view.Posts[1].IsLiked)

	_, err = g.ToggleFollow(ctx, "alice", "bob")
	require.NoError(t, err)
	view, err = g.Profile(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, view.IsFollowing)
	assert.Equal(t, 1, view.User.FollowersCount)

	_, err = g.Profile(ctx, "alice", "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

type noPresence struct{}

func (noPresence) IsOnline(string) bool { return false }

func (noPresence) Publish(context.Context, string, presence.Message) bool { return false }
