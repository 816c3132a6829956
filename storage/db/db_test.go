package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"sharexp/storage/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, models.ErrNotFound},
		{"serialization", &pgconn.PgError{Code: "40001"}, models.ErrTransient},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, models.ErrTransient},
		{"connection", &pgconn.PgError{Code: "08006"}, models.ErrTransient},
		{"unique", &pgconn.PgError{Code: "23505"}, models.ErrConflict},
		{"foreign key", &pgconn.PgError{Code: "23503"}, models.ErrNotFound},
		{"check", &pgconn.PgError{Code: "23514"}, models.ErrInvalidArgument},
		{"already classified", fmt.Errorf("x: %w", models.ErrUnauthorized), models.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}

	assert.NoError(t, classify(nil))
	plain := errors.New("plain")
	assert.Equal(t, plain, classify(plain))
}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	b := New(pool)
	t.Cleanup(b.Close)
	require.NoError(t, b.Migrate(ctx))
	return b
}

func createUsers(t *testing.T, b *Backend, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		id := uuid.NewString()
		_, err := b.CreateUser(context.Background(), models.User{ID: id, Username: "u-" + id})
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func TestToggleFollowRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	users := createUsers(t, b, 2)
	a, c := users[0], users[1]

	following, count, err := b.ToggleFollow(ctx, a, c)
	require.NoError(t, err)
	assert.True(t, following)
	assert.Equal(t, 1, count)

	ua, err := b.GetUser(ctx, a)
	require.NoError(t, err)
	uc, err := b.GetUser(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, []string{c}, ua.Following)
	assert.Equal(t, []string{a}, uc.Followers)
	assert.Equal(t, 1, ua.FollowingCount)

	following, count, err = b.ToggleFollow(ctx, a, c)
	require.NoError(t, err)
	assert.False(t, following)
	assert.Zero(t, count)

	_, _, err = b.ToggleFollow(ctx, a, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConcurrentLikesOnlyOneSucceeds(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	users := createUsers(t, b, 2)
	post, err := b.CreatePost(ctx, models.Post{ID: uuid.NewString(), OwnerID: users[0], Text: "hello"})
	require.NoError(t, err)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.AddLike(ctx, post.ID, users[1])
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, models.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)

	stored, err := b.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.LikeCount())
}

func TestNotificationsLifecycle(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	users := createUsers(t, b, 2)
	owner, fan := users[0], users[1]
	post, err := b.CreatePost(ctx, models.Post{
		ID: uuid.NewString(), OwnerID: owner,
		Media: &models.Media{URL: "https://cdn/x.png", FileType: models.MediaImage},
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := b.CreateNotification(ctx, models.Notification{
			ID: uuid.NewString(), RecipientID: owner, SenderID: fan, Type: models.TypeComment, PostID: post.ID,
		})
		require.NoError(t, err)
	}
	_, err = b.CreateNotification(ctx, models.Notification{
		ID: uuid.NewString(), RecipientID: owner, SenderID: fan, Type: models.TypeLike, PostID: post.ID,
	})
	require.NoError(t, err)

	deleted, err := b.DeleteLikeNotification(ctx, fan, owner, post.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	unread, err := b.ListNotifications(ctx, owner, true)
	require.NoError(t, err)
	require.Len(t, unread, 5)
	assert.Equal(t, "u-"+fan, unread[0].Sender.Username)
	require.NotNil(t, unread[0].PostMedia)
	assert.Equal(t, "https://cdn/x.png", unread[0].PostMedia.URL)

	modified, previous, err := b.MarkAllRead(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 5, modified)
	assert.Equal(t, 5, previous)

	count, err := b.UnreadCount(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, count)

	fixed, err := b.ReconcileUnreadCounters(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fixed, 0)
}
