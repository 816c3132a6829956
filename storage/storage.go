package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sharexp/monitoring"
	"sharexp/storage/cache"
	"sharexp/storage/models"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Backend is the persistence contract. Every write is one atomic unit:
// implementations never leave a follow edge without its counters, or a
// notification without its unread increment.
type Backend interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetProfiles(ctx context.Context, ids []string) (map[string]models.Profile, error)

	// ToggleFollow removes the edge follower→followee when present and
	// creates it otherwise. It reports the resulting state and the
	// followee's follower count.
	ToggleFollow(ctx context.Context, followerID, followeeID string) (bool, int, error)

	CreatePost(ctx context.Context, post models.Post) (models.Post, error)
	GetPost(ctx context.Context, id string) (models.Post, error)
	GetPostOwner(ctx context.Context, id string) (string, error)
	DeletePost(ctx context.Context, id string) error
	ListPostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error)

	AddLike(ctx context.Context, postID, userID string) (models.Post, error)
	RemoveLike(ctx context.Context, postID, userID string) (models.Post, error)
	AddComment(ctx context.Context, postID string, comment models.Comment) (models.Post, error)

	CreateNotification(ctx context.Context, notification models.Notification) (models.Notification, error)
	DeleteLikeNotification(ctx context.Context, senderID, recipientID, postID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int, int, error)
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]models.NotificationView, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	ReconcileUnreadCounters(ctx context.Context) (int, error)

	Close()
}

type Options struct {
	UsersCacheExpiration time.Duration
	PostsCacheExpiration time.Duration
	MaxRetries           int
	RetryDelay           time.Duration
}

// Manager fronts a Backend with the Redis caches and retries transactional
// writes that failed transiently.
type Manager struct {
	backend    Backend
	usersCache *cache.UsersCache
	postsCache *cache.PostsCache
	executor   failsafe.Executor[any]
}

func NewManager(backend Backend, redisConnection *redis.Client, options Options) *Manager {
	if options.RetryDelay <= 0 {
		options.RetryDelay = 20 * time.Millisecond
	}
	if options.MaxRetries < 0 {
		options.MaxRetries = 0
	}

	retry := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return errors.Is(err, models.ErrTransient)
		}).
		WithMaxRetries(options.MaxRetries).
		WithBackoff(options.RetryDelay, 10*options.RetryDelay).
		WithJitterFactor(0.1).
		Build()

	return &Manager{
		backend:    backend,
		usersCache: cache.NewUsersCache(redisConnection, options.UsersCacheExpiration),
		postsCache: cache.NewPostsCache(redisConnection, options.PostsCacheExpiration),
		executor:   failsafe.With[any](retry),
	}
}

func (m *Manager) Close() {
	m.backend.Close()
}

func (m *Manager) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	created, err := withRetry(ctx, m, "create_user", func(ctx context.Context) (models.User, error) {
		return m.backend.CreateUser(ctx, user)
	})
	if err != nil {
		return models.User{}, err
	}
	m.usersCache.AddProfiles(ctx, []models.Profile{created.Profile()})
	return created, nil
}

func (m *Manager) GetUser(ctx context.Context, id string) (models.User, error) {
	return m.backend.GetUser(ctx, id)
}

// GetProfiles resolves display projections, reading through the users
// cache. Unknown ids are absent from the result.
func (m *Manager) GetProfiles(ctx context.Context, ids []string) (map[string]models.Profile, error) {
	profiles, missing := m.usersCache.GetProfiles(ctx, ids)
	if len(missing) == 0 {
		return profiles, nil
	}

	loaded, err := m.backend.GetProfiles(ctx, missing)
	if err != nil {
		return nil, err
	}
	toCache := make([]models.Profile, 0, len(loaded))
	for id, profile := range loaded {
		profiles[id] = profile
		toCache = append(toCache, profile)
	}
	m.usersCache.AddProfiles(ctx, toCache)
	return profiles, nil
}

func (m *Manager) GetProfile(ctx context.Context, id string) (models.Profile, error) {
	profiles, err := m.GetProfiles(ctx, []string{id})
	if err != nil {
		return models.Profile{}, err
	}
	profile, ok := profiles[id]
	if !ok {
		return models.Profile{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return profile, nil
}

// ToggleFollow is not retried: the toggle is not idempotent, and a transient
// error raised after the commit landed would flip the edge back.
func (m *Manager) ToggleFollow(ctx context.Context, followerID, followeeID string) (bool, int, error) {
	return m.backend.ToggleFollow(ctx, followerID, followeeID)
}

func (m *Manager) CreatePost(ctx context.Context, post models.Post) (models.Post, error) {
	created, err := withRetry(ctx, m, "create_post", func(ctx context.Context) (models.Post, error) {
		return m.backend.CreatePost(ctx, post)
	})
	if err != nil {
		return models.Post{}, err
	}
	m.postsCache.AddPost(ctx, created.ID, created.OwnerID)
	return created, nil
}

func (m *Manager) GetPost(ctx context.Context, id string) (models.Post, error) {
	return m.backend.GetPost(ctx, id)
}

func (m *Manager) GetPostOwner(ctx context.Context, id string) (string, error) {
	if ownerID, ok := m.postsCache.GetPostOwnerId(ctx, id); ok {
		return ownerID, nil
	}
	ownerID, err := m.backend.GetPostOwner(ctx, id)
	if err != nil {
		return "", err
	}
	m.postsCache.AddPost(ctx, id, ownerID)
	return ownerID, nil
}

func (m *Manager) DeletePost(ctx context.Context, id string) error {
	_, err := withRetry(ctx, m, "delete_post", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.backend.DeletePost(ctx, id)
	})
	if err != nil {
		return err
	}
	m.postsCache.DeletePost(ctx, id)
	return nil
}

func (m *Manager) ListPostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error) {
	return m.backend.ListPostsByAuthors(ctx, authorIDs)
}

func (m *Manager) AddLike(ctx context.Context, postID, userID string) (models.Post, error) {
	return withRetry(ctx, m, "add_like", func(ctx context.Context) (models.Post, error) {
		return m.backend.AddLike(ctx, postID, userID)
	})
}

func (m *Manager) RemoveLike(ctx context.Context, postID, userID string) (models.Post, error) {
	return withRetry(ctx, m, "remove_like", func(ctx context.Context) (models.Post, error) {
		return m.backend.RemoveLike(ctx, postID, userID)
	})
}

func (m *Manager) AddComment(ctx context.Context, postID string, comment models.Comment) (models.Post, error) {
	return withRetry(ctx, m, "add_comment", func(ctx context.Context) (models.Post, error) {
		return m.backend.AddComment(ctx, postID, comment)
	})
}

func (m *Manager) CreateNotification(ctx context.Context, notification models.Notification) (models.Notification, error) {
	return withRetry(ctx, m, "create_notification", func(ctx context.Context) (models.Notification, error) {
		return m.backend.CreateNotification(ctx, notification)
	})
}

func (m *Manager) DeleteLikeNotification(ctx context.Context, senderID, recipientID, postID string) (bool, error) {
	return withRetry(ctx, m, "delete_like_notification", func(ctx context.Context) (bool, error) {
		return m.backend.DeleteLikeNotification(ctx, senderID, recipientID, postID)
	})
}

type markReadResult struct {
	modified       int
	previousUnread int
}

func (m *Manager) MarkAllRead(ctx context.Context, userID string) (int, int, error) {
	result, err := withRetry(ctx, m, "mark_all_read", func(ctx context.Context) (markReadResult, error) {
		modified, previous, err := m.backend.MarkAllRead(ctx, userID)
		return markReadResult{modified: modified, previousUnread: previous}, err
	})
	return result.modified, result.previousUnread, err
}

func (m *Manager) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]models.NotificationView, error) {
	return m.backend.ListNotifications(ctx, recipientID, unreadOnly)
}

func (m *Manager) UnreadCount(ctx context.Context, userID string) (int, error) {
	return m.backend.UnreadCount(ctx, userID)
}

func (m *Manager) ReconcileUnreadCounters(ctx context.Context) (int, error) {
	return withRetry(ctx, m, "reconcile_unread_counters", m.backend.ReconcileUnreadCounters)
}

// withRetry runs fn under the retry policy. Only errors wrapping
// models.ErrTransient are retried; once the policy gives up the last
// transient error is returned unchanged.
func withRetry[T any](ctx context.Context, m *Manager, operation string, fn func(context.Context) (T, error)) (T, error) {
	var (
		result   T
		lastErr  error
		attempts int
	)
	_, err := m.executor.WithContext(ctx).Get(func() (any, error) {
		if attempts > 0 {
			monitoring.StorageRetries.WithLabelValues(operation).Inc()
		}
		attempts++
		result, lastErr = fn(ctx)
		return nil, lastErr
	})
	if err == nil {
		return result, nil
	}

	var zero T
	if lastErr == nil {
		return zero, err
	}
	if errors.Is(lastErr, models.ErrTransient) {
		log.WithField("operation", operation).Errorf("Giving up after %d attempts: %v", attempts, lastErr)
	}
	return zero, lastErr
}
