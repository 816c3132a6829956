// Package memory is an in-process storage backend. It keeps every aggregate
// behind one lock, which makes each operation atomic and linearizable; it is
// meant for development and tests, not for multiple processes.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sharexp/storage/models"
)

type edge struct {
	follower string
	followee string
}

type Backend struct {
	mu sync.RWMutex

	users         map[string]*models.User
	usernames     map[string]string
	edges         map[edge]time.Time
	posts         map[string]*models.Post
	notifications []*models.Notification

	postSeq         int64
	notificationSeq int64
	now             func() time.Time
}

func New() *Backend {
	return &Backend{
		users:     make(map[string]*models.User),
		usernames: make(map[string]string),
		edges:     make(map[edge]time.Time),
		posts:     make(map[string]*models.Post),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (b *Backend) Close() {}

func (b *Backend) CreateUser(_ context.Context, user models.User) (models.User, error) {
	if user.ID == "" || user.Username == "" {
		return models.User{}, fmt.Errorf("user id and username are required: %w", models.ErrInvalidArgument)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.users[user.ID]; ok {
		return models.User{}, fmt.Errorf("user %s already exists: %w", user.ID, models.ErrConflict)
	}
	if _, ok := b.usernames[user.Username]; ok {
		return models.User{}, fmt.Errorf("username %s is taken: %w", user.Username, models.ErrConflict)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = b.now()
	}
	stored := models.User{
		ID:           user.ID,
		Username:     user.Username,
		Name:         user.Name,
		ProfileImage: user.ProfileImage,
		CreatedAt:    user.CreatedAt,
	}
	b.users[user.ID] = &stored
	b.usernames[user.Username] = user.ID
	return b.userView(&stored), nil
}

func (b *Backend) GetUser(_ context.Context, id string) (models.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	user, ok := b.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return b.userView(user), nil
}

func (b *Backend) GetProfiles(_ context.Context, ids []string) (map[string]models.Profile, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	profiles := make(map[string]models.Profile, len(ids))
	for _, id := range ids {
		if user, ok := b.users[id]; ok {
			profiles[id] = user.Profile()
		}
	}
	return profiles, nil
}

func (b *Backend) ToggleFollow(_ context.Context, followerID, followeeID string) (bool, int, error) {
	if followerID == followeeID {
		return false, 0, fmt.Errorf("cannot follow yourself: %w", models.ErrInvalidArgument)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	follower, ok := b.users[followerID]
	if !ok {
		return false, 0, fmt.Errorf("user %s: %w", followerID, models.ErrNotFound)
	}
	followee, ok := b.users[followeeID]
	if !ok {
		return false, 0, fmt.Errorf("user %s: %w", followeeID, models.ErrNotFound)
	}

	key := edge{follower: followerID, followee: followeeID}
	if _, ok := b.edges[key]; ok {
		delete(b.edges, key)
		follower.FollowingCount--
		followee.FollowersCount--
		return false, followee.FollowersCount, nil
	}
	b.edges[key] = b.now()
	follower.FollowingCount++
	followee.FollowersCount++
	return true, followee.FollowersCount, nil
}

func (b *Backend) CreatePost(_ context.Context, post models.Post) (models.Post, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	owner, ok := b.users[post.OwnerID]
	if !ok {
		return models.Post{}, fmt.Errorf("user %s: %w", post.OwnerID, models.ErrNotFound)
	}
	if _, ok := b.posts[post.ID]; ok {
		return models.Post{}, fmt.Errorf("post %s already exists: %w", post.ID, models.ErrConflict)
	}

	b.postSeq++
	stored := models.Post{
		ID:        post.ID,
		Seq:       b.postSeq,
		OwnerID:   owner.ID,
		Username:  owner.Username,
		Text:      post.Text,
		Media:     copyMedia(post.Media),
		Likes:     []string{},
		Comments:  []models.Comment{},
		CreatedAt: post.CreatedAt,
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = b.now()
	}
	b.posts[stored.ID] = &stored
	return copyPost(&stored), nil
}

func (b *Backend) GetPost(_ context.Context, id string) (models.Post, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	post, ok := b.posts[id]
	if !ok {
		return models.Post{}, fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}
	return copyPost(post), nil
}

func (b *Backend) GetPostOwner(_ context.Context, id string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	post, ok := b.posts[id]
	if !ok {
		return "", fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}
	return post.OwnerID, nil
}

func (b *Backend) DeletePost(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.posts[id]; !ok {
		return fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}
	delete(b.posts, id)
	return nil
}

// ListPostsByAuthors returns posts in insertion order; callers sort.
func (b *Backend) ListPostsByAuthors(_ context.Context, authorIDs []string) ([]models.Post, error) {
	authors := make(map[string]struct{}, len(authorIDs))
	for _, id := range authorIDs {
		authors[id] = struct{}{}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	posts := make([]models.Post, 0)
	for _, post := range b.posts {
		if _, ok := authors[post.OwnerID]; ok {
			posts = append(posts, copyPost(post))
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].Seq < posts[j].Seq })
	return posts, nil
}

func (b *Backend) AddLike(_ context.Context, postID, userID string) (models.Post, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	post, ok := b.posts[postID]
	if !ok {
		return models.Post{}, fmt.Errorf("post %s: %w", postID, models.ErrNotFound)
	}
	if _, ok := b.users[userID]; !ok {
		return models.Post{}, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	if post.IsLikedBy(userID) {
		return models.Post{}, fmt.Errorf("post %s already liked by %s: %w", postID, userID, models.ErrConflict)
	}
	post.Likes = append(post.Likes, userID)
	return copyPost(post), nil
}

func (b *Backend) RemoveLike(_ context.Context, postID, userID string) (models.Post, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	post, ok := b.posts[postID]
	if !ok {
		return models.Post{}, fmt.Errorf("post %s: %w", postID, models.ErrNotFound)
	}
	for i, id := range post.Likes {
		if id == userID {
			post.Likes = append(post.Likes[:i:i], post.Likes[i+1:]...)
			return copyPost(post), nil
		}
	}
	return models.Post{}, fmt.Errorf("post %s not liked by %s: %w", postID, userID, models.ErrConflict)
}

func (b *Backend) AddComment(_ context.Context, postID string, comment models.Comment) (models.Post, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	post, ok := b.posts[postID]
	if !ok {
		return models.Post{}, fmt.Errorf("post %s: %w", postID, models.ErrNotFound)
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = b.now()
	}
	post.Comments = append(post.Comments, comment)
	return copyPost(post), nil
}

func (b *Backend) CreateNotification(_ context.Context, notification models.Notification) (models.Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	recipient, ok := b.users[notification.RecipientID]
	if !ok {
		return models.Notification{}, fmt.Errorf("user %s: %w", notification.RecipientID, models.ErrNotFound)
	}

	b.notificationSeq++
	stored := notification
	stored.Seq = b.notificationSeq
	stored.Read = false
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = b.now()
	}
	b.notifications = append(b.notifications, &stored)
	recipient.UnreadNotifications++
	return stored, nil
}

func (b *Backend) DeleteLikeNotification(_ context.Context, senderID, recipientID, postID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deleted := false
	kept := b.notifications[:0]
	for _, n := range b.notifications {
		if n.Type == models.TypeLike && n.SenderID == senderID && n.RecipientID == recipientID && n.PostID == postID {
			deleted = true
			if !n.Read {
				if recipient, ok := b.users[recipientID]; ok && recipient.UnreadNotifications > 0 {
					recipient.UnreadNotifications--
				}
			}
			continue
		}
		kept = append(kept, n)
	}
	for i := len(kept); i < len(b.notifications); i++ {
		b.notifications[i] = nil
	}
	b.notifications = kept
	return deleted, nil
}

func (b *Backend) MarkAllRead(_ context.Context, userID string) (int, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	user, ok := b.users[userID]
	if !ok {
		return 0, 0, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}

	modified := 0
	for _, n := range b.notifications {
		if n.RecipientID == userID && !n.Read {
			n.Read = true
			modified++
		}
	}
	previous := user.UnreadNotifications
	user.UnreadNotifications = 0
	return modified, previous, nil
}

func (b *Backend) ListNotifications(_ context.Context, recipientID string, unreadOnly bool) ([]models.NotificationView, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	views := make([]models.NotificationView, 0)
	for i := len(b.notifications) - 1; i >= 0; i-- {
		n := b.notifications[i]
		if n.RecipientID != recipientID || (unreadOnly && n.Read) {
			continue
		}
		view := models.NotificationView{Notification: *n}
		if sender, ok := b.users[n.SenderID]; ok {
			view.Sender = sender.Profile()
		}
		if post, ok := b.posts[n.PostID]; ok {
			view.PostMedia = copyMedia(post.Media)
		}
		views = append(views, view)
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].Seq > views[j].Seq
		}
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views, nil
}

func (b *Backend) UnreadCount(_ context.Context, userID string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	user, ok := b.users[userID]
	if !ok {
		return 0, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	return user.UnreadNotifications, nil
}

func (b *Backend) ReconcileUnreadCounters(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := make(map[string]int, len(b.users))
	for _, n := range b.notifications {
		if !n.Read {
			counts[n.RecipientID]++
		}
	}
	fixed := 0
	for id, user := range b.users {
		if user.UnreadNotifications != counts[id] {
			user.UnreadNotifications = counts[id]
			fixed++
		}
	}
	return fixed, nil
}

// userView derives the follower and following lists from the edge set,
// oldest edge first. Callers hold the lock.
func (b *Backend) userView(user *models.User) models.User {
	type dated struct {
		id string
		at time.Time
	}
	var followers, following []dated
	for e, at := range b.edges {
		if e.followee == user.ID {
			followers = append(followers, dated{e.follower, at})
		}
		if e.follower == user.ID {
			following = append(following, dated{e.followee, at})
		}
	}
	ids := func(items []dated) []string {
		sort.Slice(items, func(i, j int) bool {
			if items[i].at.Equal(items[j].at) {
				return items[i].id < items[j].id
			}
			return items[i].at.Before(items[j].at)
		})
		result := make([]string, len(items))
		for i, item := range items {
			result[i] = item.id
		}
		return result
	}

	view := *user
	view.Followers = ids(followers)
	view.Following = ids(following)
	return view
}

func copyPost(post *models.Post) models.Post {
	result := *post
	result.Media = copyMedia(post.Media)
	result.Likes = append([]string{}, post.Likes...)
	result.Comments = append([]models.Comment{}, post.Comments...)
	return result
}

func copyMedia(media *models.Media) *models.Media {
	if media == nil {
		return nil
	}
	result := *media
	return &result
}
