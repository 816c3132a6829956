// Package engagement owns posts and the likes and comments on them.
package engagement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sharexp/notifications"
	"sharexp/storage/models"
	"sharexp/utils"

	log "github.com/sirupsen/logrus"
)

type Store interface {
	GetProfile(ctx context.Context, id string) (models.Profile, error)
	CreatePost(ctx context.Context, post models.Post) (models.Post, error)
	GetPost(ctx context.Context, id string) (models.Post, error)
	GetPostOwner(ctx context.Context, id string) (string, error)
	DeletePost(ctx context.Context, id string) error
	AddLike(ctx context.Context, postID, userID string) (models.Post, error)
	RemoveLike(ctx context.Context, postID, userID string) (models.Post, error)
	AddComment(ctx context.Context, postID string, comment models.Comment) (models.Post, error)
}

// Notifier is the part of the dispatcher the ledger talks to.
type Notifier interface {
	notifications.Emitter
	RetractLike(ctx context.Context, senderID, recipientID, postID string) (bool, error)
}

type LikeResult struct {
	Likes []string `json:"likes"`
	Count int      `json:"count"`
}

type CommentResult struct {
	Comments []models.Comment `json:"comments"`
	Count    int              `json:"count"`
	Comment  models.Comment   `json:"comment"`
}

type LikeStatus struct {
	IsLiked   bool `json:"isLiked"`
	LikeCount int  `json:"likeCount"`
}

// Ledger serializes writes to a post with a per-post lock. A second lock per
// (post, user) spans a like or unlike together with its notification side
// effect, so an unlike never runs between a like and its durable record.
type Ledger struct {
	store    Store
	notifier Notifier
	locks    *utils.KeyedMutex
	likers   *utils.KeyedMutex
}

func NewLedger(store Store, notifier Notifier) *Ledger {
	return &Ledger{
		store:    store,
		notifier: notifier,
		locks:    utils.NewKeyedMutex(),
		likers:   utils.NewKeyedMutex(),
	}
}

// Publish creates a post. A post needs text, media, or both.
func (l *Ledger) Publish(ctx context.Context, ownerID, text string, media *models.Media) (models.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" && media == nil {
		return models.Post{}, fmt.Errorf("post needs text or media: %w", models.ErrInvalidArgument)
	}
	if media != nil {
		switch media.FileType {
		case models.MediaImage, models.MediaVideo, models.MediaDocument:
		default:
			return models.Post{}, fmt.Errorf("media type %q: %w", media.FileType, models.ErrInvalidArgument)
		}
		if strings.TrimSpace(media.URL) == "" {
			return models.Post{}, fmt.Errorf("media url is required: %w", models.ErrInvalidArgument)
		}
	}

	post, err := l.store.CreatePost(ctx, models.Post{
		ID:        utils.NewID(),
		OwnerID:   ownerID,
		Text:      text,
		Media:     media,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return models.Post{}, err
	}
	log.WithFields(log.Fields{"post": post.ID, "owner": ownerID}).Info("Post published")
	return post, nil
}

// Delete removes a post owned by callerID.
func (l *Ledger) Delete(ctx context.Context, callerID, postID string) error {
	ownerID, err := l.store.GetPostOwner(ctx, postID)
	if err != nil {
		return err
	}
	if ownerID != callerID {
		return fmt.Errorf("post %s belongs to another user: %w", postID, models.ErrUnauthorized)
	}
	return l.store.DeletePost(ctx, postID)
}

func (l *Ledger) Like(ctx context.Context, postID, userID string) (LikeResult, error) {
	unlockLiker := l.likers.Lock(likerKey(postID, userID))
	defer unlockLiker()

	unlock := l.locks.Lock(postID)
	post, err := l.store.AddLike(ctx, postID, userID)
	unlock()
	if err != nil {
		return LikeResult{}, err
	}

	l.notifier.Emit(ctx, notifications.Event{
		Type:        models.TypeLike,
		RecipientID: post.OwnerID,
		SenderID:    userID,
		PostID:      post.ID,
	})
	return LikeResult{Likes: post.Likes, Count: post.LikeCount()}, nil
}

// Unlike removes the like and any durable like notification it left. A like
// that was already pushed live is not recalled.
func (l *Ledger) Unlike(ctx context.Context, postID, userID string) (LikeResult, error) {
	unlockLiker := l.likers.Lock(likerKey(postID, userID))
	defer unlockLiker()

	unlock := l.locks.Lock(postID)
	post, err := l.store.RemoveLike(ctx, postID, userID)
	unlock()
	if err != nil {
		return LikeResult{}, err
	}

	if _, err := l.notifier.RetractLike(context.WithoutCancel(ctx), userID, post.OwnerID, post.ID); err != nil {
		log.WithFields(log.Fields{
			"post":   post.ID,
			"sender": userID,
		}).Errorf("Error retracting like notification: %v", err)
	}
	return LikeResult{Likes: post.Likes, Count: post.LikeCount()}, nil
}

func (l *Ledger) Comment(ctx context.Context, postID, userID, text string) (CommentResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return CommentResult{}, fmt.Errorf("comment text is required: %w", models.ErrInvalidArgument)
	}

	author, err := l.store.GetProfile(ctx, userID)
	if err != nil {
		return CommentResult{}, err
	}
	comment := models.Comment{
		ID:           utils.NewID(),
		UserID:       author.ID,
		Username:     author.Username,
		ProfileImage: author.ProfileImage,
		Text:         text,
		CreatedAt:    time.Now().UTC(),
	}

	post, err := l.store.AddComment(ctx, postID, comment)
	if err != nil {
		return CommentResult{}, err
	}

	l.notifier.Emit(ctx, notifications.Event{
		Type:        models.TypeComment,
		RecipientID: post.OwnerID,
		SenderID:    userID,
		PostID:      post.ID,
		CommentID:   comment.ID,
	})
	return CommentResult{
		Comments: post.Comments,
		Count:    post.CommentCount(),
		Comment:  comment,
	}, nil
}

func (l *Ledger) LikeStatus(ctx context.Context, postID, userID string) (LikeStatus, error) {
	post, err := l.store.GetPost(ctx, postID)
	if err != nil {
		return LikeStatus{}, err
	}
	return LikeStatus{IsLiked: post.IsLikedBy(userID), LikeCount: post.LikeCount()}, nil
}

func likerKey(postID, userID string) string {
	return postID + "|" + userID
}
