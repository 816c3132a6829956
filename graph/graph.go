// Package graph owns the follow relationships between users.
package graph

import (
	"context"
	"fmt"

	"sharexp/feeds"
	"sharexp/notifications"
	"sharexp/storage/models"
	"sharexp/utils"

	log "github.com/sirupsen/logrus"
)

type Store interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	ToggleFollow(ctx context.Context, followerID, followeeID string) (bool, int, error)
	ListPostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error)
}

type FollowResult struct {
	IsFollowing   bool `json:"isFollowing"`
	FollowerCount int  `json:"followerCount"`
}

type ProfileView struct {
	User        models.User      `json:"user"`
	IsFollowing bool             `json:"isFollowing"`
	Posts       []feeds.FeedPost `json:"posts"`
}

type Graph struct {
	store   Store
	emitter notifications.Emitter
	locks   *utils.KeyedMutex
}

func NewGraph(store Store, emitter notifications.Emitter) *Graph {
	return &Graph{
		store:   store,
		emitter: emitter,
		locks:   utils.NewKeyedMutex(),
	}
}

// ToggleFollow follows targetID when viewerID does not follow it yet and
// unfollows otherwise. Only a new follow notifies the target.
func (g *Graph) ToggleFollow(ctx context.Context, viewerID, targetID string) (FollowResult, error) {
	if viewerID == targetID {
		return FollowResult{}, fmt.Errorf("you cannot follow yourself: %w", models.ErrInvalidArgument)
	}

	unlock := g.locks.Lock(utils.PairKey(viewerID, targetID))
	following, followerCount, err := g.store.ToggleFollow(ctx, viewerID, targetID)
	unlock()
	if err != nil {
		return FollowResult{}, err
	}

	log.WithFields(log.Fields{
		"follower":  viewerID,
		"followee":  targetID,
		"following": following,
	}).Debug("Toggled follow")

	if following {
		g.emitter.Emit(ctx, notifications.Event{
			Type:        models.TypeFollow,
			RecipientID: targetID,
			SenderID:    viewerID,
		})
	}
	return FollowResult{IsFollowing: following, FollowerCount: followerCount}, nil
}

// Profile returns userID as seen by viewerID, with posts newest first.
func (g *Graph) Profile(ctx context.Context, viewerID, userID string) (ProfileView, error) {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return ProfileView{}, err
	}
	posts, err := g.store.ListPostsByAuthors(ctx, []string{userID})
	if err != nil {
		return ProfileView{}, err
	}
	feeds.SortNewestFirst(posts)

	annotated := make([]feeds.FeedPost, len(posts))
	for i, post := range posts {
		annotated[i] = feeds.Annotate(post, viewerID)
	}

	return ProfileView{User: user, IsFollowing: user.IsFollowedBy(viewerID), Posts: annotated}, nil
}
