package feeds

import "sharexp/storage/models"

type QueryParams struct {
	Limit  int64
	Cursor string
}

// FeedPost is a post annotated for one viewer.
type FeedPost struct {
	models.Post
	IsLiked      bool `json:"isLiked"`
	LikeCount    int  `json:"likeCount"`
	CommentCount int  `json:"commentCount"`
}

type Response struct {
	Cursor string     `json:"cursor"`
	Posts  []FeedPost `json:"posts"`
}

// Annotate derives the viewer-specific fields of post.
func Annotate(post models.Post, viewerID string) FeedPost {
	return FeedPost{
		Post:         post,
		IsLiked:      post.IsLikedBy(viewerID),
		LikeCount:    post.LikeCount(),
		CommentCount: post.CommentCount(),
	}
}
