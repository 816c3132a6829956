package models

import "time"

type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
)

type Media struct {
	URL      string    `json:"url"`
	FileType MediaType `json:"fileType"`
	Size     int64     `json:"size,omitempty"`
}

type Comment struct {
	ID           string    `json:"_id"`
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	ProfileImage string    `json:"profileImage"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Post struct {
	ID        string    `json:"_id"`
	Seq       int64     `json:"-"`
	OwnerID   string    `json:"userId"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Media     *Media    `json:"media,omitempty"`
	Likes     []string  `json:"likes"`
	Comments  []Comment `json:"comments"`
	CreatedAt time.Time `json:"createdAt"`
}

// LikeCount and CommentCount are always derived from the underlying
// collections; there is no stored counter that could drift.
func (p *Post) LikeCount() int {
	return len(p.Likes)
}

func (p *Post) CommentCount() int {
	return len(p.Comments)
}

func (p *Post) IsLikedBy(userID string) bool {
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}
