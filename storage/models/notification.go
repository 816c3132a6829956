package models

import "time"

type NotificationType string

const (
	TypeLike    NotificationType = "like"
	TypeComment NotificationType = "comment"
	TypeFollow  NotificationType = "follow"
)

func (t NotificationType) Valid() bool {
	switch t {
	case TypeLike, TypeComment, TypeFollow:
		return true
	}
	return false
}

type Notification struct {
	ID          string           `json:"_id"`
	Seq         int64            `json:"-"`
	RecipientID string           `json:"recipient"`
	SenderID    string           `json:"-"`
	Type        NotificationType `json:"type"`
	PostID      string           `json:"post,omitempty"`
	CommentID   string           `json:"commentId,omitempty"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// NotificationView is a stored notification with the sender and the post
// media denormalized for display.
type NotificationView struct {
	Notification
	Sender    Profile `json:"sender"`
	PostMedia *Media  `json:"postMedia,omitempty"`
}
