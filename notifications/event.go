package notifications

import (
	"context"
	"time"

	"sharexp/storage/models"
)

// Event describes one engagement action that may concern a user other than
// its author.
type Event struct {
	Type        models.NotificationType
	RecipientID string
	SenderID    string
	PostID      string
	CommentID   string
	CreatedAt   time.Time
}

// Emitter receives events after the triggering mutation has been committed.
// Emit never fails from the caller's point of view.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

type Outcome string

const (
	OutcomeLive       Outcome = "live"
	OutcomeDurable    Outcome = "durable"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
)

// LivePayload is the body of a live notification message.
type LivePayload struct {
	Type      models.NotificationType `json:"type"`
	Sender    models.Profile          `json:"sender"`
	PostID    string                  `json:"post,omitempty"`
	CommentID string                  `json:"commentId,omitempty"`
	Read      bool                    `json:"read"`
	CreatedAt time.Time               `json:"createdAt"`
}
