package notifications

import (
	"context"
	"fmt"
	"time"

	"sharexp/monitoring"
	"sharexp/presence"
	"sharexp/storage/models"
	"sharexp/utils"

	log "github.com/sirupsen/logrus"
)

const LiveMessageType = "new_notification"

type Store interface {
	GetProfile(ctx context.Context, id string) (models.Profile, error)
	CreateNotification(ctx context.Context, notification models.Notification) (models.Notification, error)
	DeleteLikeNotification(ctx context.Context, senderID, recipientID, postID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int, int, error)
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]models.NotificationView, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type Presence interface {
	IsOnline(userID string) bool
	Publish(ctx context.Context, userID string, msg presence.Message) bool
}

type MarkReadResult struct {
	ModifiedCount       int `json:"modifiedCount"`
	PreviousUnreadCount int `json:"previousUnreadCount"`
}

// Dispatcher delivers each event exactly one way: pushed to the recipient's
// live sessions, or recorded durably with an unread counter increment.
type Dispatcher struct {
	store          Store
	presence       Presence
	publishTimeout time.Duration
}

func NewDispatcher(store Store, presence Presence, publishTimeout time.Duration) *Dispatcher {
	if publishTimeout <= 0 {
		publishTimeout = 100 * time.Millisecond
	}
	return &Dispatcher{
		store:          store,
		presence:       presence,
		publishTimeout: publishTimeout,
	}
}

// Emit dispatches event to its recipient. The request context may end as
// soon as the primary mutation is answered, so dispatch runs detached from
// its cancellation.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	outcome, err := d.Dispatch(context.WithoutCancel(ctx), event.RecipientID, event)
	if err != nil {
		log.WithFields(log.Fields{
			"type":      event.Type,
			"recipient": event.RecipientID,
			"sender":    event.SenderID,
			"outcome":   outcome,
		}).Errorf("Error dispatching notification: %v", err)
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, recipientID string, event Event) (Outcome, error) {
	event.RecipientID = recipientID
	if !event.Type.Valid() {
		return OutcomeFailed, fmt.Errorf("notification type %q: %w", event.Type, models.ErrInvalidArgument)
	}
	if recipientID == "" || event.SenderID == "" {
		return OutcomeFailed, fmt.Errorf("sender and recipient are required: %w", models.ErrInvalidArgument)
	}
	if event.SenderID == recipientID {
		d.count(event, OutcomeSuppressed)
		return OutcomeSuppressed, nil
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	if d.presence.IsOnline(recipientID) && d.publish(ctx, event) {
		d.count(event, OutcomeLive)
		return OutcomeLive, nil
	}

	_, err := d.store.CreateNotification(ctx, models.Notification{
		ID:          utils.NewID(),
		RecipientID: recipientID,
		SenderID:    event.SenderID,
		Type:        event.Type,
		PostID:      event.PostID,
		CommentID:   event.CommentID,
		CreatedAt:   event.CreatedAt,
	})
	if err != nil {
		d.count(event, OutcomeFailed)
		return OutcomeFailed, fmt.Errorf("persist %s notification for %s: %w", event.Type, recipientID, err)
	}
	d.count(event, OutcomeDurable)
	return OutcomeDurable, nil
}

// publish bounds the whole live path, sender lookup included, by the
// publish timeout.
func (d *Dispatcher) publish(ctx context.Context, event Event) bool {
	publishCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	sender, err := d.store.GetProfile(publishCtx, event.SenderID)
	if err != nil {
		if publishCtx.Err() != nil {
			log.Warnf("Sender profile %s not loaded within publish timeout: %v", event.SenderID, err)
			return false
		}
		log.Warnf("Error loading sender profile %s for live notification: %v", event.SenderID, err)
		sender = models.Profile{ID: event.SenderID}
	}

	return d.presence.Publish(publishCtx, event.RecipientID, presence.Message{
		Type: LiveMessageType,
		Data: LivePayload{
			Type:      event.Type,
			Sender:    sender,
			PostID:    event.PostID,
			CommentID: event.CommentID,
			CreatedAt: event.CreatedAt,
		},
		Timestamp: event.CreatedAt,
	})
}

func (d *Dispatcher) count(event Event, outcome Outcome) {
	monitoring.NotificationsDispatched.WithLabelValues(string(event.Type), string(outcome)).Inc()
}

// RetractLike removes the durable like record left for recipient when
// sender takes the like back. Likes already pushed live stay delivered.
func (d *Dispatcher) RetractLike(ctx context.Context, senderID, recipientID, postID string) (bool, error) {
	if senderID == recipientID {
		return false, nil
	}
	return d.store.DeleteLikeNotification(ctx, senderID, recipientID, postID)
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, userID string) (MarkReadResult, error) {
	modified, previous, err := d.store.MarkAllRead(ctx, userID)
	if err != nil {
		return MarkReadResult{}, err
	}
	return MarkReadResult{ModifiedCount: modified, PreviousUnreadCount: previous}, nil
}

func (d *Dispatcher) ListAll(ctx context.Context, userID string) ([]models.NotificationView, error) {
	return d.store.ListNotifications(ctx, userID, false)
}

func (d *Dispatcher) ListUnread(ctx context.Context, userID string) ([]models.NotificationView, error) {
	return d.store.ListNotifications(ctx, userID, true)
}

func (d *Dispatcher) UnreadCount(ctx context.Context, userID string) (int, error) {
	return d.store.UnreadCount(ctx, userID)
}
