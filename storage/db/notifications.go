package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sharexp/storage/models"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// CreateNotification inserts the record and bumps the recipient's unread
// counter in one transaction.
func (b *Backend) CreateNotification(ctx context.Context, notification models.Notification) (models.Notification, error) {
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	notification.Read = false

	err := b.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO notifications (id, recipient_id, sender_id, type, post_id, comment_id, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
			RETURNING seq`,
			notification.ID, notification.RecipientID, notification.SenderID, string(notification.Type),
			notification.PostID, notification.CommentID, notification.CreatedAt,
		).Scan(&notification.Seq)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE users SET unread_notifications = unread_notifications + 1 WHERE id = $1`,
			notification.RecipientID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %s: %w", notification.RecipientID, models.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return models.Notification{}, err
	}
	return notification, nil
}

// DeleteLikeNotification removes the durable like record for the triple and
// gives back the unread slot it held.
func (b *Backend) DeleteLikeNotification(ctx context.Context, senderID, recipientID, postID string) (bool, error) {
	deleted := false
	err := b.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockUsers(ctx, tx, recipientID); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			DELETE FROM notifications
			WHERE type = 'like' AND sender_id = $1 AND recipient_id = $2 AND post_id = $3
			RETURNING read`,
			senderID, recipientID, postID,
		)
		if err != nil {
			return err
		}
		readFlags, err := pgx.CollectRows(rows, pgx.RowTo[bool])
		if err != nil {
			return err
		}
		unread := 0
		for _, read := range readFlags {
			if !read {
				unread++
			}
		}
		deleted = len(readFlags) > 0
		if unread == 0 {
			return nil
		}
		_, err = tx.Exec(ctx,
			`UPDATE users SET unread_notifications = GREATEST(unread_notifications - $2, 0) WHERE id = $1`,
			recipientID, unread,
		)
		return err
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// MarkAllRead holds the recipient row lock for the whole reset, so an
// increment either lands before it (and is marked read) or after it.
func (b *Backend) MarkAllRead(ctx context.Context, userID string) (int, int, error) {
	var modified, previous int
	err := b.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT unread_notifications FROM users WHERE id = $1 FOR UPDATE`, userID,
		).Scan(&previous)
		if err != nil {
			return fmt.Errorf("user %s: %w", userID, classify(err))
		}
		tag, err := tx.Exec(ctx,
			`UPDATE notifications SET read = true, read_at = now() WHERE recipient_id = $1 AND NOT read`,
			userID,
		)
		if err != nil {
			return err
		}
		modified = int(tag.RowsAffected())
		_, err = tx.Exec(ctx, `UPDATE users SET unread_notifications = 0 WHERE id = $1`, userID)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return modified, previous, nil
}

func (b *Backend) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]models.NotificationView, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT n.id, n.seq, n.recipient_id, n.sender_id, n.type,
		       COALESCE(n.post_id, ''), COALESCE(n.comment_id, ''), n.read, n.created_at,
		       COALESCE(u.username, ''), COALESCE(u.name, ''), COALESCE(u.profile_image, ''),
		       p.media_url, p.media_type
		FROM notifications n
		LEFT JOIN users u ON u.id = n.sender_id
		LEFT JOIN posts p ON p.id = n.post_id
		WHERE n.recipient_id = $1 AND (NOT $2 OR NOT n.read)
		ORDER BY n.created_at DESC, n.seq DESC`,
		recipientID, unreadOnly,
	)
	if err != nil {
		return nil, classify(err)
	}
	views, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.NotificationView, error) {
		var (
			view      models.NotificationView
			kind      string
			mediaURL  *string
			mediaType *string
		)
		err := row.Scan(
			&view.ID, &view.Seq, &view.RecipientID, &view.SenderID, &kind,
			&view.PostID, &view.CommentID, &view.Read, &view.CreatedAt,
			&view.Sender.Username, &view.Sender.Name, &view.Sender.ProfileImage,
			&mediaURL, &mediaType,
		)
		view.Type = models.NotificationType(kind)
		view.Sender.ID = view.SenderID
		if mediaURL != nil {
			view.PostMedia = &models.Media{URL: *mediaURL}
			if mediaType != nil {
				view.PostMedia.FileType = models.MediaType(*mediaType)
			}
		}
		return view, err
	})
	if err != nil {
		return nil, classify(err)
	}
	if views == nil {
		views = make([]models.NotificationView, 0)
	}
	return views, nil
}

// ReconcileUnreadCounters rewrites counters that drifted from the number of
// unread rows. Each user is fixed in its own transaction under the row lock.
func (b *Backend) ReconcileUnreadCounters(ctx context.Context) (int, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT u.id FROM users u
		WHERE u.unread_notifications <> (
			SELECT count(*) FROM notifications n WHERE n.recipient_id = u.id AND NOT n.read
		)`)
	if err != nil {
		return 0, classify(err)
	}
	candidates, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, classify(err)
	}

	fixed := 0
	for _, userID := range candidates {
		var changed bool
		err := b.inTx(ctx, func(tx pgx.Tx) error {
			var stored int
			if err := tx.QueryRow(ctx,
				`SELECT unread_notifications FROM users WHERE id = $1 FOR UPDATE`, userID,
			).Scan(&stored); err != nil {
				return err
			}
			var actual int
			if err := tx.QueryRow(ctx,
				`SELECT count(*) FROM notifications WHERE recipient_id = $1 AND NOT read`, userID,
			).Scan(&actual); err != nil {
				return err
			}
			if stored == actual {
				return nil
			}
			changed = true
			_, err := tx.Exec(ctx, `UPDATE users SET unread_notifications = $2 WHERE id = $1`, userID, actual)
			return err
		})
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return fixed, err
		}
		if changed {
			log.WithField("user", userID).Warn("Reconciled drifted unread notification counter")
			fixed++
		}
	}
	return fixed, nil
}
