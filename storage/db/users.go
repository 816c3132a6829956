package db

import (
	"context"
	"fmt"
	"time"

	"sharexp/storage/models"

	"github.com/jackc/pgx/v5"
)

func (b *Backend) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == "" || user.Username == "" {
		return models.User{}, fmt.Errorf("user id and username are required: %w", models.ErrInvalidArgument)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := b.pool.Exec(ctx, `
		INSERT INTO users (id, username, name, profile_image, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Username, user.Name, user.ProfileImage, user.CreatedAt,
	)
	if err != nil {
		return models.User{}, classify(err)
	}
	user.Followers = []string{}
	user.Following = []string{}
	user.FollowersCount = 0
	user.FollowingCount = 0
	user.UnreadNotifications = 0
	return user, nil
}

func (b *Backend) GetUser(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := b.pool.QueryRow(ctx, `
		SELECT id, username, name, profile_image, followers_count, following_count,
		       unread_notifications, created_at
		FROM users WHERE id = $1`, id,
	).Scan(
		&user.ID, &user.Username, &user.Name, &user.ProfileImage,
		&user.FollowersCount, &user.FollowingCount, &user.UnreadNotifications, &user.CreatedAt,
	)
	if err != nil {
		return models.User{}, fmt.Errorf("user %s: %w", id, classify(err))
	}

	user.Followers, err = b.edgeIDs(ctx, `SELECT follower_id FROM follows WHERE followee_id = $1 ORDER BY created_at, follower_id`, id)
	if err != nil {
		return models.User{}, err
	}
	user.Following, err = b.edgeIDs(ctx, `SELECT followee_id FROM follows WHERE follower_id = $1 ORDER BY created_at, followee_id`, id)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (b *Backend) edgeIDs(ctx context.Context, query, id string) ([]string, error) {
	rows, err := b.pool.Query(ctx, query, id)
	if err != nil {
		return nil, classify(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify(err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (b *Backend) GetProfiles(ctx context.Context, ids []string) (map[string]models.Profile, error) {
	profiles := make(map[string]models.Profile, len(ids))
	if len(ids) == 0 {
		return profiles, nil
	}
	rows, err := b.pool.Query(ctx, `SELECT id, username, name, profile_image FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var profile models.Profile
		if err := rows.Scan(&profile.ID, &profile.Username, &profile.Name, &profile.ProfileImage); err != nil {
			return nil, classify(err)
		}
		profiles[profile.ID] = profile
	}
	return profiles, classify(rows.Err())
}

func (b *Backend) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := b.pool.QueryRow(ctx, `SELECT unread_notifications FROM users WHERE id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("user %s: %w", userID, classify(err))
	}
	return count, nil
}
