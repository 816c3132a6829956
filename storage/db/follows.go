package db

import (
	"context"
	"fmt"

	"sharexp/storage/models"
	"sharexp/utils"

	"github.com/jackc/pgx/v5"
)

// ToggleFollow flips the edge and both denormalized counts in one
// transaction. A transaction-scoped advisory lock on the unordered pair
// serializes toggles between the same two users across processes.
func (b *Backend) ToggleFollow(ctx context.Context, followerID, followeeID string) (bool, int, error) {
	if followerID == followeeID {
		return false, 0, fmt.Errorf("cannot follow yourself: %w", models.ErrInvalidArgument)
	}

	var (
		following     bool
		followerCount int
	)
	err := b.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "follow:"+utils.PairKey(followerID, followeeID)); err != nil {
			return err
		}
		if err := lockUsers(ctx, tx, followerID, followeeID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`, followerID, followeeID)
		if err != nil {
			return err
		}
		delta := -1
		if tag.RowsAffected() == 0 {
			if _, err := tx.Exec(ctx, `INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2)`, followerID, followeeID); err != nil {
				return err
			}
			delta = 1
		}
		following = delta > 0

		if _, err := tx.Exec(ctx, `UPDATE users SET following_count = following_count + $2 WHERE id = $1`, followerID, delta); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`UPDATE users SET followers_count = followers_count + $2 WHERE id = $1 RETURNING followers_count`,
			followeeID, delta,
		).Scan(&followerCount)
	})
	if err != nil {
		return false, 0, err
	}
	return following, followerCount, nil
}
