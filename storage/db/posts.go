package db

import (
	"context"
	"fmt"
	"time"

	"sharexp/storage/models"

	"github.com/jackc/pgx/v5"
)

const postColumns = `id, seq, owner_id, username, text, media_url, media_type, media_size, created_at`

func scanPost(row pgx.Row) (models.Post, error) {
	var (
		post      models.Post
		mediaURL  *string
		mediaType *string
		mediaSize *int64
	)
	err := row.Scan(
		&post.ID, &post.Seq, &post.OwnerID, &post.Username, &post.Text,
		&mediaURL, &mediaType, &mediaSize, &post.CreatedAt,
	)
	if err != nil {
		return models.Post{}, err
	}
	if mediaURL != nil {
		post.Media = &models.Media{URL: *mediaURL}
		if mediaType != nil {
			post.Media.FileType = models.MediaType(*mediaType)
		}
		if mediaSize != nil {
			post.Media.Size = *mediaSize
		}
	}
	post.Likes = []string{}
	post.Comments = []models.Comment{}
	return post, nil
}

func (b *Backend) CreatePost(ctx context.Context, post models.Post) (models.Post, error) {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	var mediaURL, mediaType *string
	var mediaSize *int64
	if post.Media != nil {
		fileType := string(post.Media.FileType)
		mediaURL, mediaType, mediaSize = &post.Media.URL, &fileType, &post.Media.Size
	}

	created, err := scanPost(b.pool.QueryRow(ctx, `
		INSERT INTO posts (id, owner_id, username, text, media_url, media_type, media_size, created_at)
		SELECT $1, u.id, u.username, $3, $4, $5, $6, $7 FROM users u WHERE u.id = $2
		RETURNING `+postColumns,
		post.ID, post.OwnerID, post.Text, mediaURL, mediaType, mediaSize, post.CreatedAt,
	))
	if err != nil {
		return models.Post{}, fmt.Errorf("create post for user %s: %w", post.OwnerID, classify(err))
	}
	return created, nil
}

func (b *Backend) GetPost(ctx context.Context, id string) (models.Post, error) {
	post, err := scanPost(b.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if err != nil {
		return models.Post{}, fmt.Errorf("post %s: %w", id, classify(err))
	}
	posts := []models.Post{post}
	if err := b.loadEngagement(ctx, b.pool, posts); err != nil {
		return models.Post{}, err
	}
	return posts[0], nil
}

func (b *Backend) GetPostOwner(ctx context.Context, id string) (string, error) {
	var ownerID string
	if err := b.pool.QueryRow(ctx, `SELECT owner_id FROM posts WHERE id = $1`, id).Scan(&ownerID); err != nil {
		return "", fmt.Errorf("post %s: %w", id, classify(err))
	}
	return ownerID, nil
}

func (b *Backend) DeletePost(ctx context.Context, id string) error {
	tag, err := b.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// ListPostsByAuthors returns every post owned by the given authors. Order is
// whatever the index yields; callers sort.
func (b *Backend) ListPostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error) {
	if len(authorIDs) == 0 {
		return make([]models.Post, 0), nil
	}
	rows, err := b.pool.Query(ctx, `SELECT `+postColumns+` FROM posts WHERE owner_id = ANY($1)`, authorIDs)
	if err != nil {
		return nil, classify(err)
	}
	posts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Post, error) {
		return scanPost(row)
	})
	if err != nil {
		return nil, classify(err)
	}
	if posts == nil {
		return make([]models.Post, 0), nil
	}
	if err := b.loadEngagement(ctx, b.pool, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (b *Backend) AddLike(ctx context.Context, postID, userID string) (models.Post, error) {
	var post models.Post
	err := b.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO post_likes (post_id, user_id)
			SELECT id, $2 FROM posts WHERE id = $1
			ON CONFLICT (post_id, user_id) DO NOTHING`,
			postID, userID,
		)
		if err != nil {
			return err
		}
		post, err = b.postInTx(ctx, tx, postID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("post %s already liked by %s: %w", postID, userID, models.ErrConflict)
		}
		return nil
	})
	if err != nil {
		return models.Post{}, err
	}
	return post, nil
}

func (b *Backend) RemoveLike(ctx context.Context, postID, userID string) (models.Post, error) {
	var post models.Post
	err := b.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`, postID, userID)
		if err != nil {
			return err
		}
		post, err = b.postInTx(ctx, tx, postID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("post %s not liked by %s: %w", postID, userID, models.ErrConflict)
		}
		return nil
	})
	if err != nil {
		return models.Post{}, err
	}
	return post, nil
}

func (b *Backend) AddComment(ctx context.Context, postID string, comment models.Comment) (models.Post, error) {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	var post models.Post
	err := b.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO comments (id, post_id, user_id, username, profile_image, text, created_at)
			SELECT $1, id, $3, $4, $5, $6, $7 FROM posts WHERE id = $2`,
			comment.ID, postID, comment.UserID, comment.Username, comment.ProfileImage, comment.Text, comment.CreatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("post %s: %w", postID, models.ErrNotFound)
		}
		post, err = b.postInTx(ctx, tx, postID)
		return err
	})
	if err != nil {
		return models.Post{}, err
	}
	return post, nil
}

// postInTx reads a post with its engagement inside tx.
func (b *Backend) postInTx(ctx context.Context, tx pgx.Tx, postID string) (models.Post, error) {
	post, err := scanPost(tx.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, postID))
	if err != nil {
		return models.Post{}, fmt.Errorf("post %s: %w", postID, classify(err))
	}
	posts := []models.Post{post}
	if err := b.loadEngagement(ctx, tx, posts); err != nil {
		return models.Post{}, err
	}
	return posts[0], nil
}

type querier interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// loadEngagement fills likes and comments for posts in two batched queries.
func (b *Backend) loadEngagement(ctx context.Context, q querier, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]string, len(posts))
	index := make(map[string]int, len(posts))
	for i, post := range posts {
		ids[i] = post.ID
		index[post.ID] = i
	}

	batch := &pgx.Batch{}
	batch.Queue(`SELECT post_id, user_id FROM post_likes WHERE post_id = ANY($1) ORDER BY seq`, ids)
	batch.Queue(`
		SELECT post_id, id, user_id, username, profile_image, text, created_at
		FROM comments WHERE post_id = ANY($1) ORDER BY seq`, ids)
	results := q.SendBatch(ctx, batch)
	defer results.Close()

	rows, err := results.Query()
	if err != nil {
		return classify(err)
	}
	for rows.Next() {
		var postID, userID string
		if err := rows.Scan(&postID, &userID); err != nil {
			rows.Close()
			return classify(err)
		}
		i := index[postID]
		posts[i].Likes = append(posts[i].Likes, userID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return classify(err)
	}

	rows, err = results.Query()
	if err != nil {
		return classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var postID string
		var comment models.Comment
		if err := rows.Scan(
			&postID, &comment.ID, &comment.UserID, &comment.Username,
			&comment.ProfileImage, &comment.Text, &comment.CreatedAt,
		); err != nil {
			return classify(err)
		}
		i := index[postID]
		posts[i].Comments = append(posts[i].Comments, comment)
	}
	return classify(rows.Err())
}
