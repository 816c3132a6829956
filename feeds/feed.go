package feeds

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sharexp/storage/models"

	log "github.com/sirupsen/logrus"
)

const (
	CursorEOF    = "eof"
	DefaultLimit = 50
	MaxLimit     = 100
)

type Store interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	ListPostsByAuthors(ctx context.Context, authorIDs []string) ([]models.Post, error)
}

// Assembler builds the following feed: posts of everyone the viewer follows
// plus the viewer's own, newest first.
type Assembler struct {
	store Store
}

func NewAssembler(store Store) *Assembler {
	return &Assembler{store: store}
}

func (a *Assembler) AssembleFeed(ctx context.Context, viewerID string) ([]FeedPost, error) {
	viewer, err := a.store.GetUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	authors := make([]string, 0, len(viewer.Following)+1)
	authors = append(authors, viewer.Following...)
	authors = append(authors, viewer.ID)

	posts, err := a.store.ListPostsByAuthors(ctx, authors)
	if err != nil {
		return nil, err
	}
	SortNewestFirst(posts)

	result := make([]FeedPost, len(posts))
	for i, post := range posts {
		result[i] = Annotate(post, viewerID)
	}
	log.WithFields(log.Fields{
		"viewer":  viewerID,
		"authors": len(authors),
		"posts":   len(result),
	}).Debug("Assembled following feed")
	return result, nil
}

// UserPosts lists the posts of one author, annotated for the viewer.
func (a *Assembler) UserPosts(ctx context.Context, viewerID, authorID string) ([]FeedPost, error) {
	posts, err := a.store.ListPostsByAuthors(ctx, []string{authorID})
	if err != nil {
		return nil, err
	}
	SortNewestFirst(posts)

	result := make([]FeedPost, len(posts))
	for i, post := range posts {
		result[i] = Annotate(post, viewerID)
	}
	return result, nil
}

// GetTimeline pages through the following feed. The cursor names the last
// post of the previous page as "<unixnano>::<seq>".
func (a *Assembler) GetTimeline(ctx context.Context, viewerID string, params QueryParams) (Response, error) {
	if params.Cursor == CursorEOF {
		return Response{Cursor: CursorEOF, Posts: make([]FeedPost, 0)}, nil
	}
	if params.Limit <= 0 {
		params.Limit = DefaultLimit
	}
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}

	var after *models.Post
	if params.Cursor != "" {
		position, err := parseCursor(params.Cursor)
		if err != nil {
			log.Errorf("Malformed cursor in %+v", params)
			return Response{}, err
		}
		after = &position
	}

	feed, err := a.AssembleFeed(ctx, viewerID)
	if err != nil {
		return Response{}, err
	}

	start := 0
	if after != nil {
		for start < len(feed) && compareNewestFirst(feed[start].Post, *after) <= 0 {
			start++
		}
	}
	end := min(start+int(params.Limit), len(feed))
	page := feed[start:end]

	cursor := CursorEOF
	if end < len(feed) && len(page) > 0 {
		last := page[len(page)-1]
		cursor = fmt.Sprintf("%d::%d", last.CreatedAt.UnixNano(), last.Seq)
	}
	return Response{Cursor: cursor, Posts: page}, nil
}

func parseCursor(cursor string) (models.Post, error) {
	parts := strings.Split(cursor, "::")
	if len(parts) != 2 {
		return models.Post{}, fmt.Errorf("cursor %q: %w", cursor, models.ErrInvalidArgument)
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return models.Post{}, fmt.Errorf("cursor %q: %w", cursor, models.ErrInvalidArgument)
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return models.Post{}, fmt.Errorf("cursor %q: %w", cursor, models.ErrInvalidArgument)
	}
	return models.Post{CreatedAt: time.Unix(0, nanos), Seq: seq}, nil
}
