package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const PostOwnerIdRedisKey = "posts_owner_id"

// PostsCache maps post ids to their owner id. Ownership never changes, so
// entries only leave the cache on expiration or post deletion.
type PostsCache struct {
	redisClient *redis.Client
	expiration  time.Duration
}

func NewPostsCache(redisConnection *redis.Client, expiration time.Duration) *PostsCache {
	if redisConnection == nil {
		return nil
	}
	return &PostsCache{
		redisClient: redisConnection,
		expiration:  expiration,
	}
}

func (c *PostsCache) AddPost(ctx context.Context, postId, ownerId string) {
	if c == nil {
		return
	}
	if err := c.redisClient.HSet(ctx, PostOwnerIdRedisKey, postId, ownerId).Err(); err != nil {
		log.Warnf("Error caching owner of post %s: %v", postId, err)
		return
	}
	c.redisClient.HExpire(ctx, PostOwnerIdRedisKey, c.expiration, postId)
}

func (c *PostsCache) GetPostOwnerId(ctx context.Context, postId string) (string, bool) {
	if c == nil {
		return "", false
	}
	ownerId, err := c.redisClient.HGet(ctx, PostOwnerIdRedisKey, postId).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warnf("Error reading owner of post %s from cache: %v", postId, err)
		}
		return "", false
	}
	return ownerId, true
}

func (c *PostsCache) DeletePost(ctx context.Context, postId string) {
	if c == nil {
		return
	}
	c.redisClient.HDel(ctx, PostOwnerIdRedisKey, postId)
}
