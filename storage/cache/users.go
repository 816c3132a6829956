package cache

import (
	"context"
	"encoding/json"
	"time"

	"sharexp/storage/models"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const UsersProfileRedisKey = "users_profile"

// UsersCache keeps the profile projection of users in a single Redis hash,
// one field per user with its own expiration. A nil cache is a valid, always
// missing cache.
type UsersCache struct {
	redisClient *redis.Client
	expiration  time.Duration
}

func NewUsersCache(redisConnection *redis.Client, expiration time.Duration) *UsersCache {
	if redisConnection == nil {
		return nil
	}
	return &UsersCache{
		redisClient: redisConnection,
		expiration:  expiration,
	}
}

func (c *UsersCache) AddProfiles(ctx context.Context, profiles []models.Profile) {
	if c == nil || len(profiles) == 0 {
		return
	}
	values := make([]any, 0, 2*len(profiles))
	fields := make([]string, 0, len(profiles))
	for _, profile := range profiles {
		values = append(values, profile.ID, string(mustMarshal(profile)))
		fields = append(fields, profile.ID)
	}
	if err := c.redisClient.HSet(ctx, UsersProfileRedisKey, values...).Err(); err != nil {
		log.Warnf("Error caching user profiles: %v", err)
		return
	}
	c.redisClient.HExpire(ctx, UsersProfileRedisKey, c.expiration, fields...)
}

// GetProfiles returns the cached profiles among ids and the ids that missed.
func (c *UsersCache) GetProfiles(ctx context.Context, ids []string) (map[string]models.Profile, []string) {
	found := make(map[string]models.Profile, len(ids))
	if c == nil || len(ids) == 0 {
		return found, ids
	}

	values, err := c.redisClient.HMGet(ctx, UsersProfileRedisKey, ids...).Result()
	if err != nil {
		log.Warnf("Error reading user profiles from cache: %v", err)
		return found, ids
	}

	var missing []string
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var profile models.Profile
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			log.Warnf("Error decoding cached profile %s: %v", ids[i], err)
			missing = append(missing, ids[i])
			continue
		}
		found[ids[i]] = profile
	}
	return found, missing
}

func (c *UsersCache) DeleteProfile(ctx context.Context, id string) {
	if c == nil {
		return
	}
	c.redisClient.HDel(ctx, UsersProfileRedisKey, id)
}

func mustMarshal(value any) []byte {
	data, err := json.Marshal(value)
	if err != nil {
		log.Errorf("Error happened in JSON marshal. Err: %s", err)
	}
	return data
}
