package redis

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Redis keys for presence
const (
	presenceOnlineSet    = "presence:online"
	presenceHeartbeatKey = "presence:heartbeat"
)

// PresenceStore mirrors the per-process connection registry into Redis so
// every instance can answer "who is online" for the whole deployment.
type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &PresenceStore{client: client, ttl: ttl}
}

// SetOnline adds the user to the shared online set and refreshes the
// heartbeat used for stale-entry cleanup.
func (p *PresenceStore) SetOnline(ctx context.Context, userID string) error {
	now := time.Now()
	pipe := p.client.Pipeline()
	pipe.SAdd(ctx, presenceOnlineSet, userID)
	pipe.ZAdd(ctx, presenceHeartbeatKey, goredis.Z{
		Score:  float64(now.Unix()),
		Member: userID,
	})
	_, err := pipe.Exec(ctx)
	return err
}

// SetOffline removes the user from the shared online set. Called when the
// user's last connection on this instance goes away.
func (p *PresenceStore) SetOffline(ctx context.Context, userID string) error {
	pipe := p.client.Pipeline()
	pipe.SRem(ctx, presenceOnlineSet, userID)
	pipe.ZRem(ctx, presenceHeartbeatKey, userID)
	_, err := pipe.Exec(ctx)
	return err
}

// OnlineUserIDs returns the deployment-wide online user set.
func (p *PresenceStore) OnlineUserIDs(ctx context.Context) ([]string, error) {
	return p.client.SMembers(ctx, presenceOnlineSet).Result()
}

// PruneStale drops users whose heartbeat is older than the TTL; covers
// instances that died without deregistering their connections.
func (p *PresenceStore) PruneStale(ctx context.Context) error {
	cutoff := time.Now().Add(-p.ttl).Unix()
	stale, err := p.client.ZRangeByScore(ctx, presenceHeartbeatKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	members := make([]interface{}, len(stale))
	for i, s := range stale {
		members[i] = s
	}
	pipe := p.client.Pipeline()
	pipe.SRem(ctx, presenceOnlineSet, members...)
	pipe.ZRem(ctx, presenceHeartbeatKey, members...)
	_, err = pipe.Exec(ctx)
	return err
}
