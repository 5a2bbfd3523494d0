package tracker

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/slack-itop-bridge/internal/domain"
)

// Removes every member containing ARGV[1] in one atomic step.
var closeScript = redis.NewScript(`
local removed = 0
for _, member in ipairs(redis.call('SMEMBERS', KEYS[1])) do
	if string.find(member, ARGV[1], 1, true) then
		removed = removed + redis.call('SREM', KEYS[1], member)
	end
end
return removed
`)

// RedisTracker stores the open set in a Redis SET, which both services
// can mutate without losing updates.
type RedisTracker struct {
	client redis.UniversalClient
	key    string
	logger *zap.Logger
}

// NewRedisTracker stores tokens under key.
func NewRedisTracker(client redis.UniversalClient, key string, logger *zap.Logger) *RedisTracker {
	return &RedisTracker{client: client, key: key, logger: logger}
}

func (t *RedisTracker) IsOpen(ctx context.Context, thread domain.ThreadKey) (bool, error) {
	ok, err := t.client.SIsMember(ctx, t.key, thread.Token()).Result()
	if err != nil {
		return false, fmt.Errorf("tracker sismember: %w", err)
	}
	return ok, nil
}

func (t *RedisTracker) MarkOpen(ctx context.Context, thread domain.ThreadKey) error {
	if err := t.client.SAdd(ctx, t.key, thread.Token()).Err(); err != nil {
		return fmt.Errorf("tracker sadd: %w", err)
	}
	return nil
}

func (t *RedisTracker) MarkClosed(ctx context.Context, thread domain.ThreadKey) (int, error) {
	removed, err := closeScript.Run(ctx, t.client, []string{t.key}, thread.Token()).Int()
	if err != nil {
		return 0, fmt.Errorf("tracker close: %w", err)
	}
	if removed > 1 {
		t.logger.Warn("closing thread removed several tracker entries",
			zap.String("thread", thread.String()), zap.Int("removed", removed))
	}
	return removed, nil
}

func (t *RedisTracker) List(ctx context.Context) ([]string, error) {
	members, err := t.client.SMembers(ctx, t.key).Result()
	if err != nil {
		return nil, fmt.Errorf("tracker smembers: %w", err)
	}
	sort.Strings(members)
	return members, nil
}
