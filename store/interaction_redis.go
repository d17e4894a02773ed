package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/rushteam/hybridrec/core"
)

// RedisInteractionStore 从 Redis 有序集合读取行为日志。
// 业务侧以 {prefix}:{userID} 为 key、事件毫秒时间戳为 score 写入 JSON 事件。
type RedisInteractionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisInteractionStore(client redis.UniversalClient, prefix string) *RedisInteractionStore {
	if prefix == "" {
		prefix = "user:events"
	}
	return &RedisInteractionStore{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisInteractionStore) key(userID string) string {
	return r.prefix + ":" + userID
}

// Append 写入一条事件，供业务侧或数据导入使用。
func (r *RedisInteractionStore) Append(ctx context.Context, ev core.InteractionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.client.ZAdd(ctx, r.key(ev.UserID), redis.Z{
		Score:  float64(ev.Timestamp.UnixMilli()),
		Member: data,
	}).Err()
}

func (r *RedisInteractionStore) QueryEvents(ctx context.Context, userID string, window core.Window) ([]core.InteractionEvent, error) {
	lower := "-inf"
	if window.Span > 0 {
		lower = strconv.FormatInt(r.now().Add(-window.Span).UnixMilli(), 10)
	}
	by := &redis.ZRangeBy{Min: lower, Max: "+inf"}
	if window.Count > 0 {
		by.Count = int64(window.Count)
	}
	// 倒序取最近 Count 条，再翻转为时间升序
	members, err := r.client.ZRevRangeByScore(ctx, r.key(userID), by).Result()
	if err != nil {
		return nil, err
	}
	out := make([]core.InteractionEvent, 0, len(members))
	for i := len(members) - 1; i >= 0; i-- {
		var ev core.InteractionEvent
		if err := json.Unmarshal([]byte(members[i]), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

var _ core.InteractionStore = (*RedisInteractionStore)(nil)
