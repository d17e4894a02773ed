package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/rushteam/hybridrec/core"
)

// RedisFeedbackStore 是 Redis 实现的反馈存储。
//
// Key 布局（prefix 默认 "fb"）：
//   - {prefix}:imp          Hash  impressionID -> JSON
//   - {prefix}:imp:ts       ZSet  impressionID，score 为 ShownAt 毫秒
//   - {prefix}:imp:{user}:{type}:{id}  ZSet  该用户该物品的曝光，用于点击归因
//   - {prefix}:click        Hash  clickID -> JSON
//   - {prefix}:click:ts     ZSet  clickID，score 为 ClickedAt 毫秒
//
// 一批曝光通过 MULTI/EXEC 事务写入。
type RedisFeedbackStore struct {
	client redis.UniversalClient
	prefix string
	// PairTTL 是 (user,item) 归因索引的过期时间，只需覆盖归因窗口
	PairTTL time.Duration
}

func NewRedisFeedbackStore(client redis.UniversalClient, prefix string) *RedisFeedbackStore {
	if prefix == "" {
		prefix = "fb"
	}
	return &RedisFeedbackStore{client: client, prefix: prefix, PairTTL: 24 * time.Hour}
}

func (r *RedisFeedbackStore) impHashKey() string     { return r.prefix + ":imp" }
func (r *RedisFeedbackStore) impTimelineKey() string { return r.prefix + ":imp:ts" }
func (r *RedisFeedbackStore) clickHashKey() string   { return r.prefix + ":click" }
func (r *RedisFeedbackStore) clickTimeline() string  { return r.prefix + ":click:ts" }

func (r *RedisFeedbackStore) pairKey(userID string, key core.ItemKey) string {
	return r.prefix + ":imp:" + userID + ":" + key.String()
}

func (r *RedisFeedbackStore) AppendImpressions(ctx context.Context, imps []core.Impression) error {
	if len(imps) == 0 {
		return nil
	}
	payloads := make([][]byte, len(imps))
	for i, imp := range imps {
		data, err := json.Marshal(imp)
		if err != nil {
			return fmt.Errorf("marshal impression: %w", err)
		}
		payloads[i] = data
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, imp := range imps {
			score := float64(imp.ShownAt.UnixMilli())
			pipe.HSet(ctx, r.impHashKey(), imp.ID, payloads[i])
			pipe.ZAdd(ctx, r.impTimelineKey(), redis.Z{Score: score, Member: imp.ID})
			pk := r.pairKey(imp.UserID, imp.Key)
			pipe.ZAdd(ctx, pk, redis.Z{Score: score, Member: imp.ID})
			if r.PairTTL > 0 {
				pipe.Expire(ctx, pk, r.PairTTL)
			}
		}
		return nil
	})
	return err
}

func (r *RedisFeedbackStore) LatestImpression(ctx context.Context, userID string, key core.ItemKey, since, until time.Time) (*core.Impression, error) {
	ids, err := r.client.ZRevRangeByScore(ctx, r.pairKey(userID, key), &redis.ZRangeBy{
		Min:   strconv.FormatInt(since.UnixMilli(), 10),
		Max:   strconv.FormatInt(until.UnixMilli(), 10),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	data, err := r.client.HGet(ctx, r.impHashKey(), ids[0]).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var imp core.Impression
	if err := json.Unmarshal(data, &imp); err != nil {
		return nil, fmt.Errorf("unmarshal impression: %w", err)
	}
	return &imp, nil
}

func (r *RedisFeedbackStore) AppendClick(ctx context.Context, click core.ClickEvent) error {
	data, err := json.Marshal(click)
	if err != nil {
		return fmt.Errorf("marshal click: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.clickHashKey(), click.ID, data)
		pipe.ZAdd(ctx, r.clickTimeline(), redis.Z{Score: float64(click.ClickedAt.UnixMilli()), Member: click.ID})
		return nil
	})
	return err
}

func (r *RedisFeedbackStore) ListImpressions(ctx context.Context, period core.Period) ([]core.Impression, error) {
	raws, err := r.rangeByTime(ctx, r.impTimelineKey(), r.impHashKey(), period)
	if err != nil {
		return nil, err
	}
	out := make([]core.Impression, 0, len(raws))
	for _, raw := range raws {
		var imp core.Impression
		if err := json.Unmarshal(raw, &imp); err != nil {
			continue
		}
		out = append(out, imp)
	}
	return out, nil
}

func (r *RedisFeedbackStore) ListClicks(ctx context.Context, period core.Period) ([]core.ClickEvent, error) {
	raws, err := r.rangeByTime(ctx, r.clickTimeline(), r.clickHashKey(), period)
	if err != nil {
		return nil, err
	}
	out := make([]core.ClickEvent, 0, len(raws))
	for _, raw := range raws {
		var c core.ClickEvent
		if err := json.Unmarshal(raw, &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// rangeByTime 读取 [From, To) 内的成员 ID，再批量取 JSON。
func (r *RedisFeedbackStore) rangeByTime(ctx context.Context, timeline, hash string, period core.Period) ([][]byte, error) {
	ids, err := r.client.ZRangeByScore(ctx, timeline, &redis.ZRangeBy{
		Min: strconv.FormatInt(period.From.UnixMilli(), 10),
		Max: "(" + strconv.FormatInt(period.To.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	vals, err := r.client.HMGet(ctx, hash, ids...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, []byte(s))
		}
	}
	return out, nil
}

var _ core.FeedbackStore = (*RedisFeedbackStore)(nil)
