package filter

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
)

// DefaultUserBlockPrefix 是用户屏蔽列表的默认 key 前缀，实际 key 为 {prefix}:{userID}。
const DefaultUserBlockPrefix = "user:block"

// UserBlockFilter 过滤用户主动屏蔽的物品。
//
// 屏蔽列表以 JSON 字符串数组存放在 core.Store 中，元素形如 "recipe:12"：
//
//	SET user:block:u1 '["recipe:12","phone:3"]'
type UserBlockFilter struct {
	Store core.Store

	// KeyPrefix 为空时使用 DefaultUserBlockPrefix
	KeyPrefix string
}

// NewUserBlockFilter 创建一个用户屏蔽过滤器。
func NewUserBlockFilter(s core.Store, keyPrefix string) *UserBlockFilter {
	if keyPrefix == "" {
		keyPrefix = DefaultUserBlockPrefix
	}
	return &UserBlockFilter{Store: s, KeyPrefix: keyPrefix}
}

func (f *UserBlockFilter) Name() string {
	return "filter.user_block"
}

// ShouldFilter 读取失败时返回错误，由 FilterNode 记录并保留该结果。
func (f *UserBlockFilter) ShouldFilter(ctx context.Context, rctx *core.RecommendContext, rec *core.Recommendation) (bool, error) {
	if rec == nil || rctx == nil || rctx.UserID == "" || f.Store == nil {
		return false, nil
	}
	blocked, err := f.blocked(ctx, rctx.UserID)
	if err != nil {
		return false, err
	}
	_, ok := blocked[rec.Key.String()]
	return ok, nil
}

// ForRequest 一次读出屏蔽列表，本次请求内不再访问存储。
func (f *UserBlockFilter) ForRequest(ctx context.Context, rctx *core.RecommendContext) (Filter, error) {
	if rctx == nil || rctx.UserID == "" || f.Store == nil {
		return NewBlacklistFilter(nil), nil
	}
	keys, err := f.keys(ctx, rctx.UserID)
	if err != nil {
		return nil, err
	}
	return NewBlacklistFilter(keys), nil
}

func (f *UserBlockFilter) blocked(ctx context.Context, userID string) (map[string]struct{}, error) {
	keys, err := f.keys(ctx, userID)
	if err != nil {
		return nil, err
	}
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m, nil
}

// keys 不存在的 key 视为空列表。
func (f *UserBlockFilter) keys(ctx context.Context, userID string) ([]string, error) {
	data, err := f.Store.Get(ctx, f.KeyPrefix+":"+userID)
	if errors.Is(err, core.ErrStoreNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("decode user blocks: %w", err)
	}
	return keys, nil
}
