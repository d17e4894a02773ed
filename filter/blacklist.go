package filter

import (
	"context"

	"github.com/rushteam/hybridrec/core"
)

// BlacklistFilter 过滤运营配置的下架物品，key 形如 "recipe:12"。
type BlacklistFilter struct {
	keys map[string]struct{}
}

// NewBlacklistFilter 创建一个黑名单过滤器。
func NewBlacklistFilter(keys []string) *BlacklistFilter {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return &BlacklistFilter{keys: m}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

func (f *BlacklistFilter) ShouldFilter(_ context.Context, _ *core.RecommendContext, rec *core.Recommendation) (bool, error) {
	if rec == nil {
		return true, nil
	}
	_, ok := f.keys[rec.Key.String()]
	return ok, nil
}
