// Package filter 剔除不能返回给调用方的推荐结果。
package filter

import (
	"context"

	"github.com/rushteam/hybridrec/core"
)

// Filter 判断一条结果是否应该被过滤掉。
// 返回 true 表示应该过滤（移除），false 表示保留。
type Filter interface {
	// Name 返回过滤器名称
	Name() string

	// ShouldFilter 判断 rec 是否应该被过滤
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, rec *core.Recommendation) (bool, error)
}

// RequestScoped 由需要按请求加载数据的过滤器实现，FilterNode 在处理前调用一次。
type RequestScoped interface {
	ForRequest(ctx context.Context, rctx *core.RecommendContext) (Filter, error)
}
