package pipeline

import (
	"context"

	"github.com/rushteam/hybridrec/core"
)

// Kind 用于标记 Node 类型，方便观测/编排（例如按阶段打点）。
type Kind string

const (
	KindFilter      Kind = "filter"      // 过滤阶段：剔除不可用的结果
	KindReRank      Kind = "rerank"      // 重排阶段：上下文调权、截断
	KindPostProcess Kind = "postprocess" // 后处理阶段：补充特征或最终结果修饰
)

// Node 是融合之后的最小可扩展单元。
// 统一采用"输入 recs -> 输出 recs"的形态，方便过滤、重排、截断等操作。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RecommendContext,
		recs []*core.Recommendation,
	) ([]*core.Recommendation, error)
}
