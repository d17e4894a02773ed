package recall

import (
	"context"
	"sort"

	"github.com/rushteam/hybridrec/core"
)

// Generator 是一个召回源（个性化 / 上下文 / 学习型）。
// 可以把它理解为"可并发 fan-out 的策略单元"。
//
// 约定：
//   - 输出不超过 limit 条，同一 key 只出现一次
//   - 按 RawScore 降序，同分按 ItemType、ItemID 升序
//   - limit <= 0 返回空；候选不足时不补齐
//   - 内部错误自行吸收，返回空列表
type Generator interface {
	Name() core.Algorithm
	Generate(ctx context.Context, rctx *core.RecommendContext, limit int) []core.Candidate
}

// SortCandidates 按召回源约定的顺序原地排序。
func SortCandidates(cs []core.Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].RawScore != cs[j].RawScore {
			return cs[i].RawScore > cs[j].RawScore
		}
		return cs[i].Key.Less(cs[j].Key)
	})
}

// finalize 排序并截断到 limit。
func finalize(cs []core.Candidate, limit int) []core.Candidate {
	if limit <= 0 || len(cs) == 0 {
		return []core.Candidate{}
	}
	SortCandidates(cs)
	if len(cs) > limit {
		cs = cs[:limit]
	}
	return cs
}
