package rerank

import (
	"context"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
)

// Diversity 限制同一类别的条数：按当前顺序保留每个类别的前 MaxPerType 条，其余丢弃。
// 放在 Booster 之后、TopN 之前，融合阶段的多取量足够补齐被丢弃的位置。
type Diversity struct {
	// MaxPerType <= 0 时不生效
	MaxPerType int
}

func (n *Diversity) Name() string {
	return "rerank.diversity"
}

func (n *Diversity) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *Diversity) Process(
	_ context.Context,
	_ *core.RecommendContext,
	recs []*core.Recommendation,
) ([]*core.Recommendation, error) {
	if n.MaxPerType <= 0 || len(recs) == 0 {
		return recs, nil
	}

	seen := make(map[core.ItemType]int, len(core.AllItemTypes()))
	out := make([]*core.Recommendation, 0, len(recs))
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		if seen[rec.Key.Type] >= n.MaxPerType {
			continue
		}
		seen[rec.Key.Type]++
		out = append(out, rec)
	}
	return out, nil
}
