package filter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
)

// FilterNode 组合多个过滤器，任何一个返回 true 该结果就会被过滤掉。
type FilterNode struct {
	Filters []Filter
	Logger  zerolog.Logger
}

func (n *FilterNode) Name() string {
	return "filter.node"
}

func (n *FilterNode) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	recs []*core.Recommendation,
) ([]*core.Recommendation, error) {
	if len(n.Filters) == 0 || len(recs) == 0 {
		return recs, nil
	}

	filters := make([]Filter, 0, len(n.Filters))
	for _, f := range n.Filters {
		rs, ok := f.(RequestScoped)
		if !ok {
			filters = append(filters, f)
			continue
		}
		scoped, err := rs.ForRequest(ctx, rctx)
		if err != nil {
			// 加载失败的过滤器本次不生效
			n.Logger.Warn().Err(err).Str("filter", f.Name()).Msg("filter unavailable")
			continue
		}
		filters = append(filters, scoped)
	}

	out := make([]*core.Recommendation, 0, len(recs))
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		filtered := false
		for _, f := range filters {
			ok, err := f.ShouldFilter(ctx, rctx, rec)
			if err != nil {
				// 过滤器错误时记录但不中断流程
				n.Logger.Debug().Err(err).Str("filter", f.Name()).Msg("filter failed")
				continue
			}
			if ok {
				filtered = true
				break
			}
		}
		if !filtered {
			out = append(out, rec)
		}
	}
	return out, nil
}
