package filter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pipeline"
)

// CatalogNode 从目录补全展示摘要。
// 物品不存在（已删除/下架）或查询失败时，该结果被静默丢弃并计数，不向调用方报错。
type CatalogNode struct {
	Catalog core.CatalogStore
	Logger  zerolog.Logger
}

func (n *CatalogNode) Name() string        { return "filter.catalog" }
func (n *CatalogNode) Kind() pipeline.Kind { return pipeline.KindFilter }

func (n *CatalogNode) Process(
	ctx context.Context,
	_ *core.RecommendContext,
	recs []*core.Recommendation,
) ([]*core.Recommendation, error) {
	if n.Catalog == nil {
		return recs, nil
	}
	out := make([]*core.Recommendation, 0, len(recs))
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		summary, err := n.Catalog.GetItemSummary(ctx, rec.Key)
		if err != nil {
			metrics.CatalogDrops.Inc()
			ev := n.Logger.Debug()
			if !core.IsNotFound(err) {
				ev = n.Logger.Warn()
			}
			ev.Err(err).Str("item", rec.Key.String()).Msg("dropping recommendation without catalog entry")
			continue
		}
		rec.Summary = summary
		out = append(out, rec)
	}
	return out, nil
}
