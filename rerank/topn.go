package rerank

import (
	"context"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
)

// TopNNode 是 Top-N 截断节点，放在重排之后控制返回条数。
//
// 示例：
//
//	p := &pipeline.Pipeline{
//	    Nodes: []pipeline.Node{
//	        &filter.CatalogNode{...},
//	        rerank.NewContextBooster(nil),
//	        &rerank.TopNNode{N: 10},
//	    },
//	}
type TopNNode struct {
	// N <= 0 时不截断
	N int

	// FromRequest 为 true 时优先使用 rctx 中的请求条数
	FromRequest bool
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopNNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	recs []*core.Recommendation,
) ([]*core.Recommendation, error) {
	limit := n.N
	if n.FromRequest && rctx != nil && rctx.Limit > 0 {
		limit = rctx.Limit
	}
	if limit <= 0 || len(recs) <= limit {
		return recs, nil
	}
	return recs[:limit], nil
}
