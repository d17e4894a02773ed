package recall

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
)

// Fanout 并发执行多个召回源，等待全部结束后按配置顺序返回各自的列表。
// 单个召回源超时或 panic 只影响它自己的列表（为空），不中断其他召回源。
type Fanout struct {
	Generators    []Generator
	Timeout       time.Duration // 每个召回源的超时时间，0 不限制
	MaxConcurrent int           // 最大并发数（0 表示无限制）
	Logger        zerolog.Logger
}

// Run 返回 len(Generators) 个列表，第 i 个对应 Generators[i]。
// 没有配置任何召回源时返回 core.ErrNoGenerators。
func (n *Fanout) Run(ctx context.Context, rctx *core.RecommendContext, limit int) ([][]core.Candidate, error) {
	if len(n.Generators) == 0 {
		return nil, core.ErrNoGenerators
	}
	out := make([][]core.Candidate, len(n.Generators))

	eg, egCtx := errgroup.WithContext(ctx)
	if n.MaxConcurrent > 0 {
		eg.SetLimit(n.MaxConcurrent)
	}
	for i, g := range n.Generators {
		i, g := i, g
		eg.Go(func() error {
			cs := n.runOne(egCtx, g, rctx, limit)
			metrics.GeneratorCandidates.WithLabelValues(string(g.Name())).Add(float64(len(cs)))
			// 每个 goroutine 只写自己的下标
			out[i] = cs
			return nil
		})
	}
	_ = eg.Wait()

	for i := range out {
		if out[i] == nil {
			out[i] = []core.Candidate{}
		}
	}
	return out, nil
}

func (n *Fanout) runOne(ctx context.Context, g Generator, rctx *core.RecommendContext, limit int) []core.Candidate {
	genCtx := ctx
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}

	done := make(chan []core.Candidate, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				n.Logger.Error().
					Str("generator", string(g.Name())).
					Str("panic", fmt.Sprint(r)).
					Msg("generator panicked")
				done <- nil
			}
		}()
		done <- g.Generate(genCtx, rctx, limit)
	}()

	select {
	case cs := <-done:
		return cs
	case <-genCtx.Done():
		n.Logger.Warn().
			Str("generator", string(g.Name())).
			Err(genCtx.Err()).
			Msg("generator timed out")
		return nil
	}
}
