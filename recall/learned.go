package recall

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/model"
	"github.com/rushteam/hybridrec/pkg/dsl"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/signal"
)

// Learned 是学习型召回（对外模式名 ml）：对全部类别的物品用逻辑回归快照打分。
//
// 快照缺失或过期时使用 model.NeutralSnapshot，并记录告警与指标。
// 置信度：中性权重固定 0.4；否则 0.4 + 0.5*|2p-1|，上限 0.9。
type Learned struct {
	Catalog  core.CatalogStore
	Holder   *model.Holder
	Rules    *dsl.RuleSet // 用于 ctx_match 特征
	HalfLife time.Duration
	Logger   zerolog.Logger
}

func NewLearned(catalog core.CatalogStore, holder *model.Holder, rules *dsl.RuleSet, logger zerolog.Logger) *Learned {
	if rules == nil {
		rules = dsl.MustCompile(DefaultContextRules())
	}
	return &Learned{
		Catalog:  catalog,
		Holder:   holder,
		Rules:    rules,
		HalfLife: signal.DefaultConfig().HalfLife,
		Logger:   logging.Component(logger, "recall.learned"),
	}
}

func (r *Learned) Name() core.Algorithm { return core.AlgorithmML }

// featureSpace 是一次请求内计算特征所需的共享状态。
type featureSpace struct {
	rctx    *core.RecommendContext
	aff     affinity
	matched map[core.ItemType]bool
}

func (r *Learned) newFeatureSpace(rctx *core.RecommendContext, pools map[core.ItemType][]core.ItemSummary) featureSpace {
	fs := featureSpace{
		rctx:    rctx,
		aff:     buildAffinity(rctx.Profile, pools),
		matched: make(map[core.ItemType]bool),
	}
	for _, rule := range r.Rules.Match(rctx.Context) {
		fs.matched[rule.ItemType] = true
	}
	return fs
}

func (r *Learned) features(fs featureSpace, s core.ItemSummary) map[string]float64 {
	t := s.Key().Type
	profile := fs.rctx.Profile
	f := map[string]float64{
		model.FeaturePopularity:     clamp01(s.Base().Popularity),
		model.FeatureAttrSimilarity: fs.aff.similarity(s),
		model.FeatureCategoryShare:  profile.CategoryShare(t),
	}
	if fs.matched[t] {
		f[model.FeatureContextMatch] = 1
	}
	if fs.rctx.Context.IsWeekend() {
		f[model.FeatureWeekend] = 1
	}
	if profile != nil {
		if sv, ok := profile.Signals[t]; ok {
			f[model.FeatureCategoryCount] = math.Log1p(float64(sv.InteractionCount))
			f[model.FeatureCategoryRecency] = signal.Decay(fs.rctx.Context.Now.Sub(sv.LastInteractionAt), r.HalfLife)
		}
	}
	for k, v := range fs.rctx.UserFeatures {
		f[model.FeastPrefix+k] = v
	}
	return f
}

// snapshot 取本次请求的快照，回退时打告警。
func (r *Learned) snapshot(now time.Time) *model.Snapshot {
	if r.Holder == nil {
		metrics.ModelFallbacks.WithLabelValues(string(model.FallbackMissing)).Inc()
		return model.NeutralSnapshot()
	}
	snap, reason := r.Holder.Resolve(now)
	if reason != model.FallbackNone {
		metrics.ModelFallbacks.WithLabelValues(string(reason)).Inc()
		r.Logger.Warn().Str("reason", string(reason)).Msg("learned model unavailable, using neutral weights")
	}
	return snap
}

func confidenceFor(snap *model.Snapshot, p float64) float64 {
	if snap.IsNeutral() {
		return 0.4
	}
	return math.Min(0.9, 0.4+0.5*math.Abs(p-0.5)*2)
}

func (r *Learned) Generate(ctx context.Context, rctx *core.RecommendContext, limit int) []core.Candidate {
	if limit <= 0 || rctx == nil {
		return []core.Candidate{}
	}
	snap := r.snapshot(rctx.Context.Now)
	pools := loadPools(ctx, r.Catalog, core.AllItemTypes(), r.Logger)
	fs := r.newFeatureSpace(rctx, pools)

	var out []core.Candidate
	for _, t := range core.AllItemTypes() {
		for _, s := range pools[t] {
			key := s.Key()
			if rctx.Profile != nil {
				if it, ok := rctx.Profile.Items[key]; ok && it.Strong {
					continue
				}
			}
			f := r.features(fs, s)
			p := snap.Probability(f)
			reasons := []string{"Seleccionado para ti por nuestro modelo"}
			if f[model.FeatureContextMatch] > 0 {
				reasons = append(reasons, "Encaja con este momento del día")
			}
			out = append(out, core.Candidate{
				Key:        key,
				RawScore:   100 * p,
				Confidence: confidenceFor(snap, p),
				Reasons:    reasons,
				Source:     core.AlgorithmML,
				Features:   f,
			})
		}
	}
	return finalize(out, limit)
}

// Annotate 为已带目录摘要的推荐结果补齐特征（曝光时记录，用于重训）。
func (r *Learned) Annotate(ctx context.Context, rctx *core.RecommendContext, recs []*core.Recommendation) {
	if rctx == nil || len(recs) == 0 {
		return
	}
	pools := make(map[core.ItemType][]core.ItemSummary)
	if rctx.Profile != nil {
		pools = loadPools(ctx, r.Catalog, rctx.Profile.RankedTypes(), r.Logger)
	}
	fs := r.newFeatureSpace(rctx, pools)
	for _, rec := range recs {
		if rec.Summary == nil {
			continue
		}
		f := r.features(fs, rec.Summary)
		for k, v := range rec.Features {
			if _, ok := f[k]; !ok {
				f[k] = v
			}
		}
		rec.Features = f
	}
}
