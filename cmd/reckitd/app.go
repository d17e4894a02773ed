package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/config"
	"github.com/rushteam/hybridrec/config/builders"
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/evaluate"
	"github.com/rushteam/hybridrec/feast"
	"github.com/rushteam/hybridrec/feedback"
	"github.com/rushteam/hybridrec/model"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/pkg/dsl"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/rank"
	"github.com/rushteam/hybridrec/recall"
	"github.com/rushteam/hybridrec/server"
	"github.com/rushteam/hybridrec/service"
	"github.com/rushteam/hybridrec/signal"
	"github.com/rushteam/hybridrec/store"
)

// app 持有进程内组件与需要关闭的资源。
type app struct {
	http     *server.HTTPService
	handler  http.Handler
	refitter *model.Refitter
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// stores 是按配置选择的存储后端。
type stores struct {
	kv           core.Store
	feedback     core.FeedbackStore
	interactions core.InteractionStore
}

func openStores(ctx context.Context, cfg config.RedisConfig, a *app) (stores, error) {
	if !cfg.Enabled {
		kv := store.NewMemoryStore()
		a.closers = append(a.closers, kv.Close)
		return stores{
			kv:           kv,
			feedback:     store.NewMemoryFeedbackStore(),
			interactions: store.NewMemoryInteractionStore(),
		}, nil
	}
	client, err := store.NewRedisClient(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return stores{}, err
	}
	a.closers = append(a.closers, client.Close)
	return stores{
		kv:           store.NewRedisStore(client),
		feedback:     store.NewRedisFeedbackStore(client, cfg.Prefix+":feedback"),
		interactions: store.NewRedisInteractionStore(client, cfg.Prefix+":events"),
	}, nil
}

func build(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (*app, error) {
	a := &app{}

	st, err := openStores(ctx, cfg.Redis, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	catalog := store.NewMemoryCatalog()
	if cfg.Engine.CatalogFile != "" {
		if catalog, err = store.LoadCatalogFile(cfg.Engine.CatalogFile); err != nil {
			a.Close()
			return nil, err
		}
	} else {
		logger.Warn().Msg("no catalog file configured, recommendations will be empty")
	}

	var contextRules *dsl.RuleSet
	if cfg.Engine.ContextRulesFile != "" {
		rules, err := dsl.LoadRules(cfg.Engine.ContextRulesFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("context rules: %w", err)
		}
		if contextRules, err = dsl.Compile(rules); err != nil {
			a.Close()
			return nil, fmt.Errorf("context rules: %w", err)
		}
	}

	signalCfg := signal.DefaultConfig()
	signalCfg.HalfLife = cfg.Signal.HalfLife
	signalCfg.ReadTimeout = cfg.Signal.ReadTimeout
	signalCfg.CacheTTL = cfg.Signal.CacheTTL
	aggregator := signal.NewAggregator(st.interactions, signalCfg, logger, signal.WithCache(st.kv))

	holder := model.NewHolder(cfg.Model.MaxAge)
	learned := recall.NewLearned(catalog, holder, contextRules, logger)
	learned.HalfLife = cfg.Signal.HalfLife

	tracker := feedback.NewTracker(st.feedback, cfg.Feedback.AttributionWindow, logger)

	pl, err := buildPipeline(cfg.Engine.PipelineFile, catalog, st.kv, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var features service.UserFeatureSource
	if cfg.Feast.Enabled {
		client, err := feast.NewGrpcClient(cfg.Feast.Host, cfg.Feast.Port, cfg.Feast.Project, cfg.Feast.Token)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		features = feast.NewUserFeatureSource(client, cfg.Feast.Project, cfg.Feast.Entity, cfg.Feast.Features, cfg.Feast.Timeout)
	}

	engine := service.New(service.Options{
		Aggregator: aggregator,
		Window:     core.Window{Count: cfg.Signal.WindowEvents, Span: cfg.Signal.WindowSpan},
		Features:   features,
		Generators: []recall.Generator{
			recall.NewPersonalized(catalog, logger),
			recall.NewContextual(catalog, contextRules, logger),
			learned,
		},
		GeneratorTimeout: cfg.Engine.GeneratorTimeout,
		Combiner:         rank.NewCombiner(trustWeights(cfg.Engine.TrustWeights)),
		Pipeline:         pl,
		Catalog:          catalog,
		Tracker:          tracker,
		Analyzer:         evaluate.NewAnalyzer(st.feedback, st.interactions, logger),
		Limits: service.Limits{
			Default:   cfg.Engine.DefaultLimit,
			Max:       cfg.Engine.MaxLimit,
			Overfetch: cfg.Engine.Overfetch,
		},
		Logger: logger,
	})

	trainer := model.DefaultTrainer()
	trainer.MinExamples = cfg.Model.MinExamples
	a.refitter = &model.Refitter{
		Feedback:  st.feedback,
		Holder:    holder,
		Snapshots: model.NewSnapshotStore(st.kv),
		Trainer:   trainer,
		Interval:  cfg.Model.RefitInterval,
		Lookback:  cfg.Model.Lookback,
		Logger:    logging.Component(logger, "model.refit"),
	}

	a.handler = server.New(engine, logger).Routes()
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	a.http = server.NewHTTPService(srv, cfg.Server.ShutdownTimeout)
	return a, nil
}

// buildPipeline path 为空时使用内置流水线，否则按 YAML/JSON 配置构建。
func buildPipeline(path string, catalog core.CatalogStore, kv core.Store, logger zerolog.Logger) (*pipeline.Pipeline, error) {
	if path == "" {
		return service.DefaultPipeline(catalog, logger), nil
	}
	builders.RegisterCatalog(catalog, logging.Component(logger, "filter.catalog"))
	builders.RegisterStore(kv, logging.Component(logger, "filter"))
	pc, err := pipeline.Load(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if err := config.ValidatePipelineConfig(pc); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p, err := pc.BuildPipeline(config.DefaultFactory())
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return p, nil
}

// trustWeights 配置只覆盖给出的算法，其余沿用默认信任权重。
func trustWeights(overrides map[string]float64) map[core.Algorithm]float64 {
	w := rank.DefaultTrustWeights()
	for name, v := range overrides {
		w[core.Algorithm(name)] = v
	}
	return w
}
