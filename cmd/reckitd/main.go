// reckitd 是推荐引擎进程：HTTP 接口 + 周期性模型重训，由 suture 统一监管。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/rushteam/hybridrec/config"
	"github.com/rushteam/hybridrec/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (overrides RECKIT_CONFIG)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "reckitd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sup := suture.New("reckitd", suture.Spec{
		EventHook: eventHook(logger),
	})
	sup.Add(a.http)
	sup.Add(a.refitter)

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Bool("redis", cfg.Redis.Enabled).
		Bool("feast", cfg.Feast.Enabled).
		Msg("reckitd starting")

	if err := sup.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	logger.Info().Msg("reckitd stopped")
	return nil
}

// eventHook 把 suture 事件写入日志。
func eventHook(logger zerolog.Logger) suture.EventHook {
	l := logging.Component(logger, "supervisor")
	return func(e suture.Event) {
		l.Warn().Fields(e.Map()).Msg(e.String())
	}
}
