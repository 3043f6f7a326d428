package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saxsflow/saxsflow/core"
	"github.com/saxsflow/saxsflow/internal/dataset"
	"github.com/saxsflow/saxsflow/internal/httpapi"
	"github.com/saxsflow/saxsflow/internal/live"
	"github.com/saxsflow/saxsflow/internal/sink"
	"github.com/saxsflow/saxsflow/stages"
)

func main() {
	f := core.NewFlagSet("saxsflow")
	cfg, err := core.ParseRunConfig(f, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if err := core.ParseLogLevel(cfg.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("invalid --log level")
	}

	registry := stages.NewDefaultRegistry(cfg.FindPeak, cfg.ProcessPeak)
	rt := core.NewRuntime(registry, cfg.RuntimeConfig)

	if len(cfg.Checkpoints) > 0 {
		rt.SetCheckpoints(cfg.Checkpoints)
	}

	policy, err := core.BuildInsertionPolicy(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid --policy")
	}
	rt.SetInsertionPolicy(policy)

	if cfg.DatasetPath != "" {
		samples, malformed, err := dataset.Load(cfg.DatasetPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DatasetPath).Msg("loading dataset")
		}
		for _, m := range malformed {
			log.Warn().Str("path", m.Path).Int("index", m.Index).Err(m.Err).Msg("skipping malformed record")
		}
		rt.AddSamples(samples)
		log.Info().Int("loaded", len(samples)).Int("malformed", len(malformed)).Msg("dataset loaded")
	}

	if cfg.MetricsAddr != "" {
		router := httpapi.NewRouter(rt, log.Logger)
		go func() {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("control-plane API listening")
			if err := http.ListenAndServe(cfg.MetricsAddr, router); err != nil {
				log.Error().Err(err).Msg("control-plane API stopped")
			}
		}()
	}

	if cfg.LiveAddr != "" {
		feed := live.NewFeed(rt, log.Logger)
		mux := http.NewServeMux()
		mux.Handle("/live", feed)
		go func() {
			log.Info().Str("addr", cfg.LiveAddr).Msg("live feed listening")
			if err := http.ListenAndServe(cfg.LiveAddr, mux); err != nil {
				log.Error().Err(err).Msg("live feed stopped")
			}
		}()
	}

	if len(cfg.KafkaBrokers) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		kafkaSink, err := sink.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, log.Logger)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("creating kafka sink")
		}
		defer kafkaSink.Close()
		rt.AttachSink(kafkaSink)
	}

	if err := rt.RunSync(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log.Info().Int("completed", rt.CompletedCount()).Msg("run finished")
}
