package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/dshills/loopgraph/config"
	"github.com/dshills/loopgraph/graph"
	"github.com/dshills/loopgraph/graph/emit"
	"github.com/dshills/loopgraph/graph/model"
	"github.com/dshills/loopgraph/graph/model/anthropic"
	"github.com/dshills/loopgraph/graph/model/google"
	"github.com/dshills/loopgraph/graph/model/openai"
	"github.com/dshills/loopgraph/graph/store"
)

// chatModel returns the configured provider's chat model, metered into
// a.costs.
func (a *app) chatModel() (model.ChatModel, error) {
	m, err := newChatModel(a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	name := a.cfg.LLM.Provider
	if named, ok := m.(interface{ Model() string }); ok {
		name = named.Model()
	}
	return model.Metered(m, name, a.costs), nil
}

// newChatModel returns the configured provider's chat model.
func newChatModel(c config.LLM) (model.ChatModel, error) {
	switch c.Provider {
	case "", "mock":
		return offlineModel(), nil
	case "anthropic":
		return anthropic.NewChatModel(c.APIKey, c.Model), nil
	case "openai":
		return openai.NewChatModel(c.APIKey, c.Model, c.BaseURL), nil
	case "google":
		return google.NewChatModel(c.APIKey, c.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
}

// offlineModel answers without network access so workflows can be tried
// end to end: critics approve, supervisors delegate straight to synthesis.
func offlineModel() model.ChatModel {
	return &model.MockChatModel{Handler: func(msgs []model.Message) (model.ChatOut, error) {
		system, conv := model.SplitSystem(msgs)
		last := ""
		if len(conv) > 0 {
			last = conv[len(conv)-1].Content
		}
		switch {
		case strings.Contains(last, `"score"`):
			return model.ChatOut{Text: `{"score": 8, "explanation": "offline review", "needs_refinement": false}`}, nil
		case strings.Contains(system, "Supervisor Agent"):
			return model.ChatOut{Text: "synthesizer"}, nil
		default:
			return model.ChatOut{Text: "[offline] " + firstLine(last)}, nil
		}
	}}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// openStore opens the configured checkpoint store. The returned close
// function is never nil.
func openStore(ctx context.Context, c config.Store) (store.Store[graph.State], func() error, error) {
	noop := func() error { return nil }
	opts := []store.Option[graph.State]{
		store.WithPrefix[graph.State](c.Prefix),
		store.WithTTL[graph.State](c.TTL.Std()),
	}

	switch c.Driver {
	case "", "memory":
		return store.NewMemStore(opts...), noop, nil
	case "sqlite":
		st, err := store.NewSQLiteStore(c.DSN, opts...)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	case "mysql":
		st, err := store.NewMySQLStore(ctx, c.DSN, opts...)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	case "redis":
		redisOpts, err := redis.ParseURL(c.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("invalid redis dsn: %w", err)
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("failed to connect to redis: %w", err)
		}
		st := store.NewRedisStoreFromClient(client, opts...)
		return st, st.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", c.Driver)
	}
}

// runner is an engine wired to the configured store, logger, metrics and
// tracing.
type runner struct {
	engine *graph.Engine
	close  func() error
}

func (a *app) newRunner(ctx context.Context) (*runner, error) {
	st, closeStore, err := openStore(ctx, a.cfg.Store)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := graph.NewPrometheusMetrics(registry)
	stopMetrics := a.serveMetrics(registry)

	emitter := emit.NewMultiEmitter(
		emit.NewSlogEmitter(a.logger.With("component", "events")),
		emit.NewOTelEmitter(otel.Tracer("github.com/dshills/loopgraph")),
	)

	engine := graph.New(
		graph.WithStore(st),
		graph.WithEmitter(emitter),
		graph.WithMetrics(metrics),
		graph.WithLogger(a.logger),
		graph.WithMaxSteps(a.cfg.Engine.MaxSteps),
		graph.WithRunDeadline(a.cfg.Engine.Deadline.Std()),
	)
	return &runner{
		engine: engine,
		close: func() error {
			return errors.Join(stopMetrics(), closeStore())
		},
	}, nil
}

// serveMetrics exposes registry on cfg.Metrics.Addr until the returned
// function is called. It does nothing when no address is configured.
func (a *app) serveMetrics(registry *prometheus.Registry) func() error {
	if a.cfg.Metrics.Addr == "" {
		return func() error { return nil }
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "addr", a.cfg.Metrics.Addr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", a.cfg.Metrics.Addr)
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
