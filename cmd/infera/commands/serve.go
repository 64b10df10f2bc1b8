package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/centsible/infera/internal/assess"
	"github.com/centsible/infera/internal/backend"
	openaibackend "github.com/centsible/infera/internal/backend/openai"
	"github.com/centsible/infera/internal/config"
	"github.com/centsible/infera/internal/logger"
	"github.com/centsible/infera/internal/monitor"
	"github.com/centsible/infera/internal/router"
	"github.com/centsible/infera/internal/task"
	"github.com/centsible/infera/internal/telemetry"
)

// NewServeCommand runs the routing and telemetry server.
func NewServeCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the routing and telemetry server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*cfgPath)
		},
	}
}

func runServe(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Initialize(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	monitorOpts := []monitor.Option{
		monitor.WithLogger(log),
		monitor.WithQueueSize(cfg.Telemetry.QueueSize),
		monitor.WithWindowSize(cfg.Telemetry.WindowSize),
	}
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Warn("redis unreachable, running without shared telemetry", zap.Error(err))
		} else {
			monitorOpts = append(monitorOpts, monitor.WithSink(monitor.NewRedisSink(client)))
			log.Info("shared telemetry enabled", zap.String("redis", cfg.Redis.URL))
		}
	}
	mon := monitor.New(monitorOpts...)
	defer mon.Close()

	rt, strategy, err := buildRouter(cfg, mon, log)
	if err != nil {
		return err
	}

	ts := telemetry.NewServer(log, mon, cfg.CORS, cfg.Telemetry.StreamInterval)

	mux := chi.NewRouter()
	mux.Mount("/", ts.Handler())
	mux.Post("/v1/route", routeHandler(rt, strategy, log))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("strategy", strategy.String()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildRouter wires a string-typed router: the bundled OpenAI-compatible
// backend on the remote side and a trivial echo backend on the local side.
// Real deployments embed the library and supply their own local model.
func buildRouter(cfg *config.Config, mon *monitor.Monitor, log *zap.Logger) (*router.Router[string], router.Strategy, error) {
	strategy, err := router.ParseStrategy(cfg.Router.Strategy)
	if err != nil {
		return nil, "", err
	}

	local := backend.NewFunc(backend.KindLocal, "echo",
		func(ctx context.Context, t *task.Descriptor) (*backend.Result[string], error) {
			// Stand-in for an on-device model: cheap, instant, and honest
			// about how little it knows.
			return &backend.Result[string]{
				Data:       strings.ToUpper(string(t.Payload)),
				Confidence: 0.5,
			}, nil
		})

	var remote backend.Backend[string] = openaibackend.New(openaibackend.Config{
		APIKey:  cfg.Remote.APIKey,
		BaseURL: cfg.Remote.BaseURL,
		Model:   cfg.Remote.Model,
		Timeout: cfg.Remote.Timeout,
	})
	if cfg.Remote.MaxRetries > 1 {
		remote = backend.NewRetried(remote, backend.RetryConfig{MaxAttempts: cfg.Remote.MaxRetries})
	}
	if cfg.Remote.BreakerThreshold > 0 {
		remote = backend.NewBreaker(remote, cfg.Remote.BreakerThreshold, cfg.Remote.BreakerCooldown)
	}
	if cfg.Remote.RequestsPerSecond > 0 {
		remote = backend.NewThrottled(remote, cfg.Remote.RequestsPerSecond, cfg.Remote.Burst)
	}

	opts := []router.Option[string]{
		router.WithMonitor[string](mon),
		router.WithLogger[string](log),
		router.WithConfidenceThreshold[string](cfg.Router.ConfidenceThreshold),
	}
	if cfg.Router.UseMonitorCapability {
		opts = append(opts, router.WithCapabilityEstimator[string](&assess.MonitorCapability{Monitor: mon}))
	} else {
		opts = append(opts, router.WithCapabilityEstimator[string](assess.StaticCapability(cfg.Router.StaticCapability)))
	}

	return router.New(local, remote, opts...), strategy, nil
}

type routeRequest struct {
	Payload  string `json:"payload"`
	Strategy string `json:"strategy,omitempty"`
	Deadline string `json:"deadline,omitempty"`
}

type routeResponse struct {
	Data           string  `json:"data"`
	Source         string  `json:"source"`
	Confidence     float64 `json:"confidence"`
	ProcessingTime string  `json:"processing_time"`
	FallbackUsed   bool    `json:"fallback_used"`
}

func routeHandler(rt *router.Router[string], defaultStrategy router.Strategy, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req routeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		strategy := defaultStrategy
		if req.Strategy != "" {
			strategy, err = router.ParseStrategy(req.Strategy)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		var taskOpts []task.Option
		if req.Deadline != "" {
			d, err := time.ParseDuration(req.Deadline)
			if err != nil {
				http.Error(w, "invalid deadline", http.StatusBadRequest)
				return
			}
			taskOpts = append(taskOpts, task.WithDeadline(d))
		}

		t, err := task.New([]byte(req.Payload), taskOpts...)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		res, err := rt.Route(r.Context(), t, strategy)
		if err != nil {
			log.Warn("route failed",
				zap.String("task_id", t.ID),
				zap.String("strategy", strategy.String()),
				zap.Error(err))
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(routeResponse{
			Data:           res.Data,
			Source:         string(res.Source),
			Confidence:     res.Confidence,
			ProcessingTime: res.ProcessingTime.String(),
			FallbackUsed:   res.FallbackUsed,
		})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, router.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, router.ErrCancelled):
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}
