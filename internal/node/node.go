// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/blinklabs-io/almoner"
	"github.com/blinklabs-io/almoner/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Addrs are the addresses the node listeners are bound to
type Addrs struct {
	Metrics  net.Addr
	Realtime net.Addr
}

// Run starts the engine with the metrics and real-time listeners and blocks
// until SIGINT or SIGTERM
func Run(cfg *config.Config, logger *slog.Logger) error {
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()
	return run(
		signalCtx,
		cfg,
		logger,
		prometheus.DefaultRegisterer,
		promhttp.Handler(),
		nil,
	)
}

// NewEngine builds an engine from the loaded config. Extra options are
// applied after the config derived ones.
func NewEngine(
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
	extra ...almoner.ConfigOptionFunc,
) (*almoner.Engine, error) {
	opts := []almoner.ConfigOptionFunc{
		almoner.WithLogger(logger),
		almoner.WithPrometheusRegistry(promRegistry),
		almoner.WithDatabasePath(cfg.DatabasePath),
		almoner.WithBlobPlugin(cfg.BlobPlugin),
		almoner.WithMetadataPlugin(cfg.MetadataPlugin),
		almoner.WithDatabaseDsn(cfg.DatabaseDsn),
		almoner.WithLedgerRpcUrl(cfg.LedgerRpcUrl),
		almoner.WithContractAddress(cfg.ContractAddress),
		almoner.WithLedgerTimeout(cfg.LedgerTimeout),
		almoner.WithLedgerMaxAttempts(cfg.LedgerMaxAttempts),
		almoner.WithConfirmations(cfg.Confirmations),
		almoner.WithPollInterval(cfg.PollInterval),
		almoner.WithStartBlock(cfg.StartBlock),
		almoner.WithOperators(cfg.Operators...),
		almoner.WithRunMode(string(cfg.RunMode)),
		almoner.WithTracing(cfg.Tracing),
		almoner.WithTracingStdout(cfg.TracingStdout),
	}
	return almoner.New(almoner.NewConfig(append(opts, extra...)...))
}

func run(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
	metricsHandler http.Handler,
	ready func(Addrs),
) error {
	nodeLogger := logger.With("component", "node")
	nodeLogger.Debug(fmt.Sprintf("config: %+v", cfg))

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = config.DefaultShutdownTimeout
	}
	e, err := NewEngine(cfg, logger, promRegistry, almoner.WithShutdownTimeout(shutdownTimeout))
	if err != nil {
		return err
	}
	if err := e.Start(ctx); err != nil {
		return errors.Join(err, e.Stop())
	}

	metricsListener, err := net.Listen("tcp", listenAddr(cfg.BindAddr, cfg.MetricsPort))
	if err != nil {
		return errors.Join(fmt.Errorf("metrics listener: %w", err), e.Stop())
	}
	realtimeListener, err := net.Listen("tcp", listenAddr(cfg.BindAddr, cfg.RealtimePort))
	if err != nil {
		_ = metricsListener.Close()
		return errors.Join(fmt.Errorf("realtime listener: %w", err), e.Stop())
	}

	// Metrics and debug listener
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsHandler)
	metricsMux.HandleFunc("/debug/pprof/", pprof.Index)
	metricsMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	metricsMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	metricsServer := &http.Server{
		Handler:           metricsMux,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// Websocket connections are long lived, so no write or idle timeout
	realtimeMux := http.NewServeMux()
	realtimeMux.Handle("/ws", e.Hub().Handler())
	realtimeMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	realtimeServer := &http.Server{
		Handler:           realtimeMux,
		ReadHeaderTimeout: 60 * time.Second,
	}
	nodeLogger.Info(
		"serving prometheus metrics on " + metricsListener.Addr().String(),
	)
	nodeLogger.Info(
		"serving real-time websocket on " + realtimeListener.Addr().String(),
	)
	if ready != nil {
		ready(Addrs{
			Metrics:  metricsListener.Addr(),
			Realtime: realtimeListener.Addr(),
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(metricsServer, metricsListener, "metrics")
	})
	g.Go(func() error {
		return serve(realtimeServer, realtimeListener, "realtime")
	})
	g.Go(func() error {
		<-gctx.Done()
		nodeLogger.Info("initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		// Disconnect websocket peers first, Shutdown does not wait for hijacked connections
		e.Hub().Stop()
		return errors.Join(
			realtimeServer.Shutdown(shutdownCtx),
			metricsServer.Shutdown(shutdownCtx),
		)
	})
	err = g.Wait()
	if stopErr := e.Stop(); stopErr != nil {
		nodeLogger.Error("shutdown errors occurred", "error", stopErr)
		err = errors.Join(err, stopErr)
	}
	if err == nil {
		nodeLogger.Info("shutdown complete")
	}
	return err
}

func serve(server *http.Server, listener net.Listener, name string) error {
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s listener: %w", name, err)
	}
	return nil
}

func listenAddr(bindAddr string, port uint) string {
	return net.JoinHostPort(bindAddr, strconv.FormatUint(uint64(port), 10))
}
