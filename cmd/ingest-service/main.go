// Package main provides the entry point for the telemetry ingest and
// alert pipeline service.
//
// It wires together the rate limiter (C1), bounded queue and worker pool
// (C7), telemetry store (C2), alert engine and store (C3/C4), the
// analytic processor fan-out (C5/C6), and the ingest facade (C8) behind
// a single HTTP server, and manages graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ingestpipe/internal/alert"
	"ingestpipe/internal/config"
	"ingestpipe/internal/httpapi"
	"ingestpipe/internal/ingest"
	"ingestpipe/internal/logging"
	"ingestpipe/internal/processor"
	"ingestpipe/internal/queue"
	"ingestpipe/internal/ratelimit"
	"ingestpipe/internal/telemetrystore"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file (defaults used if empty)")
	httpAddr := flag.String("http_addr", ":8080", "HTTP listen address")
	redisAddr := flag.String("redis_addr", "", "Redis address for cross-instance alert dedup (empty disables it)")
	shutdownTimeout := flag.Duration("shutdown_timeout", 5*time.Second, "Graceful shutdown timeout for in-flight queue work")
	flag.Parse()

	log := logging.New(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	ctx := context.Background()

	cfgManager := config.NewManager(*configPath, nil)
	if *configPath != "" {
		if cfg, err := config.Load(*configPath); err == nil {
			cfgManager = config.NewManager(*configPath, cfg)
		} else {
			log.Error(ctx, "failed to load config file, falling back to defaults", "path", *configPath, "error", err)
		}
		if err := cfgManager.Watch(); err != nil {
			log.Error(ctx, "failed to start config watcher", "error", err)
		}
	}
	cfg := cfgManager.Get()

	limiter := ratelimit.New(ratelimit.Config{
		Enabled:            cfg.RateLimit.Enabled,
		GlobalPerSecond:    cfg.RateLimit.Global.PerSecond,
		AddressPerMinute:   cfg.RateLimit.Address.PerMinute,
		AddressBurstPerMin: cfg.RateLimit.Address.BurstPerMinute,
		DevicePerMinute:    cfg.RateLimit.Device.PerMinute,
		CacheMaxSize:       cfg.RateLimit.Cache.MaxSize,
		CacheIdleTimeout:   10 * time.Minute,
	}, log)
	limiter.RunEvictionLoops(time.Minute)
	defer limiter.Close()

	telemetryStore := telemetrystore.NewMemStore()
	alertStore := alert.NewMemStore()

	var dedup *alert.CrossInstanceDedup
	if *redisAddr != "" {
		dedup = alert.NewCrossInstanceDedup(alert.NewGoRedisEvaler(*redisAddr))
	}
	engine := alert.NewEngine(alertStore, dedup, log)

	registry := processor.NewRegistry([]processor.Processor{
		processor.NewAnomalyProcessor(cfg.Processors.Anomaly.ExtremeLatitude),
		processor.NewGeofenceProcessor(cfg.Processors.Geofence.Regions),
		processor.NewSpeedProcessor(telemetryStore, cfg.Processors.Speed.ThresholdKmh, cfg.Processors.Speed.MinIntervalSeconds),
		processor.NewAggregationProcessor(),
	}, engine, log)

	// The queue's drain handler is facade.Handle, so the facade is built
	// first with no queue, the queue is built over the facade, and then
	// attached back via SetQueue.
	fallback := ingest.Fallback(cfg.Queue.Fallback)
	facade := ingest.New(limiter, nil, fallback, telemetryStore, registry, log)
	var q *queue.Queue
	if cfg.Queue.Enabled {
		q = queue.New(cfg.Queue.Capacity, cfg.Queue.Workers, facade.Handle, log)
		facade.SetQueue(q)
		q.Start()
	}

	purgeStop := startPurgeLoop(ctx, alertStore, cfg.Alert.RetentionMonths, log)
	defer close(purgeStop)

	server := httpapi.NewServer(facade, q, alertStore, telemetryStore, log)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:         *httpAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("ingest pipeline listening on %s\n", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, *shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "http server shutdown failed", "error", err)
	}

	if q != nil {
		if !q.Shutdown(*shutdownTimeout) {
			log.Error(ctx, "queue did not drain within shutdown timeout", "timeout", *shutdownTimeout)
		}
	}

	cfgManager.Stop()
	fmt.Println("ingest pipeline stopped")
}

// startPurgeLoop runs the advisory retention purge job (spec.md §4.3
// "Purge"): records older than retentionMonths are removed on a daily
// tick. Its failure is logged and does not affect ingest correctness.
func startPurgeLoop(ctx context.Context, store alert.Store, retentionMonths int, log logging.Logger) chan struct{} {
	stop := make(chan struct{})
	if retentionMonths <= 0 {
		return stop
	}
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, -retentionMonths, 0)
				n, err := store.PurgeOlderThan(ctx, cutoff)
				if err != nil {
					log.Error(ctx, "alert retention purge failed", "error", err)
					continue
				}
				if n > 0 {
					log.Info(ctx, "alert retention purge completed", "purged", n)
				}
			case <-stop:
				return
			}
		}
	}()
	return stop
}
