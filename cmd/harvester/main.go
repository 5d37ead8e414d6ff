package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/districtdata/harvester/internal/api"
	appbackfill "github.com/districtdata/harvester/internal/app/backfill"
	"github.com/districtdata/harvester/internal/config/fileloader"
	"github.com/districtdata/harvester/internal/infra/manifest"
	"github.com/districtdata/harvester/internal/infra/portal"
	"github.com/districtdata/harvester/pkg/common/logger"
	"github.com/districtdata/harvester/pkg/common/otel"
	"github.com/districtdata/harvester/pkg/common/timeutil"
)

const serviceType = "harvester"

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}

			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("HARVESTER-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	log := logger.NewWithMetadata(os.Stdout, logger.LevelInfo, svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()

	if err := run(ctx, log, hostname); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, hostname string) error {
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	// -------------------------------------------------------------------------
	// Configuration

	configPath := os.Getenv("HARVESTER_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := fileloader.NewFileLoader(configPath).Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	// -------------------------------------------------------------------------
	// Telemetry

	probability := 0.05
	if p := os.Getenv("OTEL_SAMPLING_RATIO"); p != "" {
		if parsed, err := strconv.ParseFloat(p, 64); err == nil {
			probability = parsed
		}
	}

	exporterEndpoint := os.Getenv("OTEL_EXPORTER_ENDPOINT")
	if exporterEndpoint == "" {
		exporterEndpoint = "localhost:4317"
	}

	tp, telemetryTeardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      serviceType,
		ExporterEndpoint: exporterEndpoint,
		Host:             hostname,
		ExcludedRoutes: map[string]struct{}{
			"/v1/health":    {},
			"/v1/readiness": {},
		},
		Probability:      probability,
		InsecureExporter: true,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer telemetryTeardown(context.Background())

	tracer := tp.Tracer(serviceType)

	// -------------------------------------------------------------------------
	// Wiring

	clock := timeutil.Default()

	metrics, err := appbackfill.NewOrchestrationMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	manager := appbackfill.NewBackfillJobManager(clock, log, tracer, metrics)

	fetcher := portal.NewClient(cfg.Portal, log)

	store, err := manifest.NewWriter(cfg.Snapshots.Dir, clock, log)
	if err != nil {
		return fmt.Errorf("creating snapshot writer: %w", err)
	}

	coordinator := appbackfill.NewCoordinator(manager, fetcher, store, clock, log, tracer, metrics)

	server, err := api.NewServer(cfg, log, tracer, manager, coordinator)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// -------------------------------------------------------------------------
	// Start service

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		if err := server.Start(gCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Retention sweep for terminal jobs.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Retention.SweepInterval())
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				manager.CleanupCompletedJobs(gCtx, cfg.Retention.MaxAge())
			}
		}
	})

	log.Info(ctx, "harvester started",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
		"districts", len(cfg.Districts),
	)

	return g.Wait()
}
