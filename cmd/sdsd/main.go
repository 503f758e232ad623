// Command sdsd watches directories for new safety data sheets, names them in the
// background and records every run. It serves the gRPC health protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/andydreyson/v0-safetydatas-sub001/internal/app"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/async"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/common"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/ingest"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/pipeline"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/repository"
)

// serviceName is the health service name reported next to the overall "" status.
const serviceName = "sds.Namer"

func main() {
	cfg := common.LoadConfig()

	var (
		watch       = flag.String("watch", strings.Join(cfg.Server.WatchDirs, ","), "comma-separated directories to watch")
		addr        = flag.String("health-addr", cfg.Server.HealthAddr, "gRPC health listen address")
		workers     = flag.Int("workers", cfg.Batch.Workers, "documents processed in parallel")
		initialScan = flag.Bool("initial-scan", true, "process files already present at startup")
		simple      = flag.Bool("simple", false, "text layer straight to the model, no OCR or rules")
		logLevel    = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger := app.NewLogger(os.Stdout, *logLevel)
	slog.SetDefault(logger)

	roots := splitList(*watch)
	if len(roots) == 0 {
		logger.Error("no directories to watch; set WATCH_DIRS or -watch")
		os.Exit(common.ExitUsage)
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("configuration incomplete", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := app.NewPipeline(cfg, app.Options{Simple: *simple}, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(common.ExitCode(err))
	}

	// gRPC server
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	// Reflection for grpcurl
	reflection.Register(grpcServer)

	opts := []async.Option{async.WithWorkers(*workers), async.WithProcessTimeout(cfg.Batch.DocTimeout)}
	var store *repository.RunStore
	if cfg.Database.DSN != "" {
		s, closeFn, err := app.OpenStore(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("failed to initialize database", "error", err)
			os.Exit(common.ExitFailure)
		}
		defer closeFn()
		store = s
		opts = append(opts, async.WithRecorder(store), async.WithPriorLookup(store))
	} else {
		logger.Warn("DB_URL not set, runs are not recorded")
	}
	opts = append(opts, async.WithHandler(func(job async.Job, res pipeline.Result) {
		logger.Info("document named",
			"doc_id", job.Document.ID,
			"path", job.Document.Path,
			"status", res.Status,
			"name", res.Name,
			"trace_id", job.TraceID,
		)
	}))
	queue := async.NewProcessorQueue(orch, logger, opts...)

	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       roots,
		InitialScan: *initialScan,
		SkipHidden:  true,
		Debounce:    500 * time.Millisecond,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to start watcher", "error", err)
		os.Exit(common.ExitFailure)
	}

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Error("listen failed", "addr", *addr, "error", err)
		os.Exit(common.ExitFailure)
	}
	go func() {
		logger.Info("gRPC health serving", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc serve failed", "error", err)
			stop()
		}
	}()
	if store != nil {
		go monitorDatabase(ctx, store, hs, logger)
	}

	logger.Info("watching", "roots", roots, "workers", *workers)
	serveEvents(ctx, events, errs, ingest.NewScanner(logger), queue, logger)

	logger.Info("shutting down...")
	hs.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	queue.Shutdown(shutdownCtx)
	cancel()
	grpcServer.GracefulStop()
	fmt.Println("stopped.")
}

// describer is implemented by *ingest.Scanner.
type describer interface {
	Describe(path string) (entity.Document, error)
}

// serveEvents turns watcher paths into queue jobs until ctx ends or the watcher stops.
func serveEvents(ctx context.Context, events <-chan string, errs <-chan error, scanner describer, q async.Queue, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-events:
			if !ok {
				return
			}
			doc, err := scanner.Describe(path)
			if err != nil {
				logger.Warn("cannot describe file", "path", path, "error", err)
				continue
			}
			job := async.Job{Document: doc, SubmittedAt: time.Now(), TraceID: uuid.NewString()}
			if err := q.Enqueue(ctx, job); err != nil {
				logger.Warn("enqueue failed", "path", path, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

// monitorDatabase flips the health status when the run store stops answering.
func monitorDatabase(ctx context.Context, store *repository.RunStore, hs *health.Server, logger *slog.Logger) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			status := healthpb.HealthCheckResponse_SERVING
			if err := store.Ping(ctx, 3*time.Second); err != nil {
				logger.Error("DB health failed", "error", err)
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			hs.SetServingStatus(serviceName, status)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
