package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"food-search-be/internal/bootstrap"
	"food-search-be/internal/config"
	"food-search-be/internal/server"
	"food-search-be/internal/tracer"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Tracer (disabled unless OTEL_ENABLED=true)
	shutdownTracer, err := tracer.InitTracer(ctx, tracer.Config{
		Enabled:     cfg.App.OtelEnabled,
		Endpoint:    cfg.App.OtlpEndpoint,
		ServiceName: cfg.App.ServiceName,
	})
	if err != nil {
		log.Printf("Warning: tracing disabled: %v", err)
	}

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	// 4. Initialize Server
	srv := server.New(cfg, container)

	// 5. Run server and background services until a signal arrives
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		container.WebSocketHub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return container.ConsumerService.Consume(gctx)
	})

	g.Go(func() error {
		return srv.Run()
	})

	g.Go(func() error {
		<-gctx.Done()
		container.Logger.Info("MAIN", "Shutting down", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Queued searches are rejected first so in-flight handlers can drain.
		container.Admission.Shutdown()
		err := srv.Shutdown(shutdownCtx)
		if terr := shutdownTracer(shutdownCtx); terr != nil {
			container.Logger.Warn("MAIN", "Tracer shutdown failed", map[string]interface{}{"error": terr.Error()})
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		container.Logger.Error("MAIN", "Server stopped with error", map[string]interface{}{"error": err.Error()})
	}
	container.Close()
}
