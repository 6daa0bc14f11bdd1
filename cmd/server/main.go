package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"connectrpc.com/connect"

	"github.com/atlekbai/lksql/internal/config"
	"github.com/atlekbai/lksql/internal/db"
	"github.com/atlekbai/lksql/internal/handler"
	"github.com/atlekbai/lksql/internal/middleware"
	"github.com/atlekbai/lksql/internal/schema"
	"github.com/atlekbai/lksql/internal/server"
	"github.com/atlekbai/lksql/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cache, err := loadCatalog(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to load schema cache: %v", err)
	}
	log.Printf("schema cache loaded: %d tables", cache.TableCount())

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	interceptors := []connect.Interceptor{
		server.RecoverInterceptor(logger),
		server.LoggingInterceptor(logger),
	}

	services := []server.ConnectService{
		service.NewCompileService(cache, cfg.BatchConcurrency, logger),
	}

	// Vanguard transcodes REST (google.api.http annotations) to Connect/gRPC.
	transcoder, err := server.NewTranscoder(services, interceptors...)
	if err != nil {
		log.Fatalf("%v", err)
	}

	mux := http.NewServeMux()
	handler.New(cache).Register(mux)
	mux.Handle("/", transcoder)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: middleware.Chain(mux, middleware.Logging, middleware.Recovery),
	}

	go func() {
		<-ctx.Done()
		log.Println("shutting down...")
		srv.Shutdown(context.Background())
	}()

	log.Printf("listening on %s", cfg.Addr())
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// loadCatalog reads SCHEMA_FILE when set, otherwise the database catalog.
func loadCatalog(ctx context.Context, cfg *config.Config) (*schema.Cache, error) {
	if cfg.SchemaFile != "" {
		return schema.LoadFile(cfg.SchemaFile)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	cache := schema.NewCache()
	if err := cache.Load(ctx, pool, cfg.CatalogSchemas...); err != nil {
		return nil, err
	}
	return cache, nil
}
