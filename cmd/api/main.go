package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"example.com/wellness/internal/api"
	"example.com/wellness/internal/app"
	"example.com/wellness/internal/auth"
	"example.com/wellness/internal/config"
	"example.com/wellness/internal/syncer"
	httptransport "example.com/wellness/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.New(os.Stderr, "[wellness-api] ", log.LstdFlags|log.Lshortfile)
	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to build runtime: %v", err)
	}
	defer rt.Close()

	rt.MigrateLegacy(ctx)

	service, err := rt.NewSyncService()
	if err != nil {
		log.Fatalf("failed to build sync service: %v", err)
	}

	var scheduler *syncer.Scheduler
	if cfg.Sync.Interval > 0 {
		scheduler = syncer.NewScheduler(service, cfg.Sync.Interval, cfg.Sync.LookbackDays, cfg.Location, logger)
		go scheduler.Start(ctx)
	}

	opts := []api.Option{api.WithLocation(cfg.Location)}
	routerCfg := httptransport.RouterConfig{AccessLog: os.Stdout, AllowedOrigins: cfg.Server.AllowedOrigins}
	if cfg.Auth.Disabled {
		opts = append(opts, api.WithoutAuth())
	} else {
		routerCfg.Auth = &auth.Config{Secret: cfg.Auth.Secret, Issuer: cfg.Auth.Issuer, Athlete: cfg.Auth.Athlete}
	}
	handler := api.NewHandler(rt.Store, rt.Store, service, opts...)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, httptransport.NewHandler(routerCfg, handler))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("wellness-api listening on %s (store=%s, primary=%s)", cfg.Server.Address, cfg.Store.Backend, cfg.Primary)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	if scheduler != nil {
		scheduler.Wait()
	}
}
