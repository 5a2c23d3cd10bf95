package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/wellness/internal/app"
	"example.com/wellness/internal/config"
	"example.com/wellness/internal/consumer"
	"example.com/wellness/internal/events"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal("WELLNESS_KAFKA__BROKERS is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.New(os.Stderr, "[wellness-consumer] ", log.LstdFlags|log.Lshortfile)
	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to build runtime: %v", err)
	}
	defer rt.Close()

	service, err := rt.NewSyncService()
	if err != nil {
		log.Fatalf("failed to build sync service: %v", err)
	}

	syncHandler := consumer.NewSyncHandler(service, cfg.Sync.LookbackDays, cfg.Location, logger)
	router := consumer.NewRouter(logger)
	if rt.Pool != nil {
		audit := consumer.NewEventLogHandler(rt.Pool)
		router.On(events.TypeSyncRequested, audit)
		router.On(events.TypeDataUpdated, audit)
	}
	router.On(events.TypeSyncRequested, syncHandler)

	metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddress, Handler: promhttp.Handler()}

	go func() {
		log.Printf("consumer metrics listening on %s", cfg.Server.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.GroupID,
		Topic:           cfg.Kafka.CommandsTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	proc := consumer.NewProcessor(reader, router, consumer.WithLogger(logger))

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer reader.Close()

		log.Printf("consumer started (topic=%s, group=%s)", cfg.Kafka.CommandsTopic, cfg.Kafka.GroupID)
		if err := proc.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("consumer stopped with error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("consumer shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	<-done
}
