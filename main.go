package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"transcript-relay/internal/config"
	Iservices "transcript-relay/internal/domain/interfaces/services"
	"transcript-relay/internal/infra/assembler"
	"transcript-relay/internal/infra/broadcast"
	"transcript-relay/internal/infra/buffer"
	"transcript-relay/internal/infra/handlers"
	"transcript-relay/internal/infra/logger"
	"transcript-relay/internal/infra/metrics"
	"transcript-relay/internal/infra/registry"
	"transcript-relay/internal/infra/routes"
	"transcript-relay/internal/infra/services"
	"transcript-relay/internal/infra/sink"
	"transcript-relay/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()

	ctx := context.Background()
	log := logger.NewLogger(ctx, cfg.LogLevel, cfg.LogJSON)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	relayMetrics := metrics.NewRelayMetrics(promRegistry)

	var storage sink.Sink
	if cfg.PersistenceEnabled() {
		elastic, err := sink.NewElasticSink(cfg.ElasticURL, cfg.ElasticAPIKey, cfg.ChunkIndex, cfg.SessionsIndex)
		if err != nil {
			log.Fatal(fmt.Sprintf("Failed to initialize Elasticsearch sink: %v", err))
		}
		storage = elastic
		log.Info(fmt.Sprintf("Persisting transcript chunks to index %s", cfg.ChunkIndex))
	} else {
		storage = sink.Disabled{}
		log.Warn("Elasticsearch not configured; persistence disabled, relay runs ingest and fan-out only")
	}

	sessionRegistry := registry.NewSessionRegistry(cfg.SessionGrace, log)
	chunkAssembler := assembler.NewChunkAssembler(sessionRegistry, relayMetrics)
	writeBuffer := buffer.NewWriteBuffer(storage, cfg.BulkBatchSize, cfg.BulkFlushInterval, log, relayMetrics)
	hub := broadcast.NewHub(log, relayMetrics)

	var relayService Iservices.IRelayService = services.NewRelayService(
		cfg, log, sessionRegistry, chunkAssembler, writeBuffer, hub, storage,
	)

	flushCtx, stopFlusher := context.WithCancel(ctx)
	go writeBuffer.Run(flushCtx)

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(log))

	relayHandlers := handlers.NewRelayHandlers(log, relayService)
	routes := routes.NewRoutes(router, relayHandlers, hub, promRegistry)
	routes.Init()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	go func() {
		log.Info(fmt.Sprintf("Relay is running on port %s", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(fmt.Sprintf("Error running HTTP server: %s", err))
			os.Exit(1)
		}
	}()

	<-stop
	log.Info("Shutting down relay...")

	stopFlusher()
	hub.CloseAll()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDrain()
	relayService.Shutdown(drainCtx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(fmt.Sprintf("Server forced to shutdown: %v", err))
	} else {
		log.Info("Server stopped gracefully.")
	}
}
