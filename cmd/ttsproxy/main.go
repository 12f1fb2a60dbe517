package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/medagent/voicecall/internal/config"
	"github.com/medagent/voicecall/internal/httpapi"
	"github.com/medagent/voicecall/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace + "_proxy")

	murf := httpapi.NewMurfClient(httpapi.MurfConfig{
		APIKey:       cfg.MurfAPIKey,
		APIURL:       cfg.MurfAPIURL,
		Timeout:      cfg.TTSRequestTimeout,
		FetchTimeout: cfg.MurfFetchTimeout,
	})
	if !murf.Configured() {
		log.Printf("MURF_API_KEY not set, serving degraded responses only")
	}

	api := httpapi.New(murf, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("synthesis proxy listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
