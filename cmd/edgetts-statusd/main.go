// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Command edgetts-statusd exposes the coordinator's pool status and
// Prometheus metrics over HTTP: a minimal sidecar for hosts that want to
// scrape the connection pool's health without embedding Go (spec.md §9
// leaves any telemetry dashboard to an external collaborator; this is
// just the metrics surface it would scrape).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rapidaai/edgetts"
	"github.com/rapidaai/edgetts/config"
	"github.com/rapidaai/edgetts/internal/metrics"
	"github.com/rapidaai/edgetts/pkg/commons"
)

func main() {
	logger := commons.NewDevelopmentLogger()

	v, err := config.InitViper()
	if err != nil {
		logger.Fatalf("init config: %v", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	client := edgetts.New(cfg, logger)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.StartSweeper(ctx, cfg)
	go pollStatus(ctx, client, collector)

	engine := gin.Default()
	statusRoutes(engine, client)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	srv := &http.Server{Addr: ":8090", Handler: engine}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("edgetts-statusd shutting down")
		cancel()
		client.StopAll(nil)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("edgetts-statusd listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("listen: %v", err)
	}
}

func statusRoutes(engine *gin.Engine, client *edgetts.Client) {
	apiv1 := engine.Group("")
	{
		apiv1.GET("/healthz", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		apiv1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, client.Status())
		})
	}
}

// pollStatus samples the coordinator's status into the Prometheus
// collector every second; the gauges only change as fast as a human or
// scraper needs to see them.
func pollStatus(ctx context.Context, client *edgetts.Client, collector *metrics.Collector) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := client.Status()
			collector.Observe(st.ActiveConnections, st.Queued, st.FailureCount, st.BreakerState)
		}
	}
}
