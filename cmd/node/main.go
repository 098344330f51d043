package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyomos/netrajaal-mesh/internal/adapters"
	"github.com/vyomos/netrajaal-mesh/internal/node"
	"github.com/vyomos/netrajaal-mesh/internal/radio"
	"github.com/vyomos/netrajaal-mesh/internal/tasks"
	"github.com/vyomos/netrajaal-mesh/pkg/logger"
)

const version = "1.0.0"

func main() {
	logger.Banner("LoRa Mesh Node", version)

	cfg := loadConfig()
	logger.Info("Node address: %d", cfg.node.MyAddr)
	logger.Info("Command center: %v", cfg.node.IsCommandCenter)
	logger.Info("Dynamic path: %v", cfg.node.DynamicPath)
	logger.Info("Encryption enabled: %v", cfg.node.EncryptionEnabled)
	logger.Success("Configuration loaded successfully")

	mesh := radio.NewInMemoryMesh()
	r := mesh.Join(cfg.node.MyAddr)

	uploader := adapters.Uploader(adapters.NewMemoryUploader())
	status := tasks.StatusEncoder(func() []byte { return []byte("ok") })

	var demoCC *node.Node
	if cfg.demo && !cfg.node.IsCommandCenter {
		ccCfg := node.DefaultConfig(cfg.ccAddr)
		ccCfg.IsCommandCenter = true
		ccUp := adapters.NewMemoryUploader()
		demoCC = node.New(ccCfg, mesh.Join(cfg.ccAddr), ccUp, status, nil)
		logger.Info("Demo mode: running an in-process command center at address %d alongside this node", cfg.ccAddr)
	}

	n := node.New(cfg.node, r, uploader, status, nil)
	prometheus.MustRegister(n.Metrics)
	if demoCC != nil {
		prometheus.MustRegister(demoCC.Metrics)
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if demoCC != nil {
			demoCC.Run(ctx)
		}
	}()
	go n.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.metricsAddr, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics on %s/metrics", cfg.metricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errChan:
		logger.Fatal("metrics server error: %v", err)
	case sig := <-sigChan:
		logger.Warn("Received signal: %v", sig)
		logger.Info("Shutting down gracefully...")

		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown: %v", err)
		}

		time.Sleep(1 * time.Second)
		logger.Success("Node stopped")
		os.Exit(0)
	}
}

// cliConfig bundles the node's operational Config with the flags main needs
// that don't belong on Config itself (metrics bind address, demo mode).
type cliConfig struct {
	node        node.Config
	metricsAddr string
	demo        bool
	ccAddr      byte
}

// loadConfig reads flags/env into a cliConfig, generalizing the teacher's
// hardcoded loadConfig into one that accepts overrides.
func loadConfig() cliConfig {
	addr := flag.Int("addr", 1, "this node's mesh address (1-255)")
	isCC := flag.Bool("command-center", false, "run as the command center")
	dynamicPath := flag.Bool("dynamic-path", true, "discover the path to the command center at runtime")
	encryption := flag.Bool("encryption", false, "wrap heartbeat/event/image payloads in the crypto envelope")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	demo := flag.Bool("demo", true, "also run an in-process command-center peer so the node has someone to talk to")
	ccAddr := flag.Int("demo-cc-addr", 2, "address of the in-process demo command center")
	flag.Parse()

	c := node.DefaultConfig(byte(*addr))
	c.IsCommandCenter = *isCC
	c.DynamicPath = *dynamicPath
	c.EncryptionEnabled = *encryption

	return cliConfig{
		node:        c,
		metricsAddr: *metricsAddr,
		demo:        *demo,
		ccAddr:      byte(*ccAddr),
	}
}
