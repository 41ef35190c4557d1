// LAN Share Server
//
// Features:
// - Live session roster with first-connect-wins admin election
// - File and folder sharing with per-entry ownership
// - SSE push of role-filtered state to every connected client
// - Background reaping of entries whose owner disconnected
// - Prometheus metrics & structured logging (zap)
// - Pluggable storage (local disk, S3/MinIO)
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/lanshare/lanshare/internal/api"
	"github.com/lanshare/lanshare/internal/config"
	"github.com/lanshare/lanshare/internal/hub"
	"github.com/lanshare/lanshare/internal/logging"
	"github.com/lanshare/lanshare/internal/metrics"
	"github.com/lanshare/lanshare/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("LAN Share Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("storage", cfg.StorageBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage backend
	backend, err := storage.New(ctx, cfg)
	if err != nil {
		logging.Fatal("storage backend init failed", zap.Error(err))
	}
	defer backend.Close()
	logging.Info("storage backend initialized", zap.String("type", backend.Type()))

	// Initialize the session/catalog hub
	h := hub.New()

	// Start the orphan reaper
	reaper := hub.NewReaper(h, backend, cfg.ReapInterval)
	go reaper.Run(ctx)

	// Create API server
	srv := api.NewServer(h, backend, cfg.MaxUploadSize)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		httpServer.Close()
		metricsServer.Close()
	}()

	printBanner(cfg.ListenAddr)

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
}

// printBanner writes the join URLs to stdout so the person starting the
// server can read them off to other devices.
func printBanner(listenAddr string) {
	port := listenAddr
	if i := strings.LastIndex(listenAddr, ":"); i >= 0 {
		port = listenAddr[i+1:]
	}

	line := strings.Repeat("=", 50)
	fmt.Println("\n" + line)
	fmt.Println("LAN Share Server Started!")
	fmt.Println(line)
	fmt.Printf("Local URL:     http://localhost:%s\n", port)
	if ip := localIP(); ip != "" {
		fmt.Printf("Network URL:   http://%s:%s\n", ip, port)
	}
	fmt.Println(line)
	fmt.Println("IMPORTANT: First connected device becomes Admin")
	fmt.Println("Admin can see all IPs, others can only see their own IP")
	fmt.Println(line + "\n")
}

// localIP discovers the machine's LAN address by dialing out; no packet is
// actually sent on a UDP dial.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}
