// peerdav exposes an IPFS daemon's Mutable File System as a WebDAV
// endpoint, so unmodified file managers and command-line clients can mount
// and edit files that live behind the daemon's RPC API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/peerdav/peerdav/internal/bridge"
	"github.com/peerdav/peerdav/internal/config"
	"github.com/peerdav/peerdav/internal/dav"
	"github.com/peerdav/peerdav/internal/locks"
	"github.com/peerdav/peerdav/internal/logging"
	"github.com/peerdav/peerdav/internal/metrics"
	"github.com/peerdav/peerdav/internal/mfs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("peerdav starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("ipfs_api", cfg.IPFSAPIAddr),
		zap.String("mfs_root", cfg.MFSRoot))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// An unreachable daemon at startup is fatal; once serving, remote
	// failures stay per-request.
	client := mfs.NewClient(cfg.IPFSAPIAddr, cfg.RPCTimeout)
	if !client.Up() {
		logging.Fatal("IPFS daemon unreachable", zap.String("addr", cfg.IPFSAPIAddr))
	}
	if err := mfs.EnsurePath(ctx, client, cfg.MFSRoot); err != nil {
		logging.Fatal("cannot create MFS root", zap.String("root", cfg.MFSRoot), zap.Error(err))
	}
	logging.Info("IPFS daemon connected")

	table := locks.NewTable()
	fs := bridge.New(client, table, cfg.MFSRoot)
	handler := dav.NewHandler(fs, locks.NewSystem(table), cfg.DavPrefix)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !client.Up() {
			http.Error(w, "daemon unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/", handler)

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
		Handler: mux,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		httpServer.Close()
		metricsServer.Close()
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
}
