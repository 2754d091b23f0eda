// tom-worker is the process entrypoint for the Tom execution worker: it
// pulls queued jobs from the shared queue store and drives them against
// network devices through a transport adapter.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tomnet/tom/internal/cache"
	"github.com/tomnet/tom/internal/config"
	"github.com/tomnet/tom/internal/credential"
	credfile "github.com/tomnet/tom/internal/credential/file"
	"github.com/tomnet/tom/internal/gate"
	"github.com/tomnet/tom/internal/queue"
	"github.com/tomnet/tom/internal/transport"
	"github.com/tomnet/tom/internal/transport/adaptera"
	"github.com/tomnet/tom/internal/transport/adapterb"
	"github.com/tomnet/tom/internal/worker"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfgPath := os.Getenv("WORKER_CONFIG_FILE")
	cfg, err := config.LoadWorker(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		logger = logger.WithOptions(zap.IncreaseLevel(lvl.Level()))
	}

	dataDir := filepath.Dir(cfg.QueueDBPath)
	if dataDir != "." {
		if err := os.MkdirAll(dataDir, 0750); err != nil {
			logger.Fatal("cannot create data dir", zap.String("dir", dataDir), zap.Error(err))
		}
	}

	q, err := queue.NewStore(cfg.QueueDBPath)
	if err != nil {
		logger.Fatal("cannot open queue store", zap.Error(err))
	}
	defer q.Close()

	g, err := gate.New(filepath.Join(dataDir, "gate.db"), time.Duration(cfg.LeaseTTLS)*time.Second)
	if err != nil {
		logger.Fatal("cannot open gate store", zap.Error(err))
	}
	defer g.Close()

	c, err := cache.New(filepath.Join(dataDir, "cache.db"), "cache:")
	if err != nil {
		logger.Fatal("cannot open cache store", zap.Error(err))
	}
	defer c.Close()

	cred, err := openCredential(cfg)
	if err != nil {
		logger.Fatal("cannot open credential plugin", zap.String("plugin", cfg.CredentialPlugin), zap.Error(err))
	}

	w := worker.New(worker.Deps{
		Config:     cfg,
		Logger:     logger,
		Queue:      q,
		Gate:       g,
		Cache:      c,
		Credential: cred,
		Adapters: map[string]transport.Adapter{
			"A": adaptera.New(),
			"B": adapterb.New(),
		},
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sup := queue.NewSupervisor(q, time.Duration(cfg.WorkerLivenessS)*time.Second, logger)
	sup.Start(ctx)
	defer sup.Stop()

	logger.Info("starting worker",
		zap.String("worker_id", cfg.WorkerID),
		zap.String("version", version),
		zap.String("commit", commit),
	)

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	<-ctx.Done()
	logger.Info("shutting down, draining in-flight jobs...")
	<-done
	w.Shutdown(time.Duration(cfg.ShutdownGraceS) * time.Second)
}

func openCredential(cfg config.WorkerConfig) (credential.Plugin, error) {
	switch cfg.CredentialPlugin {
	case "", "file":
		path := cfg.PluginOptions["file_path"]
		if path == "" {
			path = "./data/credentials.yaml"
		}
		return credfile.Load(path)
	default:
		return nil, fmt.Errorf("unknown credential_plugin %q", cfg.CredentialPlugin)
	}
}
