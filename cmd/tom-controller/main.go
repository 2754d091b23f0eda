// tom-controller is the process entrypoint for the Tom HTTP control surface:
// it accepts send-command/parse/cache/credential requests, enqueues work for
// workers, and serves job/cache state back to callers.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tomnet/tom/internal/auth"
	"github.com/tomnet/tom/internal/cache"
	"github.com/tomnet/tom/internal/config"
	"github.com/tomnet/tom/internal/credential"
	credfile "github.com/tomnet/tom/internal/credential/file"
	"github.com/tomnet/tom/internal/gate"
	"github.com/tomnet/tom/internal/httpapi"
	"github.com/tomnet/tom/internal/inventory"
	"github.com/tomnet/tom/internal/inventory/netbox"
	"github.com/tomnet/tom/internal/inventory/nms"
	"github.com/tomnet/tom/internal/inventory/yamlfile"
	"github.com/tomnet/tom/internal/parser"
	"github.com/tomnet/tom/internal/queue"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfgPath := os.Getenv("CONTROLLER_CONFIG_FILE")
	cfg, err := config.LoadController(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		logger = logger.WithOptions(zap.IncreaseLevel(lvl.Level()))
	}

	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		logger.Fatal("cannot create data dir", zap.String("dir", cfg.DataDir), zap.Error(err))
	}

	q, err := queue.NewStore(filepath.Join(cfg.DataDir, "queue.db"))
	if err != nil {
		logger.Fatal("cannot open queue store", zap.Error(err))
	}
	defer q.Close()

	g, err := gate.New(filepath.Join(cfg.DataDir, "gate.db"), 5*time.Minute)
	if err != nil {
		logger.Fatal("cannot open gate store", zap.Error(err))
	}
	defer g.Close()

	c, err := cache.New(filepath.Join(cfg.DataDir, "cache.db"), cfg.CacheKeyPrefix)
	if err != nil {
		logger.Fatal("cannot open cache store", zap.Error(err))
	}
	defer c.Close()

	inv, err := openInventory(cfg)
	if err != nil {
		logger.Fatal("cannot open inventory plugin", zap.String("type", cfg.InventoryType), zap.Error(err))
	}

	cred, err := openCredential(cfg)
	if err != nil {
		logger.Fatal("cannot open credential plugin", zap.String("plugin", cfg.CredentialPlugin), zap.Error(err))
	}

	authenticator, err := buildAuthenticator(cfg, logger)
	if err != nil {
		logger.Fatal("cannot build authenticator", zap.Error(err))
	}

	builtinIndex := loadTemplateIndex(logger, cfg.BuiltinTemplateDir, parser.SourceBuiltin)
	customIndex := loadTemplateIndex(logger, cfg.CustomTemplateDir, parser.SourceCustom)

	server := httpapi.New(httpapi.Deps{
		Config:       cfg,
		Logger:       logger,
		Queue:        q,
		Gate:         g,
		Cache:        c,
		Inventory:    inv,
		Credential:   cred,
		Auth:         authenticator,
		BuiltinIndex: builtinIndex,
		CustomIndex:  customIndex,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting controller",
		zap.String("addr", cfg.ListenAddr),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("auth_mode", string(cfg.AuthMode)),
		zap.String("inventory_type", cfg.InventoryType),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// openInventory constructs the configured inventory backend. Only
// yamlfile's config surface is fully specified by the controller's own
// configuration document; netbox and nms are wired from InventoryDSN/
// InventoryTable when selected, matching the interface-only scope the
// two backends otherwise occupy.
func openInventory(cfg config.ControllerConfig) (inventory.Plugin, error) {
	switch cfg.InventoryType {
	case "", "yamlfile":
		return yamlfile.Load(cfg.InventoryPath)
	case "netbox":
		return netbox.Open(cfg.InventoryDSN, cfg.InventoryTable)
	case "nms":
		return nms.Open(cfg.InventoryDSN, cfg.InventoryTable)
	default:
		return nil, fmt.Errorf("unknown inventory_type %q", cfg.InventoryType)
	}
}

func openCredential(cfg config.ControllerConfig) (credential.Plugin, error) {
	switch cfg.CredentialPlugin {
	case "", "file":
		return credfile.Load(cfg.CredentialPath)
	default:
		return nil, fmt.Errorf("unknown credential_plugin %q", cfg.CredentialPlugin)
	}
}

func buildAuthenticator(cfg config.ControllerConfig, logger *zap.Logger) (*auth.Authenticator, error) {
	if cfg.AuthMode == config.AuthNone {
		return nil, nil
	}

	a := &auth.Authenticator{
		Mode: auth.Mode(cfg.AuthMode),
		Policy: auth.ProviderPolicy{
			AllowedUsers:     cfg.AllowedUsers,
			AllowedDomains:   cfg.AllowedDomains,
			AllowedUserRegex: cfg.AllowedUserRegex,
		},
	}

	if cfg.AuthMode == config.AuthAPIKey || cfg.AuthMode == config.AuthHybrid {
		store, err := auth.NewAPIKeyStore(cfg.APIKeyDBPath)
		if err != nil {
			return nil, fmt.Errorf("open api key store: %w", err)
		}
		a.APIKeys = store
		a.APIKeyHeader = "Authorization"
		if len(cfg.APIKeyHeaders) > 0 {
			a.APIKeyHeader = cfg.APIKeyHeaders[0]
		}
	}

	if cfg.AuthMode == config.AuthJWT || cfg.AuthMode == config.AuthHybrid {
		providers := make(map[string]auth.Provider, len(cfg.JWTProviders))
		for _, p := range cfg.JWTProviders {
			provider, err := auth.NewProvider(auth.ProviderConfig{
				Name:      p.Name,
				Variant:   auth.Variant(p.Variant),
				IssuerURL: p.IssuerURL,
				ClientID:  p.ClientID,
				JWKSURL:   p.JWKSURL,
			})
			if err != nil {
				return nil, fmt.Errorf("build jwt provider %s: %w", p.Name, err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := provider.Discover(ctx); err != nil {
				cancel()
				logger.Warn("jwt provider discovery failed; discovery is not retried and tokens for this provider are rejected",
					zap.String("provider", p.Name), zap.Error(err))
			} else {
				cancel()
			}
			providers[p.Name] = provider
		}
		a.Providers = providers
	}

	return a, nil
}

// loadTemplateIndex reads "index.csv" inside dir, if present. A missing
// index is not fatal — both template sources are optional, and parser
// dispatch falls through the precedence chain around a nil index.
func loadTemplateIndex(logger *zap.Logger, dir string, source parser.Source) *parser.Index {
	if dir == "" {
		return nil
	}
	csvPath := filepath.Join(dir, "index.csv")
	idx, err := parser.LoadIndex(csvPath, dir, source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("no template index found, source disabled", zap.String("source", string(source)), zap.String("path", csvPath))
			return nil
		}
		logger.Warn("failed to load template index, source disabled", zap.String("source", string(source)), zap.Error(err))
		return nil
	}
	return idx
}
