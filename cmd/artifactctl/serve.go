package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow"
	"github.com/BaSui01/artifactflow/internal/server"
	"github.com/BaSui01/artifactflow/internal/tlsutil"
)

// =============================================================================
// 🌐 serve
// =============================================================================

// runServe exposes /healthz, /readyz, /stats and /metrics until ctx ends.
// The endpoint is read-only and opt-in; the store stays an embedded library
// and every mutation goes through the in-process Manager.
func (a *app) runServe(ctx context.Context, args []string) error {
	fs, configPath := a.flags("serve")
	addr := fs.String("addr", "", "Listen address (overrides server.addr)")
	interval := fs.Duration("verify-interval", -1, "Full integrity verification interval, 0 disables (overrides server.verify_interval)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *interval >= 0 {
		cfg.Server.VerifyInterval = *interval
	}
	// /metrics 总是需要采集器
	cfg.Metrics.Enabled = true

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	store, err := artifactflow.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("close store", zap.Error(cerr))
		}
	}()

	opts := server.HandlerOptions{
		Stats:   store,
		Version: Version,
		Logger:  logger,
	}
	if c := store.Catalog(); c != nil {
		opts.Checks = append(opts.Checks, server.HealthCheck{Name: "catalog", Check: c.Ping})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Server.VerifyInterval > 0 {
		opts.Verifier = server.NewVerifier(store, cfg.Server.VerifyInterval, logger)
		go opts.Verifier.Run(ctx)
	}

	srv := server.NewManager(server.NewHandler(opts), server.ConfigFrom(cfg.Server), logger)
	if cfg.Server.TLSCertFile != "" {
		tlsCfg, err := tlsutil.ServerTLSConfig(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		if err != nil {
			return err
		}
		err = srv.StartTLS(tlsCfg)
	} else {
		err = srv.Start()
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Serving on %s\n", srv.ListenAddr())
	if a.ready != nil {
		a.ready <- srv.ListenAddr()
	}
	return srv.Wait(ctx)
}
