package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/tagrules/internal/cache"
	"github.com/alfredjeanlab/tagrules/internal/config"
	"github.com/alfredjeanlab/tagrules/internal/events"
	"github.com/alfredjeanlab/tagrules/internal/expand"
	"github.com/alfredjeanlab/tagrules/internal/metrics"
	"github.com/alfredjeanlab/tagrules/internal/presence"
	"github.com/alfredjeanlab/tagrules/internal/ruletree"
	"github.com/alfredjeanlab/tagrules/internal/server"
	"github.com/alfredjeanlab/tagrules/internal/store/postgres"
	"github.com/alfredjeanlab/tagrules/internal/store/sqlite"
	"github.com/alfredjeanlab/tagrules/internal/store/sqlstore"
	rulesync "github.com/alfredjeanlab/tagrules/internal/sync"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the tagrules HTTP and gRPC servers",
	GroupID: "system",
	// No client connection for the server itself.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}

		// Optional snapshot cache.
		var opts []ruletree.Option
		var redisCache *cache.RedisCache
		if cfg.RedisURL != "" {
			redisCache, err = cache.NewRedisCache(cfg.RedisURL)
			if err != nil {
				logger.Error("snapshot cache disabled", "err", err)
			} else {
				opts = append(opts, ruletree.WithCache(redisCache))
				logger.Info("snapshot cache enabled", "ttl", cache.DefaultTTL)
			}
		}
		rules := ruletree.New(store, opts...)

		if v, err := rules.Version(context.Background()); err == nil {
			metrics.SetVersion(v)
		}

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (TAGRULES_NATS_URL not set)")
		}

		rulesServer := server.NewRulesServer(rules, expand.New(store), publisher, cfg.InstanceID)
		rulesServer.Presence.StartReaper(&presence.ReaperConfig{
			IdleThreshold: cfg.PresenceTTL,
			EvictAfter:    2 * cfg.PresenceTTL,
			OnIdle: func(clientID string) {
				logger.Info("editor idle", "client_id", clientID)
			},
		})

		// Follow changes made through other instances.
		followCtx, stopFollow := context.WithCancel(context.Background())
		var subscriber *events.NATSSubscriber
		if cfg.NATSURL != "" {
			subscriber, err = events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				logger.Error("failed to create subscriber", "err", err)
			} else if err := rulesServer.Follow(followCtx, subscriber); err != nil {
				logger.Error("failed to follow rule changes", "err", err)
			} else {
				logger.Info("following rule changes", "instance", cfg.InstanceID)
			}
		}

		grpcServer := server.NewGRPCServer(rulesServer, cfg.AuthToken)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			stopFollow()
			publisher.Close()
			store.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: rulesServer.NewHTTPHandler(cfg.AuthToken),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		scheduler := startSync(cfg, rules, logger)

		logger.Info("tagrules server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"instance", cfg.InstanceID,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		stopFollow()
		if subscriber != nil {
			subscriber.Close()
		}
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}
		rulesServer.Presence.Stop()

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if redisCache != nil {
			if err := redisCache.Close(); err != nil {
				logger.Error("error closing cache", "err", err)
			}
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// openStore connects to the backend named by TAGRULES_DATABASE_URL.
func openStore(cfg *config.Config, logger *slog.Logger) (*sqlstore.Store, error) {
	backend, target, err := cfg.Backend()
	if err != nil {
		return nil, err
	}
	logger.Info("opening store", "backend", backend)
	if backend == config.BackendSQLite {
		return sqlite.New(target)
	}
	return postgres.New(target)
}

// startSync starts periodic backups when a destination is configured.
func startSync(cfg *config.Config, rules *ruletree.Service, logger *slog.Logger) *rulesync.Scheduler {
	if cfg.SyncInterval <= 0 {
		return nil
	}
	var dests []rulesync.Destination

	if cfg.SyncS3Bucket != "" {
		s3Dest, err := rulesync.NewS3Destination(
			context.Background(),
			cfg.SyncS3Bucket,
			cfg.SyncS3Key,
			cfg.SyncS3Region,
			cfg.SyncS3Endpoint,
		)
		if err != nil {
			logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}

	if cfg.SyncGitRepo != "" {
		dests = append(dests, rulesync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
	}

	if len(dests) == 0 {
		return nil
	}
	scheduler := rulesync.NewScheduler(rules, dests, cfg.SyncInterval, logger)
	scheduler.Start()
	logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
	return scheduler
}
