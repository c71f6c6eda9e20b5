// Command maxbackupd is the Service: it supervises per-user backup
// workers and exposes the IPC and diagnostics surfaces described by the
// daemon's bootstrap configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kellyelton/maxbackup/internal/backup"
	"github.com/kellyelton/maxbackup/internal/bootstrap"
	"github.com/kellyelton/maxbackup/internal/diagnostics"
	"github.com/kellyelton/maxbackup/internal/health"
	"github.com/kellyelton/maxbackup/internal/identity"
	"github.com/kellyelton/maxbackup/internal/ipc"
	"github.com/kellyelton/maxbackup/internal/metrics"
	"github.com/kellyelton/maxbackup/internal/state"
	"github.com/kellyelton/maxbackup/internal/supervisor"
	loggerPkg "github.com/kellyelton/maxbackup/pkg/logger"
	"github.com/spf13/afero"
)

var (
	version   string = "dev"
	commit    string = "none"
	buildDate string = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/maxbackup/config.yaml", "Path to the daemon's bootstrap configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("maxbackupd %s (commit %s) built on %s\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg := bootstrap.ServiceBootstrapConfig{}
	if err := bootstrap.NewYAMLLoader(*configPath).Load(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load bootstrap configuration: %v\n", err)
		os.Exit(1)
	}
	if err := bootstrap.Validate(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid bootstrap configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting maxbackupd",
		loggerPkg.String("version", version),
		loggerPkg.String("commit", commit),
		loggerPkg.String("buildDate", buildDate),
		loggerPkg.String("dataDir", cfg.DataDir))

	fs := afero.NewOsFs()
	if err := fs.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Error("failed to create data directory", loggerPkg.Error(err))
		os.Exit(1)
	}

	store := state.NewStore(fs, filepath.Join(cfg.DataDir, "config.json"), log)
	resolver := identity.NewPosixResolver()
	collector := metrics.NewCollector("prometheus")
	probe := backup.NoAttributeProbe{}

	sup := supervisor.New(store, resolver, fs, probe, log, collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.StartAllFromState(ctx)

	socketPath := filepath.Join(cfg.DataDir, cfg.PipeName+".sock")
	server, err := ipc.Listen(socketPath, sup, resolver, store, log, collector)
	if err != nil {
		log.Error("failed to start ipc server", loggerPkg.Error(err))
		os.Exit(1)
	}

	go func() {
		if err := server.Serve(ctx); err != nil {
			log.Error("ipc server stopped with an error", loggerPkg.Error(err))
		}
	}()

	var diagServer *diagnostics.Server
	if cfg.Diagnostics.Enabled {
		checker := health.NewChecker(version, buildDate)
		checker.AddCheck(health.NewStateStoreCheck(store))
		checker.AddCheck(health.NewWorkerLivenessCheck(sup.WorkerStates))
		diagServer = diagnostics.New(cfg.Diagnostics.BindAddress, checker, log)
		go func() {
			if err := diagServer.Start(); err != nil {
				log.Error("diagnostics server stopped with an error", loggerPkg.Error(err))
			}
		}()
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-stopCh

	log.Info("received shutdown signal, stopping workers")
	cancel()
	server.Close()

	if diagServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		diagServer.Stop(shutdownCtx)
		shutdownCancel()
	}

	shutdownTimeout := 60 * time.Second
	if serviceCfg, err := store.Load(); err == nil {
		shutdownTimeout = time.Duration(serviceCfg.WorkerShutdownTimeoutSeconds) * time.Second
	}
	sup.Shutdown(shutdownTimeout)

	log.Info("maxbackupd stopped")
}

func initLogger(cfg bootstrap.LoggingConfig) (loggerPkg.Logger, error) {
	log, err := loggerPkg.NewRotatingZapLogger(cfg, cfg.Directory, "service.log")
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return log, nil
}
