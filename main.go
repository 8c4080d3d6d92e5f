package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/heroku/color"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/aar10n/portpatch/pkg/backup"
	"github.com/aar10n/portpatch/pkg/config"
	"github.com/aar10n/portpatch/pkg/logger"
	"github.com/aar10n/portpatch/pkg/manifest"
	"github.com/aar10n/portpatch/pkg/migrate"
)

var (
	signalHandler = make(chan struct{})
	version       = "dev"     // set by goreleaser
	commit        = "unknown" // set by goreleaser
	date          = "unknown" // set by goreleaser
)

func main() {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	f := parseFlags()

	if f.showVersion {
		fmt.Printf("portpatch %s\n", version)
		if commit != "unknown" {
			fmt.Printf("commit: %s\n", commit)
		}
		if date != "unknown" {
			fmt.Printf("built: %s\n", date)
		}
		os.Exit(0)
	}

	_, noColorEnv := os.LookupEnv("NO_COLOR")
	color.Disable(f.noColor || noColorEnv)
	logger.SetVerbose(f.verbose)

	if f.configFile != "" {
		if _, err := os.Stat(f.configFile); os.IsNotExist(err) {
			logger.Errorf("configuration file %s not found", f.configFile)
			os.Exit(1)
		}
	}

	cfg, err := config.LoadConfig(f.configFile)
	if err != nil {
		logger.Errorf("loading configuration: %v", err)
		os.Exit(1)
	}

	if f.list {
		for _, t := range cfg.Targets {
			fmt.Printf("%-20s %-14s %s\n", t.Name, t.Kind, t.Prefix)
		}
		os.Exit(0)
	}

	portsDir, err := filepath.Abs(f.portsDir)
	if err != nil {
		logger.Errorf("resolving ports directory: %v", err)
		os.Exit(1)
	}

	if f.restore != "" {
		restored, err := backup.Restore(f.restore, portsDir)
		if err != nil {
			logger.Errorf("restoring %s: %v", f.restore, err)
			os.Exit(1)
		}
		logger.Info("Restored %d file(s) from %s into %s", len(restored), f.restore, portsDir)
		os.Exit(0)
	}

	jobs, err := migrate.ParseJobs(f.jobs)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	targetFilter := pflag.Args()
	if len(targetFilter) > 0 {
		for _, name := range targetFilter {
			if !cfg.Known(name) {
				logger.Errorf("target '%s' not found in configuration", name)
				os.Exit(1)
			}
		}
		logger.Info("Loaded %d targets from %s (filtered to %d)", len(cfg.Targets), cfg.FilePath, len(targetFilter))
	} else {
		logger.Info("Loaded %d targets from %s", len(cfg.Targets), cfg.FilePath)
	}
	logger.Info("Ports directory: %s", portsDir)
	logger.Info("")

	migratorCfg := migrate.MigratorConfig{
		DryRun:     f.dryRun,
		Jobs:       jobs,
		BackupPath: f.backup,
	}

	migrator, err := migrate.NewMigrator(migratorCfg, cfg, portsDir)
	if err != nil {
		logger.Errorf("creating migrator: %v", err)
		os.Exit(1)
	}

	ctx := setupSignalHandler(context.Background())
	runErr := migrator.Run(ctx, targetFilter)
	migrator.PrintSummary()

	if runErr != nil {
		if errors.Is(runErr, manifest.ErrParse) {
			logger.Errorf("aborted on unparseable manifest: %v", runErr)
		} else {
			logger.Errorf("Migration encountered errors: %v", runErr)
		}
		os.Exit(1)
	}
	if n := migrator.Failed(); n > 0 {
		logger.Warn("%d target(s) could not be migrated, see the errors above", n)
	}
}

func setupSignalHandler(ctx context.Context) context.Context {
	close(signalHandler)
	ctx, cancel := context.WithCancelCause(ctx)

	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		cancel(context.Canceled)
		<-c
		os.Exit(1)
	}()

	return ctx
}
