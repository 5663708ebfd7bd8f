package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"engagebot/internal/app"
	"engagebot/internal/config"
	"engagebot/internal/driver"
	"engagebot/internal/generate"
	"engagebot/internal/lock"
	"engagebot/internal/storage"
	logx "engagebot/pkg/logx"
	"engagebot/pkg/randx"
)

const (
	exitFailure  = 1
	exitLockHeld = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath string
		health  bool
		test    bool
		dryRun  bool
		account string
		debug   bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.BoolVar(&health, "health", false, "probe dependencies and exit")
	flag.BoolVar(&test, "test", false, "run a single session immediately, then exit")
	flag.BoolVar(&dryRun, "dry-run", false, "log actions without performing them")
	flag.StringVar(&account, "account", "", "restrict the run to one account handle")
	flag.BoolVar(&debug, "debug", false, "force debug-level logging")
	flag.Parse()

	// Env fallbacks mirror the flags for systemd unit files.
	if !dryRun {
		dryRun = envBool("DRY_RUN")
	}
	if !debug {
		debug = envBool("DEBUG")
	}
	if account == "" {
		account = os.Getenv("TEST_ACCOUNT")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return exitFailure
	}

	logCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console == nil || *cfg.Logging.Console,
	}
	if debug {
		logCfg.Level = "debug"
	}
	if cfg.Logging.File != "" {
		logCfg.File = logx.FileConfig{Enabled: true, Path: cfg.Logging.File}
	}
	log := logx.New(logCfg)
	defer log.Close()
	mgr.SetLogger(log)

	if err := realMain(ctx, mgr, cfg, log, app.Options{
		DryRun:      dryRun,
		TestMode:    test,
		OnlyAccount: account,
	}, health); err != nil {
		if errors.Is(err, lock.ErrHeld) {
			log.Error("another instance is running", logx.Err(err))
			return exitLockHeld
		}
		log.Error("fatal", logx.Err(err))
		return exitFailure
	}
	return 0
}

func realMain(ctx context.Context, mgr *config.Manager, cfg *config.Config, log logx.Logger, opts app.Options, health bool) error {
	lk := lock.New(cfg.LockPath())
	if err := lk.Acquire(); err != nil {
		return err
	}
	defer lk.Release()

	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy}, log)
	if err != nil {
		return err
	}
	defer store.Close()

	gen, err := generate.New(cfg.Generation, log)
	if err != nil {
		return err
	}

	rnd := randx.New()
	drv, err := buildDriver(cfg, opts, rnd, log)
	if err != nil {
		return err
	}

	a, err := app.New(mgr, store, drv, gen, rnd, opts, log)
	if err != nil {
		return err
	}

	if health {
		return a.HealthCheck(ctx)
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	defer daemon.SdNotify(false, daemon.SdNotifyStopping)

	return a.Run(ctx)
}

// buildDriver picks the browser sidecar when one is configured, otherwise
// a synthetic driver that only makes sense together with dry-run.
func buildDriver(cfg *config.Config, opts app.Options, rnd *randx.Rand, log logx.Logger) (driver.Driver, error) {
	var d driver.Driver
	if cfg.Driver.BaseURL != "" {
		h, err := driver.NewHTTP(cfg.Driver, log)
		if err != nil {
			return nil, err
		}
		d = h
	} else {
		if !opts.DryRun {
			return nil, errors.New("driver.base_url is required unless running with -dry-run")
		}
		d = driver.NewSim(rnd, log)
	}
	if opts.DryRun {
		d = driver.NewDryRun(d, log)
	}
	return d, nil
}

func envBool(name string) bool {
	switch os.Getenv(name) {
	case "1", "true", "TRUE", "yes":
		return true
	}
	return false
}
