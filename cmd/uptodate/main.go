package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ritzau/fast-uptodate/pkg/config"
	"github.com/ritzau/fast-uptodate/pkg/logging"
	"github.com/ritzau/fast-uptodate/pkg/model"
	"github.com/ritzau/fast-uptodate/pkg/output"
	"github.com/ritzau/fast-uptodate/pkg/project"
	"github.com/ritzau/fast-uptodate/pkg/snapshot"
	"github.com/ritzau/fast-uptodate/pkg/telemetry"
	"github.com/ritzau/fast-uptodate/pkg/uptodate"
	"github.com/ritzau/fast-uptodate/pkg/watcher"
	"github.com/ritzau/fast-uptodate/pkg/web"
	"github.com/spf13/pflag"
)

// Exit codes of a one-shot check
const (
	exitUpToDate    = 0
	exitNotUpToDate = 1
	exitError       = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	flags := pflag.NewFlagSet("uptodate", pflag.ContinueOnError)
	flags.String("project", "project.toml", "Path to the project manifest")
	flags.String("action", "Build", "Build action to check (Build, Rebuild, Clean, ...)")
	flags.Bool("enabled", true, "Enable the fast up-to-date check")
	flags.Bool("serve", false, "Serve the check over HTTP instead of checking once")
	flags.Int("port", 8080, "Port for the HTTP API (only used with --serve)")
	flags.Bool("watch", false, "Reload the manifest when it or a project file changes (only used with --serve)")
	flags.String("verbosity", "", "Log level: trace, debug, info, warn, error")
	flags.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	flags.Bool("json", false, "Log in JSON format")
	flags.Int("debounce", 200, "Quiet period in milliseconds before a reload")
	flags.Int("maxwait", 2000, "Longest a reload may be postponed in milliseconds")
	flags.Bool("prime", false, "Run a silent check first to establish the item baseline")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitUpToDate
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	if err := setupLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Serve {
		if err := serve(ctx, cfg); err != nil {
			logging.Error("server stopped", "error", err)
			return exitError
		}
		return exitUpToDate
	}
	return checkOnce(cfg, stdout)
}

func setupLogging(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Verbosity)
	if err != nil {
		return err
	}
	if cfg.Verbosity == "" {
		switch {
		case cfg.VerboseCnt >= 2:
			level = logging.LevelTrace
		case cfg.VerboseCnt == 1:
			level = slog.LevelDebug
		}
	}
	logging.Configure(os.Stderr, level, cfg.JSON)
	return nil
}

// checkOnce loads the manifest, checks it and prints the verdict
func checkOnce(cfg *config.Config, stdout io.Writer) int {
	action, err := model.ParseBuildAction(cfg.Action)
	if err != nil {
		logging.Error("invalid action", "error", err)
		return exitError
	}

	m, err := project.Load(cfg.Project)
	if err != nil {
		logging.Error("failed to load project manifest", "path", cfg.Project, "error", err)
		return exitError
	}

	store := snapshot.NewStore()
	store.Apply(m.Update(0))
	checker := uptodate.NewChecker(store, uptodate.WithTelemetry(telemetry.NewLogService(nil)))

	if !cfg.Enabled {
		name := uptodate.ProjectName(store.Current().Properties.FullPath)
		output.PrintCheckReport(stdout, uptodate.Result{
			Lines: []string{uptodate.FormatLine(web.DisabledMessage, name)},
		}, store.Current().Summary(), cfg.VerboseCnt > 0)
		return exitNotUpToDate
	}

	// A fresh process has no item baseline, so its first check always reports
	// changed items; priming records the baseline against the current manifest
	if cfg.Prime && action == model.ActionBuild {
		primed := checker.Check(action)
		logging.Debug("primed item baseline", "reason", string(primed.Reason))
	}

	res := checker.Check(action)
	output.PrintCheckReport(stdout, res, store.Current().Summary(), cfg.VerboseCnt > 0)
	if res.UpToDate {
		return exitUpToDate
	}
	return exitNotUpToDate
}

// serve keeps the store current and answers checks over HTTP until ctx is done
func serve(ctx context.Context, cfg *config.Config) error {
	publisher := web.NewPublisher()
	defer publisher.Close()

	store := snapshot.NewStore(snapshot.WithPublisher(publisher))
	versions := &uptodate.VersionCounter{}
	updates := make(chan snapshot.Update)
	go store.Run(ctx, updates)

	var fw *watcher.FileWatcher
	if cfg.Watch {
		var err error
		fw, err = watcher.NewFileWatcher(cfg.Project, func() { versions.Bump() })
		if err != nil {
			return err
		}
	}

	reloader := watcher.NewReloader(cfg.Project, versions, updates, fw)
	if err := reloader.Reload(ctx); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	if fw != nil {
		fw.Start(ctx)
		debouncer := watcher.NewDebouncer(fw.Events(), cfg.Debounce(), cfg.MaxWait())
		debouncer.Start(ctx)
		go reloader.Run(ctx, debouncer.Output())
	}

	tasks := &uptodate.TaskQueue{}
	checker := uptodate.NewChecker(store,
		uptodate.WithProjectVersionSource(versions),
		uptodate.WithTaskTracker(tasks),
		uptodate.WithTelemetry(telemetry.Multi{
			telemetry.NewPublisherService(publisher),
			telemetry.NewLogService(nil),
		}),
	)

	server := web.NewServer(checker, store, publisher,
		web.WithEnabled(cfg.Enabled),
		web.WithTasks(tasks),
	)
	return server.Start(ctx, cfg.Port)
}
