package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"calmerge/internal/calendar"
	"calmerge/internal/config"
	"calmerge/internal/ics"
	appLog "calmerge/internal/log"
	"calmerge/internal/model"
	"calmerge/internal/scheduler"
	"calmerge/internal/week"
	"calmerge/internal/web"
)

// stringList collects a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	week       string
	imports    stringList
}

func main() {
	flags := parseFlags()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Error("failed to read .env", err)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Setup(appLog.Level(conf.LogLevel), conf.PrettyLog)

	loc, err := ics.ResolveLocation(conf.Timezone)
	if err != nil {
		appLog.Warn("timezone not found; using local clock offset", "timezone", conf.Timezone, "fallback", loc.String())
	}

	appLog.Info("calmerge starting",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"backend", conf.Storage.Backend,
		"refresh", conf.RefreshCron,
		"expand_recurrences", conf.ExpandRecurrences,
		"sources", len(conf.Sources),
	)

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	code := run(ctx, conf, flags, loc)
	cancel()
	_ = appLog.Sync()
	os.Exit(code)
}

func run(ctx context.Context, conf *config.Config, flags flagConfig, loc *time.Location) int {
	backend, closeBackend, err := openBackend(ctx, conf)
	if err != nil {
		appLog.Error("failed to open storage backend", err, "backend", conf.Storage.Backend)
		return 1
	}
	defer closeBackend()

	svc := calendar.NewService(backend, loc, conf.ExpandRecurrences)

	if len(flags.imports) > 0 {
		if err := importFiles(ctx, svc, flags.imports); err != nil {
			appLog.Error("import failed", err)
			return 1
		}
	}

	switch {
	case flags.week != "":
		return printWeek(ctx, svc, flags.week, loc)
	case flags.once:
		res, err := svc.Merge(ctx)
		fmt.Println(res.Message)
		if err != nil {
			return 1
		}
		return 0
	}

	return serve(ctx, conf, svc, loc)
}

func serve(ctx context.Context, conf *config.Config, svc *calendar.Service, loc *time.Location) int {
	refresher, err := scheduler.NewRefresher(svc, conf.RefreshCron, loc)
	if err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		return 1
	}
	if err := refresher.Start(ctx); err != nil {
		appLog.Error("failed to start refresher", err)
		return 1
	}
	defer refresher.Stop()

	// A merged calendar should exist before the first request; later
	// merges come from the schedule or the API.
	if _, err := svc.EnsureMerged(ctx); err != nil {
		if errors.Is(err, ics.ErrNoSources) {
			appLog.Warn("no calendars to merge yet", "backend", conf.Storage.Backend)
		} else {
			appLog.Error("initial merge failed", err)
		}
	}

	srv := web.NewServer(conf, svc)
	srv.SetRefresher(refresher.Trigger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			appLog.Error("HTTP server failed", err)
			return 1
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			appLog.Error("HTTP server shutdown failed", err)
		}
	}

	appLog.Info("calmerge exiting")
	return 0
}

// importFiles stores each file under the label derived from its name and
// merges after each one.
func importFiles(ctx context.Context, svc *calendar.Service, paths []string) error {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		res, err := svc.Import(ctx, model.LabelFromName(p), data)
		if err != nil {
			return fmt.Errorf("import %s: %w", p, err)
		}
		fmt.Println(res.Message)
	}
	return nil
}

func printWeek(ctx context.Context, svc *calendar.Service, input string, loc *time.Location) int {
	day, err := week.ParseDate(input, time.Now().In(loc))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	win, err := svc.Week(ctx, day)
	if errors.Is(err, ics.ErrNoSources) {
		fmt.Println("No calendar files found")
		return 1
	}
	if err != nil {
		appLog.Error("failed to build week", err)
		return 1
	}

	if err := writeAgenda(os.Stdout, win, loc); err != nil {
		return 1
	}
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./calmerge.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Merge once and exit")
	flag.StringVar(&cfg.week, "week", "", `Print the agenda of the week containing this date (YYYY-MM-DD, "today", "next monday") and exit`)
	flag.Var(&cfg.imports, "import", "Store an .ics file in the storage backend before merging (repeatable)")

	flag.Parse()

	return cfg
}
