package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/kenliao94/amqconsole/pkg/config"
	"github.com/kenliao94/amqconsole/pkg/console"
	"github.com/kenliao94/amqconsole/pkg/metrics"
	"github.com/kenliao94/amqconsole/pkg/refresh"
	"github.com/kenliao94/amqconsole/pkg/remote"
	"github.com/kenliao94/amqconsole/pkg/scheduler"
	"github.com/kenliao94/amqconsole/pkg/store"
	"github.com/kenliao94/amqconsole/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"c" long:"config" env:"CONFIG" description:"config file, defaults are used if not set"`
	Listen string `short:"l" long:"listen" env:"LISTEN" description:"listen address, overrides server.listen"`

	Remote struct {
		URL      string `long:"url" env:"URL" description:"broker admin API base url, overrides remote.url"`
		User     string `long:"user" env:"USER" description:"broker admin user"`
		Password string `long:"password" env:"PASSWORD" description:"broker admin password"`
	} `group:"remote" namespace:"remote" env-namespace:"REMOTE"`

	NoAutoRefresh bool `long:"no-auto-refresh" env:"NO_AUTO_REFRESH" description:"start with polling paused"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	if opts.NoColor {
		color.NoColor = true
	}
	SetupLog(opts.Debug, opts.Remote.Password)

	lgr.Printf("[INFO] starting amqconsole version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		lgr.Print("[INFO] termination signal received")
		cancel()
	}()

	err := run(ctx, opts)
	cancel()

	if err != nil {
		lgr.Printf("[ERROR] %v", err)
		os.Exit(1)
	}

	lgr.Print("[INFO] shutdown complete")
}

// run wires the console and serves it until ctx is done
func run(ctx context.Context, opts Opts) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Remote.Password != "" && cfg.Remote.Password != opts.Remote.Password {
		SetupLog(opts.Debug, cfg.Remote.Password) // password came from the config file
	}

	client := remote.NewClient(remote.Params{
		BaseURL:   cfg.Remote.URL,
		Timeout:   cfg.Remote.Timeout,
		RateLimit: cfg.Remote.RateLimit,
		Burst:     cfg.Remote.Burst,
		User:      cfg.Remote.User,
		Password:  cfg.Remote.Password,
	})

	history, err := metrics.New(ctx, metrics.Params{Size: cfg.History.Size, DSN: cfg.History.DSN, Retention: cfg.History.Retention})
	if err != nil {
		return fmt.Errorf("failed to open statistics history: %w", err)
	}
	defer func() {
		if err := history.Close(); err != nil {
			lgr.Printf("[WARN] failed to close statistics history: %v", err)
		}
	}()

	sched := scheduler.NewScheduler(scheduler.Params{DefaultInterval: cfg.Refresh.Interval})
	defer sched.Close()

	rc := cfg.Refresh
	c := console.New(console.Params{
		Remote:       client,
		Stores:       store.NewRegistry(),
		Scheduler:    sched,
		Orchestrator: refresh.New(cfg.Remote.Timeout),
		History:      history,
		AutoRefresh:  rc.IsEnabled() && !opts.NoAutoRefresh,
		PageSize:     cfg.View.PageSize,
		Broker:       console.BrokerOptions{Interval: rc.Broker.Interval, Statistics: rc.Broker.Statistics, Health: rc.Broker.Health},
		Destinations: console.DestinationOptions{Interval: rc.Destinations.Interval, Type: rc.Destinations.Type, PageSize: rc.Destinations.PageSize},
		Connections:  console.ConnectionOptions{Interval: rc.Connections.Interval},
		Messages:     console.MessageOptions{Interval: rc.Messages.Interval, PageSize: rc.Messages.PageSize},
		Details:      console.DetailOptions{Interval: rc.Details.Interval},
	})

	srv := server.New(cfg, c, nil, history, revision, opts.Debug)
	return srv.Run(ctx)
}

// loadConfig reads the config file, or uses defaults, and applies cli overrides
func loadConfig(opts Opts) (*config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return nil, err
		}
	}

	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}
	if opts.Remote.URL != "" {
		cfg.Remote.URL = opts.Remote.URL
	}
	if opts.Remote.User != "" {
		cfg.Remote.User = opts.Remote.User
	}
	if opts.Remote.Password != "" {
		cfg.Remote.Password = opts.Remote.Password
	}
	return cfg, nil
}

// SetupLog configures lgr and the standard logger, secrets are masked in the output
func SetupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	var nonEmpty []string
	for _, s := range secs {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) > 0 {
		logOpts = append(logOpts, lgr.Secret(nonEmpty...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
