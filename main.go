package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"mpkern/app"
	"mpkern/hal"
	"mpkern/internal/buildinfo"
	"mpkern/internal/config"
	"mpkern/internal/tracing"
)

var errStopped = errors.New("stopped")

func main() {
	var (
		configPath  string
		headless    bool
		hz          int
		ticks       int
		cores       int
		trace       bool
		traceOut    string
		interactive bool
		script      string
	)
	flag.StringVar(&configPath, "config", "", "YAML configuration file.")
	flag.BoolVar(&headless, "headless", false, "Run without a window.")
	flag.IntVar(&hz, "hz", 0, "Timer frequency (overrides the config).")
	flag.IntVar(&ticks, "ticks", 0, "Stop after N ticks in headless mode (0 = run forever).")
	flag.IntVar(&cores, "cores", 0, "Number of cores (overrides the config).")
	flag.BoolVar(&trace, "trace", false, "Export session traces.")
	flag.StringVar(&traceOut, "trace-out", "", "Trace output file (default stdout).")
	flag.BoolVar(&interactive, "interactive", false, "Read console commands from the terminal.")
	flag.StringVar(&script, "cmd", "", "Console commands to run after boot, separated by ';'.")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "headless":
			cfg.Run.Headless = headless
		case "hz":
			cfg.Hz = hz
		case "ticks":
			cfg.Run.Ticks = ticks
		case "cores":
			cfg.Cores = cores
		case "trace":
			cfg.Trace.Enabled = trace
		case "trace-out":
			cfg.Trace.Output = traceOut
		}
	})

	if cfg.Trace.Enabled {
		if err := tracing.Init("mpkern", buildinfo.Short(), cfg.Trace.Output); err != nil {
			fatal(err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracing.Shutdown(ctx); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}()
	}

	if err := run(cfg, interactive, script); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config, interactive bool, script string) error {
	sys, err := app.New(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer sys.Shutdown()
	if err := sys.Boot(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	console := sys.Console()
	if script != "" {
		cmds := strings.ReplaceAll(script, ";", "\n")
		if err := console.Serve(strings.NewReader(cmds), os.Stdout); err != nil {
			return err
		}
	}
	if interactive {
		go func() {
			defer stop()
			if err := console.Interactive(); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}()
	}

	if cfg.Run.Headless {
		err := hal.RunHeadless(ctx, sys.Host(), sys.Step, hal.HeadlessConfig{
			Enabled: true,
			Ticks:   uint64(cfg.Run.Ticks),
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	err = hal.RunWindow(sys.Host(), func() error {
		if ctx.Err() != nil {
			return errStopped
		}
		return sys.Step()
	})
	if errors.Is(err, errStopped) {
		return nil
	}
	return err
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
