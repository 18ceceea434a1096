package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/digineo/purged"
	"github.com/digineo/purged/config"
	"github.com/digineo/purged/mirror"
	_ "github.com/digineo/purged/mirror/memcached"
	_ "github.com/digineo/purged/mirror/nop"
	_ "github.com/digineo/purged/mirror/redis"
	"github.com/digineo/purged/service"
	"github.com/spf13/afero"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	addr       = ":8081"
	configFile = "/etc/purged/purged.yml"
	logLevel   = zapcore.InfoLevel.String()
)

var log = zap.L()

func main() {
	purged.PrintBanner(os.Stdout)

	flag.StringVarP(&addr, "listen-address", "b", addr,
		"bind `address` for the HTTP API, overrides the configuration file")
	flag.StringVarP(&configFile, "config", "c", configFile,
		"`path` to configuration file")
	flag.StringVar(&logLevel, "log-level", logLevel,
		"set logging verbosity, acceptable values are: [debug, info, warn, error, dpanic, panic, fatal]")
	versionRequested := flag.BoolP("version", "v", false, `print version information and exit`)
	flag.Parse()

	if *versionRequested {
		printVersion()
		os.Exit(0)
	}

	if lvl, err := zapcore.ParseLevel(logLevel); err != nil {
		zap.L().Fatal("error parsing log level",
			zap.String("flag", "--log-level"),
			zap.Error(err))
	} else if log, err = newLogger(lvl); err != nil {
		zap.L().Fatal("error constructing logger",
			zap.Error(err))
	} else {
		defer func() { _ = log.Sync() }()
	}

	fsys := afero.NewOsFs()
	cfg, err := config.LoadFile(fsys, configFile)
	if err != nil {
		log.Fatal("error loading configuration",
			zap.String("flag", "--config"),
			zap.Error(err))
	}
	if cfg.Listen != "" && !flag.CommandLine.Changed("listen-address") {
		addr = cfg.Listen
	}

	setup, err := cfg.Build(fsys, log)
	if err != nil {
		log.Fatal("error setting up cache zones",
			zap.Strings("available-mirrors", mirror.AvailableAdapters()),
			zap.Error(err))
	}

	stop, err := service.Start(service.Options{
		Addr:   addr,
		Routes: setup.Routes,
		Zones:  setup.Zones,
		Mirror: mirrorName(cfg.Mirror),
	}, log)
	if err != nil {
		log.Fatal("failed to start service", zap.Error(err))
	}
	onExit(stop)
}

func mirrorName(dsn string) string {
	if u, err := url.Parse(dsn); err == nil {
		return u.Scheme
	}
	return ""
}

const exitTimeout = 10 * time.Second

type stopFun func(context.Context) error

func onExit(stopper ...stopFun) {
	exitCh := make(chan os.Signal, 2)
	signal.Notify(exitCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exitCh

	log.Info("performing shutdown, press Ctrl+C to exit now",
		zap.String("signal", sig.String()),
		zap.Duration("graceful-wait-timeout", exitTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), exitTimeout)
	defer cancel()

	wg := sync.WaitGroup{}
	wg.Add(len(stopper))
	for _, stop := range stopper {
		go func(f stopFun) {
			if err := f(ctx); err != nil {
				log.Error("error while shutting down", zap.Error(err))
			}
			wg.Done()
		}(stop)
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()

	select {
	case <-exitCh:
		log.Warn("forcing exit")
	case <-doneCh:
		log.Info("shutdown complete")
	case <-ctx.Done():
		log.Warn("shutdown incomplete, exiting anyway")
	}
}

func printVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	fmt.Printf("\nGo: %s, %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	const l = "  %-10s %-50s %s\n"
	fmt.Println("Dependencies:")
	fmt.Printf(l, "main", info.Main.Path, purged.Version())
	for _, i := range info.Deps {
		if r := i.Replace; r == nil {
			fmt.Printf(l, "dep", i.Path, i.Version)
		} else {
			fmt.Printf(l, "dep", r.Path, r.Version)
			fmt.Printf(l, "  replaces", i.Path, i.Version)
		}
	}
}

func newLogger(level zapcore.Level) (*zap.Logger, error) {
	var cfg zap.Config
	if purged.Development() {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
