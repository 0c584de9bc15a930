// Command rwtas runs the TAS engine headless: the editor IPC server, the
// sequence library and a fixed-rate simulation loop feeding neutral input.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rwtastool/rwtas/internal/config"
	"github.com/rwtastool/rwtas/internal/engine"
	"github.com/rwtastool/rwtas/internal/influx"
	"github.com/rwtastool/rwtas/internal/logging"
	"github.com/rwtastool/rwtas/internal/monitor"
	intOtel "github.com/rwtastool/rwtas/internal/otel"
	"github.com/rwtastool/rwtas/internal/server"
	"github.com/rwtastool/rwtas/pkg/core"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// BuildDate can be set at build time via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

const AppName = "rwtas"

// options are the command-line switches that are not config keys.
type options struct {
	configDir string
	load      string
	play      bool
	record    bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	flags.StringVar(&opts.configDir, "config", ".", "directory holding "+config.FileName)
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("storage", "file", "sequence library: file, sqlite, postgres, redis or memory")
	flags.String("address", "", "IPC endpoint address")
	flags.Int("tick-rate", 40, "simulation frames per second")
	flags.StringVar(&opts.load, "load", "", "load this sequence at startup")
	flags.BoolVar(&opts.play, "play", false, "start playback at startup")
	flags.BoolVar(&opts.record, "record", false, "start recording at startup")
	if err := flags.Parse(args); err != nil {
		return opts, err
	}

	for key, name := range map[string]string{
		"logLevel":     "log-level",
		"storage.type": "storage",
		"ipc.address":  "address",
		"sim.tickRate": "tick-rate",
	} {
		if f := flags.Lookup(name); f.Changed {
			if err := viper.BindPFlag(key, f); err != nil {
				return opts, err
			}
		}
	}
	return opts, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	sessionStart := time.Now()
	sessionID := uuid.NewString()

	slogManager := logging.NewSlogManager()
	slogManager.Setup(nil, "info", nil)
	logger := slogManager.Logger()

	if err := config.Load(opts.configDir); err != nil {
		if !config.IsNotFound(err) {
			return err
		}
		logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("creating logs directory: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, AppName, sessionStart)
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	level := config.GetString("logLevel")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelCfg := config.GetOTelConfig()
	otelProvider, err := intOtel.New(ctx, intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		SessionID:    sessionID,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		logger.Error("Failed to initialize OTel provider", "error", err)
		otelProvider, _ = intOtel.New(ctx, intOtel.Config{})
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}()

	var extra []slog.Handler
	if config.GetBool("graylog.enabled") {
		gelfHandler, gelfWriter, err := logging.NewGelfHandler(config.GetString("graylog.address"), level)
		if err != nil {
			logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			defer gelfWriter.Close()
			extra = append(extra, gelfHandler)
		}
	}

	var eng *engine.Engine
	slogManager.SetContextProvider(func() []slog.Attr {
		if eng == nil {
			return nil
		}
		return eng.LogAttrs()
	})
	slogManager.Setup(io.MultiWriter(logFile, os.Stdout), level, otelProvider.LoggerProvider(), extra...)
	logger = slogManager.Logger().With("session", sessionID)
	logger.Info("Starting up", "version", Version, "build", BuildDate, "log", logPath)

	storageCfg := config.GetStorageConfig()
	store, err := createStorageBackend(storageCfg, sessionID, logger, logging.NewZerolog(logFile, level))
	if err != nil {
		return err
	}
	if err := store.Init(); err != nil {
		return fmt.Errorf("initializing %s storage: %w", storageCfg.Type, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	eng = engine.New(engine.Options{Store: store, Logger: logger, SessionID: sessionID})
	defer eng.Close()
	if err := applyStartup(eng, opts); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var srv *server.Server
	ipcCfg := config.GetIPCConfig()
	if ipcCfg.Enabled {
		srv, err = server.New(server.Config{
			Network:     ipcCfg.Network,
			Address:     ipcCfg.Address,
			Version:     ipcCfg.Version,
			ReadTimeout: ipcCfg.ReadTimeout,
		}, eng, logger)
		if err != nil {
			return err
		}
		if err := srv.Listen(); err != nil {
			return err
		}
		g.Go(func() error { return srv.Serve(gctx) })
	}

	if storageCfg.Type == "file" && storageCfg.File.Watch {
		g.Go(func() error { return eng.Watch(gctx) })
	}

	monitorDeps := monitor.Dependencies{
		Engine:     eng,
		Logger:     logger,
		StatusFile: filepath.Join(logsDir, "status.json"),
		Interval:   config.GetDuration("monitor.interval"),
	}
	if srv != nil {
		monitorDeps.Server = srv
	}
	if r, ok := store.(monitor.Recorder); ok {
		monitorDeps.Recorder = r
	}
	influxCfg := config.GetInfluxConfig()
	if influxCfg.Enabled {
		im := influx.NewManager(influx.Config{
			Enabled: true,
			URL:     influxCfg.URL(),
			Token:   influxCfg.Token,
			Org:     influxCfg.Org,
			Bucket:  influxCfg.Bucket,
		}, logging.NewZerolog(logFile, level), filepath.Join(logsDir, "influx_backup.lp.gz"))
		if err := im.Connect(ctx); err != nil {
			logger.Error("Failed to set up InfluxDB", "error", err)
		} else {
			defer im.Close()
			monitorDeps.Influx = im
		}
	}
	g.Go(func() error { return monitor.NewService(monitorDeps).Run(gctx) })

	g.Go(func() error { return logChanges(gctx, eng, logger) })
	g.Go(func() error { return tickLoop(gctx, eng, config.GetInt("sim.tickRate")) })

	err = g.Wait()
	logger.Info("Shutting down", "status", eng.Status().Mode.String())
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = slogManager.Flush(flushCtx)
	return err
}

func applyStartup(eng *engine.Engine, opts options) error {
	if opts.load != "" {
		if err := eng.Load(opts.load, engine.LoadReplace); err != nil {
			return err
		}
	}
	if opts.play {
		eng.SetPlaying(true, config.GetBool("playback.loop"))
	}
	if opts.record {
		eng.SetRecording(true)
	}
	return nil
}

// tickLoop stands in for the host simulation: one PlayerInput call per frame
// with a neutral live input.
func tickLoop(ctx context.Context, eng *engine.Engine, rate int) error {
	if rate <= 0 {
		rate = 40
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	neutral := func() core.InputPackage { return core.InputPackage{} }
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			eng.PlayerInput(neutral)
		}
	}
}

// logChanges drains the change feed the way a UI would mark labels dirty.
func logChanges(ctx context.Context, eng *engine.Engine, logger *slog.Logger) error {
	changes := eng.Changes().Receive()
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			if c.Kind != engine.CursorMoved {
				logger.Debug("engine changed", "kind", c.Kind.String())
			}
		}
	}
}
