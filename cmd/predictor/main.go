package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"housing-forest/internal/cfg"
	"housing-forest/internal/client"
	"housing-forest/internal/common"
	"housing-forest/internal/forest"
	"housing-forest/internal/logging"
	"housing-forest/internal/metrics"
	"housing-forest/internal/ml"
)

const (
	settingsKey     = "settings"
	shutdownTimeout = 10 * time.Second
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a YAML config file (overrides CONFIG_FILE)",
	}
	modelFlag = &cli.StringFlag{
		Name:  "model",
		Usage: "Path of the model artifact to serve",
	}
	portFlag = &cli.StringFlag{
		Name:  "port",
		Usage: "Port on which the service listens",
	}
	urlFlag = &cli.StringFlag{
		Name:  "url",
		Usage: "Base URL of the service to probe (default: local service port)",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Probe timeout",
		Value: 3 * time.Second,
	}

	// flag name -> environment key it overrides
	flagEnv = map[string]string{
		configFlag.Name: common.EnvConfigFile,
		modelFlag.Name:  common.EnvModelPath,
		portFlag.Name:   common.EnvPort,
	}
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("predictor failed")
	}
}

func newApp() *cli.App {
	var logCloser io.Closer

	return &cli.App{
		Name:            "predictor",
		Usage:           "Serve housing price predictions over HTTP",
		HideHelpCommand: true,
		Flags:           []cli.Flag{configFlag, modelFlag, portFlag},
		Before: func(c *cli.Context) error {
			for name, key := range flagEnv {
				if c.IsSet(name) {
					os.Setenv(key, c.String(name))
				}
			}
			settings, err := cfg.Load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			logCloser = logging.Setup(logging.Options{
				Level:  settings.LogLevel,
				Format: settings.LogFormat,
				File:   settings.LogFile,
			})
			c.App.Metadata = map[string]interface{}{settingsKey: settings}
			return nil
		},
		After: func(c *cli.Context) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
		Action: cmdServe,
		Commands: []*cli.Command{
			{
				Name:   "probe",
				Usage:  "Check the health endpoint of a running service",
				Flags:  []cli.Flag{urlFlag, timeoutFlag},
				Action: cmdProbe,
			},
		},
	}
}

func getSettings(c *cli.Context) cfg.Settings {
	return c.App.Metadata[settingsKey].(cfg.Settings)
}

func cmdServe(c *cli.Context) error {
	settings := getSettings(c)

	model, err := forest.Load(settings.ModelPath)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	metadata, err := ml.LoadModelMetadata(settings.ModelPath)
	if err != nil {
		log.Warn().Err(err).Msg("model metadata unavailable, serving defaults")
		metadata = ml.DefaultMetadata(model)
	}

	mw := metrics.NewWrapper(metrics.New())
	service, err := ml.NewService(model, ml.ServiceConfig{CacheSize: settings.CacheSize}, mw)
	if err != nil {
		return fmt.Errorf("create prediction service: %w", err)
	}

	server := ml.NewModelServer(service, metadata, mw, ml.ServerOptions{
		Addr:         settings.Addr(),
		ReadTimeout:  settings.ReadTimeout,
		WriteTimeout: settings.WriteTimeout,
		Gatherer:     prometheus.DefaultGatherer,
	})

	log.Info().
		Str("model", settings.ModelPath).
		Str("version", metadata.Version).
		Int("trees", service.Trees()).
		Msg("model loaded")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func cmdProbe(c *cli.Context) error {
	settings := getSettings(c)

	url := c.String(urlFlag.Name)
	if url == "" {
		url = fmt.Sprintf("http://127.0.0.1:%d", settings.Port)
	}
	timeout := c.Duration(timeoutFlag.Name)

	ctx, cancel := context.WithTimeout(c.Context, timeout)
	defer cancel()

	if err := client.New(url, timeout).Health(ctx); err != nil {
		return fmt.Errorf("probe %s: %w", url, err)
	}
	fmt.Fprintln(c.App.Writer, "ok")
	return nil
}
