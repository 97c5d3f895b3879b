package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"housing-forest/internal/cfg"
	"housing-forest/internal/common"
	"housing-forest/internal/logging"
	"housing-forest/internal/metrics"
	"housing-forest/internal/storage"
	"housing-forest/internal/training"
)

const settingsKey = "settings"

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a YAML config file (overrides CONFIG_FILE)",
	}
	datasetFlag = &cli.StringFlag{
		Name:  "dataset",
		Usage: "Path to the housing CSV",
	}
	modelFlag = &cli.StringFlag{
		Name:  "model",
		Usage: "Where to write the model artifact",
	}
	dataFlag = &cli.StringFlag{
		Name:  "data",
		Usage: "Directory of the training run registry (disabled when empty)",
	}
	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of runs to list",
		Value: 20,
	}
	sinceFlag = &cli.TimestampFlag{
		Name:   "since",
		Usage:  "Only list runs started at or after this time (RFC3339)",
		Layout: time.RFC3339,
	}
	untilFlag = &cli.TimestampFlag{
		Name:   "until",
		Usage:  "Only list runs started at or before this time (RFC3339)",
		Layout: time.RFC3339,
	}

	// flag name -> environment key it overrides
	flagEnv = map[string]string{
		configFlag.Name:  common.EnvConfigFile,
		datasetFlag.Name: common.EnvDatasetPath,
		modelFlag.Name:   common.EnvModelPath,
		dataFlag.Name:    common.EnvDataPath,
	}
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("trainer failed")
	}
}

func newApp() *cli.App {
	var logCloser io.Closer

	return &cli.App{
		Name:            "trainer",
		Usage:           "Fit the housing price forest and write the model artifact",
		HideHelpCommand: true,
		Flags:           []cli.Flag{configFlag, datasetFlag, modelFlag, dataFlag},
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
		Action: cmdTrain,
		Commands: []*cli.Command{
			{
				Name:   "runs",
				Usage:  "List recorded training runs, newest first",
				Flags:  []cli.Flag{limitFlag, sinceFlag, untilFlag},
				Action: cmdListRuns,
			},
			{
				Name:      "activate",
				Usage:     "Mark a recorded run as the active one",
				ArgsUsage: "<run-id>",
				Action:    cmdActivate,
			},
			{
				Name:   "rollback",
				Usage:  "Make the run recorded before the active one active again",
				Action: cmdRollback,
			},
		},
	}
}

func getSettings(c *cli.Context) cfg.Settings {
	return c.App.Metadata[settingsKey].(cfg.Settings)
}

func cmdTrain(c *cli.Context) error {
	settings := getSettings(c)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// one-shot process: metrics live on a private registry and are logged at exit
	registry := prometheus.NewRegistry()
	mw := metrics.NewWrapper(metrics.NewWithRegistry(registry))
	defer logMetrics(registry)

	var recorder training.RunRecorder
	if settings.DataPath != "" {
		store, err := openStore(settings.DataPath)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = store
	}

	log.Info().
		Str("dataset", settings.DatasetPath).
		Str("model", settings.ModelPath).
		Int("trees", settings.Forest.NumTrees).
		Int64("seed", settings.Forest.Seed).
		Float64("test_size", settings.Forest.TestSize).
		Msg("training started")

	report, err := training.Run(ctx, training.OptionsFromSettings(settings), mw, recorder)
	if err != nil {
		return err
	}

	event := log.Info().
		Str("version", report.Metadata.Version).
		Int("train_rows", report.Metadata.TrainingRows).
		Int("holdout_rows", report.Metadata.HoldoutRows)
	if h := report.Metadata.Holdout; h != nil {
		event = event.Float64("r2", h.R2).Float64("rmse", h.RMSE)
	}
	event.Msg("training finished")
	return nil
}

func cmdListRuns(c *cli.Context) error {
	store, err := registryFromSettings(c)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := listRuns(c, store)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	active, _ := store.ActiveRun() // nil when no run is active

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACTIVE\tVERSION\tSTARTED\tDURATION\tTREES\tTRAIN\tHOLDOUT\tR2\tRMSE")
	for _, run := range runs {
		marker := ""
		if active != nil && active.ID == run.ID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%.4f\t%.0f\n",
			marker,
			run.Version,
			run.StartedAt.Format(time.RFC3339),
			run.Duration.Round(time.Millisecond),
			run.NumTrees,
			run.TrainingRows,
			run.HoldoutRows,
			run.R2,
			run.RMSE,
		)
	}
	return w.Flush()
}

// listRuns applies the time window flags when either is set. Windowed
// results come back oldest first, so they are reversed before the limit.
func listRuns(c *cli.Context, store *storage.Store) ([]storage.TrainingRun, error) {
	limit := c.Int(limitFlag.Name)
	if !c.IsSet(sinceFlag.Name) && !c.IsSet(untilFlag.Name) {
		return store.ListRuns(limit)
	}

	since := time.Unix(0, 0)
	if ts := c.Timestamp(sinceFlag.Name); ts != nil {
		since = *ts
	}
	until := time.Now()
	if ts := c.Timestamp(untilFlag.Name); ts != nil {
		until = *ts
	}

	runs, err := store.RunsInRange(since, until)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func cmdActivate(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	store, err := registryFromSettings(c)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Activate(id); err != nil {
		return fmt.Errorf("activate run %s: %w", id, err)
	}
	log.Info().Str("run", id).Msg("run activated")
	return nil
}

func cmdRollback(c *cli.Context) error {
	store, err := registryFromSettings(c)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Rollback()
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	log.Info().
		Str("run", run.ID).
		Str("version", run.Version).
		Str("model", run.ModelPath).
		Msg("rolled back to previous run")
	return nil
}

func registryFromSettings(c *cli.Context) (*storage.Store, error) {
	settings := getSettings(c)
	if settings.DataPath == "" {
		return nil, fmt.Errorf("no run registry configured: set --data or %s", common.EnvDataPath)
	}
	return openStore(settings.DataPath)
}

func openStore(dataPath string) (*storage.Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store, err := storage.New(dataPath)
	if err != nil {
		return nil, fmt.Errorf("open run registry: %w", err)
	}
	return store, nil
}

// logMetrics writes the counter and gauge values of registry at debug level.
func logMetrics(registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		log.Warn().Err(err).Msg("gather trainer metrics")
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				log.Debug().Str("metric", mf.GetName()).Float64("value", m.GetCounter().GetValue()).Msg("trainer metric")
			case m.GetGauge() != nil:
				log.Debug().Str("metric", mf.GetName()).Float64("value", m.GetGauge().GetValue()).Msg("trainer metric")
			case m.GetHistogram() != nil:
				log.Debug().Str("metric", mf.GetName()).Float64("sum", m.GetHistogram().GetSampleSum()).Msg("trainer metric")
			}
		}
	}
}
