package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jayessdeesea/wireless-data-license-processor/wdlp"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/urfave/cli"
)

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the file named by --config, or WDLP_CONFIG, over the
// defaults. Neither being set is fine.
func loadConfig(c *cli.Context) (*wdlp.Config, error) {
	fname := c.String("config")
	if fname == "" {
		return wdlp.DefaultConfig(), nil
	}

	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg, err := wdlp.NewConfigFromFile(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", fname, err)
	}
	return cfg, nil
}

func openLedger(cfg *wdlp.Config, logger *slog.Logger) (*wdlp.Ledger, func(), error) {
	db, err := wdlp.OpenLedgerDB(cfg.Ledger)
	if err != nil {
		return nil, nil, err
	}
	l, err := wdlp.NewLedger(db, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return l, func() { db.Close() }, nil
}

// processLedger opens the ledger for a process run. Only --skip-unchanged
// needs it; without that flag a ledger that can't be opened is logged and
// the run goes on without one.
func processLedger(cfg *wdlp.Config, skipUnchanged bool, logger *slog.Logger) (*wdlp.Ledger, func(), error) {
	l, closeLedger, err := openLedger(cfg, logger)
	if err == nil {
		return l, closeLedger, nil
	}
	if skipUnchanged {
		return nil, nil, fmt.Errorf("--skip-unchanged needs the ledger: %w", err)
	}
	logger.Warn("Running without ledger", "driver", cfg.Ledger.Driver, "error", err)
	return nil, func() {}, nil
}

// Process Command
//
// Parse every record file in the archive and write one output per record
// type. Exits 1 if any entry failed.
func process(c *cli.Context) error {
	logger := newLogger(c.Bool("verbose"))

	if c.String("input") == "" {
		fmt.Fprintln(os.Stderr, "input archive required")
		cli.ShowSubcommandHelp(c)
		return cli.NewExitError("", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	// Flags win over the config file.
	if c.IsSet("output") {
		cfg.Output.Directory = c.String("output")
	}
	if c.IsSet("format") {
		f, err := wdlp.ParseFormat(c.String("format"))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		cfg.Output.Format = f
	}
	if c.IsSet("compress") {
		cfg.Output.Compress = c.Bool("compress")
	}
	if c.IsSet("metrics-file") {
		cfg.MetricsFile = c.String("metrics-file")
	}

	reporter, err := wdlp.NewErrorReporter(cfg.SentryDSN)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("failed to configure sentry: %v", err), 1)
	}

	ledger, closeLedger, err := processLedger(cfg, c.Bool("skip-unchanged"), logger)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer closeLedger()

	metrics := wdlp.NewMetrics()

	options := []wdlp.ProcessorOption{
		wdlp.WithLogger(logger),
		wdlp.WithMetrics(metrics),
		wdlp.WithReporter(reporter),
	}
	runID := ""
	if ledger != nil {
		options = append(options, wdlp.WithLedger(ledger))
		runID = ledger.RunID()
	}

	proc := wdlp.NewProcessor(cfg.AllSchemas(), wdlp.ProcessorOptions{
		OutputDir:     cfg.Output.Directory,
		Format:        cfg.Output.Format,
		Compress:      cfg.Output.Compress,
		BatchSize:     cfg.Output.BatchSize,
		Limits:        cfg.Parser.Limits,
		ChunkSize:     cfg.Parser.ChunkSize,
		SkipUnchanged: c.Bool("skip-unchanged"),
	}, options...)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		if _, ok := <-sigs; ok {
			logger.Info("Quitting")
			proc.Stop()
		}
	}()

	results, err := proc.ProcessArchive(c.String("input"))
	summarize(logger, runID, proc.Stats())

	if cfg.MetricsFile != "" {
		if merr := metrics.WriteTextfile(cfg.MetricsFile); merr != nil {
			logger.Warn("Failed to write metrics", "path", cfg.MetricsFile, "error", merr)
		}
	}

	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if wdlp.Failed(results) {
		return cli.NewExitError("one or more entries failed", 1)
	}
	return nil
}

func summarize(logger *slog.Logger, runID string, stats *wdlp.Stats) {
	for _, code := range stats.Codes() {
		t := stats.Types[code]
		logger.Info("Summary",
			"record_type", code,
			"records", t.Records,
			"errors", t.Errors,
			"skipped", t.Skipped,
			"first_line", t.FirstLine,
			"last_line", t.LastLine)
	}
	records, errors := stats.Totals()
	logger.Info("Done", "run", runID, "records", records, "errors", errors, "elapsed", stats.Elapsed)
}

// Schemas Command
//
// Just print out the record types we know about.
func listSchemas(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	schemas := cfg.AllSchemas()
	for _, code := range schemas.Codes() {
		fmt.Printf("%s\t%d fields\n", code, len(schemas[code].Fields))
	}
	return nil
}

// History Command
//
// Print the most recent ledger entries.
func history(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	ledger, closeLedger, err := openLedger(cfg, newLogger(false))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer closeLedger()

	entries, err := ledger.Recent(c.Int("limit"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("failed to read ledger: %v", err), 1)
	}

	for _, e := range entries {
		fmt.Printf("%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.FinishedAt.Format("2006-01-02T15:04:05Z07:00"), e.RunID, e.Entry, e.Status, e.Records, e.ErrorKind, e.Destination)
	}
	return nil
}

func main() {
	configFlag := cli.StringFlag{
		Name:   "config",
		Usage:  "YAML config file",
		EnvVar: "WDLP_CONFIG",
	}

	app := cli.NewApp()
	app.Name = "wdlp"
	app.Usage = "Convert wireless license database archives to typed output files"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		{
			Name:    "process",
			Aliases: []string{"p"},
			Usage:   "process the record files of a ZIP archive",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "input, i",
					Usage: "ZIP archive to read",
				},
				cli.StringFlag{
					Name:  "output, o",
					Usage: "Output directory",
					Value: ".",
				},
				cli.StringFlag{
					Name:  "format, f",
					Usage: "Output format: jsonl, parquet, ion or csv",
					Value: string(wdlp.FormatJSONL),
				},
				cli.BoolFlag{
					Name:  "compress",
					Usage: "Snappy-compress text output",
				},
				cli.BoolFlag{
					Name:  "verbose, v",
					Usage: "Log debug messages",
				},
				cli.StringFlag{
					Name:   "metrics-file",
					Usage:  "Write run metrics to this file",
					EnvVar: "WDLP_METRICS_FILE",
				},
				cli.BoolFlag{
					Name:  "skip-unchanged",
					Usage: "Skip entries whose input hasn't changed since their last committed output",
				},
				configFlag,
			},
			Action: process,
		},
		{
			Name:   "schemas",
			Usage:  "list known record types",
			Flags:  []cli.Flag{configFlag},
			Action: listSchemas,
		},
		{
			Name:  "history",
			Usage: "list recent ledger entries",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "limit",
					Usage: "Number of entries to show",
					Value: 20,
				},
				configFlag,
			},
			Action: history,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
