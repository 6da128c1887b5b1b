package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"flyapp/internal/classifier"
	"flyapp/internal/config"
	"flyapp/internal/logging"
	"flyapp/internal/ncbi"
	"flyapp/internal/pipeline"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is the program version. It can be overridden at build time with -ldflags "-X main.version=..."
var version = "0.1.0"

// app carries what every subcommand needs once flags and config are resolved.
type app struct {
	v          *viper.Viper
	cfg        *config.Config
	logger     *log.Logger
	closeLog   func()
	configPath string
	verbose    bool
	root       *cobra.Command

	openLog func(logging.Options) (*log.Logger, func(), []string)
}

// persistentKeys maps config keys to the root flags that override them.
var persistentKeys = map[string]string{
	"log_level":      "log-level",
	"log_file":       "log-file",
	"classifier_url": "classifier-url",
	"model_name":     "model",
	"enzyme":         "enzyme",
	"min_length":     "min-length",
	"max_length":     "max-length",
	"batch_size":     "batch-size",
	"workers":        "workers",
}

func newApp() *app {
	a := &app{v: config.New(), closeLog: func() {}, openLog: logging.New}
	root := &cobra.Command{
		Use:   "flyapp",
		Short: "Predict which tryptic peptides of a protein fly in a mass spectrometer",
		Long: `Digests proteins in silico, scores every peptide with the detectability
model and reports per-peptide classes plus protein coverage.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to config.json (optional)")
	pf.BoolVar(&a.verbose, "verbose", false, "enable verbose (debug) logging")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-file", "", "also append logs to this file")
	pf.String("classifier-url", "", "base URL of the model server")
	pf.String("model", "", "served model name")
	pf.String("enzyme", "", "digestion enzyme (see the enzymes command)")
	pf.Int("min-length", 0, "minimum peptide length")
	pf.Int("max-length", 0, "maximum peptide length")
	pf.Int("batch-size", 0, "peptides per classifier request")
	pf.Int("workers", 0, "proteins analysed concurrently")
	for key, name := range persistentKeys {
		_ = a.v.BindPFlag(key, pf.Lookup(name))
	}

	root.AddCommand(a.digestCmd(), a.predictCmd(), enzymesCmd(), a.modelCmd())
	a.root = root
	return a
}

// execute runs the command line. Cobra skips post-run hooks when a command
// fails, so teardown runs here.
func (a *app) execute() error {
	defer a.teardown()
	return a.root.Execute()
}

// setup loads the config (flags override env, env overrides config.json) and
// builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	logger, closeFn, warnings := a.openLog(logging.Options{Level: cfg.LogLevel, Verbose: a.verbose, File: cfg.LogFile})
	a.logger, a.closeLog = logger, closeFn
	for _, w := range warnings {
		logger.Warn(w)
	}
	// avoid printing secrets
	logger.Debug("loaded config", "command", cmd.Name(), "classifier_url", cfg.ClassifierURL, "model", cfg.ModelName, "enzyme", cfg.Enzyme,
		"min_length", cfg.MinLength, "max_length", cfg.MaxLength, "batch_size", cfg.BatchSize, "workers", cfg.Workers, "log_file", cfg.LogFile)

	if cfg.NcbiCachePath != "" {
		p := cfg.NcbiCachePath
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		ncbi.SetCacheFilePath(p)
		logger.Debug("ncbi cache path set from config", "path", p)
	}
	if cfg.NcbiApiKey != "" {
		ncbi.SetAPIKey(cfg.NcbiApiKey)
		logger.Debug("ncbi api key provided in config (not logged)")
	}
	ncbi.SetCacheTTLSeconds(cfg.NcbiCacheTTLSecs)
	return nil
}

func (a *app) teardown() {
	if a.cfg == nil {
		return
	}
	if err := ncbi.FlushCache(); err != nil && a.logger != nil {
		a.logger.Warn("failed to write ncbi cache", "err", err)
	}
	a.closeLog()
	a.closeLog = func() {}
}

func (a *app) options() pipeline.Options {
	return pipeline.Options{
		Enzyme:    a.cfg.Enzyme,
		MinLength: a.cfg.MinLength,
		MaxLength: a.cfg.MaxLength,
		MaxLen:    a.cfg.MaxLen,
		BatchSize: a.cfg.BatchSize,
	}
}

// classifier builds the model client once per invocation.
func (a *app) classifier() *classifier.Client {
	return classifier.New(a.cfg.ClassifierURL, a.cfg.ModelName, time.Duration(a.cfg.ClassifierTimeout)*time.Second)
}

func main() {
	if err := newApp().execute(); err != nil {
		os.Exit(1)
	}
}
