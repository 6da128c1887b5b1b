package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"flyapp/internal/classifier"
	"flyapp/internal/config"
	"flyapp/internal/logging"
	"flyapp/internal/ncbi"
	"flyapp/internal/pipeline"
	"flyapp/internal/store"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// statusResponseWriter captures status and bytes written for logging
type statusResponseWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// loggingMiddleware logs each request with method, path, status, size and duration
func loggingMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusResponseWriter{ResponseWriter: w}
		next.ServeHTTP(srw, r)
		if srw.status == 0 {
			srw.status = http.StatusOK
		}
		logger.Info("request", "remote", r.RemoteAddr, "method", r.Method, "uri", r.URL.RequestURI(),
			"status", srw.status, "bytes", srw.written, "duration", time.Since(start), "agent", r.UserAgent())
	})
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var configPath string
	cmd := &cobra.Command{
		Use:          "flyapp-web",
		Short:        "Serve the peptide detectability UI",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "path to config.json (optional)")
	f.String("addr", "", "HTTP address to serve")
	f.String("store", "", "analysis store: sqlite or json")
	f.String("store-path", "", "path of the analysis store")
	f.String("classifier-url", "", "base URL of the model server")
	f.String("log-file", "", "also append logs to this file")
	for key, name := range map[string]string{
		"addr": "addr", "store": "store", "store_path": "store-path",
		"classifier_url": "classifier-url", "log_file": "log-file",
	} {
		_ = v.BindPFlag(key, f.Lookup(name))
	}
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, closeLog, warnings := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Prefix: "flyapp"})
	defer closeLog()
	for _, w := range warnings {
		logger.Warn(w)
	}

	if cfg.NcbiCachePath != "" {
		if abs, err := filepath.Abs(cfg.NcbiCachePath); err == nil {
			ncbi.SetCacheFilePath(abs)
		} else {
			ncbi.SetCacheFilePath(cfg.NcbiCachePath)
		}
	}
	if cfg.NcbiApiKey != "" {
		ncbi.SetAPIKey(cfg.NcbiApiKey)
	}
	ncbi.SetCacheTTLSeconds(cfg.NcbiCacheTTLSecs)
	defer ncbi.FlushCache()

	st, err := store.Open(cfg.StoreKind, cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	tmpl, err := loadTemplates()
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	timeout := time.Duration(cfg.ClassifierTimeout) * time.Second
	clf := classifier.New(cfg.ClassifierURL, cfg.ModelName, timeout)
	info := clf.Info()
	probe, cancel := context.WithTimeout(ctx, 5*time.Second)
	if status, err := clf.Status(probe); err != nil {
		logger.Warn("model server not reachable; predictions will fail until it is", "endpoint", info.Endpoint, "err", err)
	} else if !status.Available() {
		logger.Warn("model has no available version", "endpoint", info.Endpoint)
	} else {
		logger.Info("model available", "endpoint", info.Endpoint)
	}
	cancel()

	s := &server{
		clf:    clf,
		model:  &info,
		store:  st,
		logger: logger,
		tmpl:   tmpl,
		fetch:  ncbi.FetchProtein,
		opts: pipeline.Options{
			Enzyme:    cfg.Enzyme,
			MinLength: cfg.MinLength,
			MaxLength: cfg.MaxLength,
			MaxLen:    cfg.MaxLen,
			BatchSize: cfg.BatchSize,
		},
		timeout: timeout + 30*time.Second,
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: loggingMiddleware(logger, s.routes()), ReadTimeout: 5 * time.Second, WriteTimeout: timeout + time.Minute}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	logger.Info("serving UI", "addr", cfg.Addr, "store", cfg.StoreKind, "store_path", cfg.StorePath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
