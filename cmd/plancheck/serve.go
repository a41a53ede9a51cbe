package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dreamware/plancheck/internal/metrics"
	"github.com/dreamware/plancheck/internal/placement"
	"github.com/dreamware/plancheck/internal/render"
	"github.com/dreamware/plancheck/internal/verify"
)

type serveOptions struct {
	addr           string
	snapshotPath   string
	parallelism    int
	reloadInterval time.Duration
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve verification reports and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := root.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			srv, err := newServer(opts.snapshotPath, opts.parallelism, logger)
			if err != nil {
				return err
			}
			srv.reloadInterval = opts.reloadInterval
			return srv.run(cmd.Context(), opts.addr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", getenv("PLANCHECK_ADDR", ":8080"), "listen address")
	f.StringVar(&opts.snapshotPath, "snapshot", getenv("PLANCHECK_SNAPSHOT", ""), "snapshot document to serve")
	f.IntVar(&opts.parallelism, "parallelism", 4, "tables verified concurrently (0 = unlimited)")
	f.DurationVar(&opts.reloadInterval, "reload-interval", 0, "re-read the snapshot periodically (0 = only on POST /reload)")

	return cmd
}

type server struct {
	mu       sync.RWMutex
	path     string
	doc      *placement.Document
	snap     *placement.Snapshot
	locality placement.Locality

	parallelism    int
	reloadInterval time.Duration
	watcher        *placement.Watcher
	analyzer       *verify.Analyzer
	metrics     *metrics.Metrics
	registry    *prometheus.Registry
	logger      logrus.FieldLogger
}

func newServer(path string, parallelism int, logger logrus.FieldLogger) (*server, error) {
	if path == "" {
		return nil, errors.New("--snapshot is required")
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	s := &server{
		path:        path,
		parallelism: parallelism,
		analyzer:    verify.NewAnalyzer(logger),
		metrics:     metrics.NewMetrics(reg),
		registry:    reg,
		logger:      logger,
	}
	s.watcher = placement.NewWatcher(func(context.Context) error { return s.reload() }, logger)
	s.watcher.SetOnStale(func(err error) {
		logger.WithError(err).Error("snapshot source is stale, serving the last good snapshot")
	})
	if err := s.watcher.Check(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/tables", s.handleTables)
	mux.HandleFunc("/report", s.handleReport)
	mux.HandleFunc("/locate", s.handleLocate)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/reload", s.handleReload)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

func (s *server) run(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("plancheck listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.watcher.Start(ctx, s.reloadInterval)
	defer s.watcher.Stop()

	select {
	case err := <-errc:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	s.logger.Info("plancheck stopped")
	return nil
}

// reload re-reads the snapshot document and swaps it in atomically.
func (s *server) reload() error {
	doc, err := placement.ReadFile(s.path)
	if err != nil {
		return err
	}
	snap, locality, err := doc.Build()
	if err != nil {
		return errors.Wrapf(err, "snapshot %s", s.path)
	}

	s.mu.Lock()
	s.doc, s.snap, s.locality = doc, snap, locality
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"path":   s.path,
		"tables": len(snap.Tables()),
	}).Info("snapshot loaded")
	return nil
}

func (s *server) current() (*placement.Document, *placement.Snapshot, placement.Locality) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc, s.snap, s.locality
}

// handleHealth reports the snapshot source health; a stale source is 503.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.watcher.Health()
	status := http.StatusOK
	if health.Status == placement.StatusStale {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(health)
}

func (s *server) handleTables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, snap, _ := s.current()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Tables []string `json:"tables"`
	}{Tables: snap.Tables()})
}

// handleReport verifies one table (?table=) or all of them and renders the result
func (s *server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	format := render.FormatJSON
	if v := q.Get("format"); v != "" {
		f, err := render.ParseFormat(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		format = f
	}
	detail, _ := strconv.ParseBool(q.Get("detail"))

	var tables []string
	if t := q.Get("table"); t != "" {
		tables = []string{t}
	}

	_, snap, locality := s.current()
	byTable, err := s.analyzer.AnalyzeTables(r.Context(), snap, tables, locality, s.parallelism)
	if errors.Is(err, placement.ErrUnknownTable) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	reports := orderedReports(byTable, tables, snap)
	for _, rep := range reports {
		s.metrics.Observe(rep)
	}

	switch format {
	case render.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case render.FormatYAML:
		w.Header().Set("Content-Type", "application/yaml")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	if err := render.Write(w, format, detail, reports...); err != nil {
		s.logger.WithError(err).Warn("failed to write report")
	}
}

// handleLocate returns the shard and host serving a row key
func (s *server) handleLocate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	table, key := r.URL.Query().Get("table"), r.URL.Query().Get("key")
	if table == "" {
		http.Error(w, "table required", http.StatusBadRequest)
		return
	}

	_, snap, _ := s.current()
	host, sh, err := snap.HostForKey(table, key)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, placement.ErrUnknownTable) || sh == nil {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("cannot locate key: %v", err), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Shard string `json:"shard"`
		Host  string `json:"host"`
	}{Shard: sh.Name(), Host: host.String()})
}

// handleSnapshot serves the loaded snapshot document as JSON, the format
// check --snapshot-url consumes.
func (s *server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	doc, _, _ := s.current()

	w.Header().Set("Content-Type", "application/json")
	if err := doc.Encode(w, placement.FormatJSON); err != nil {
		s.logger.WithError(err).Warn("failed to write snapshot")
	}
}

func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.watcher.Check(r.Context()); err != nil {
		s.logger.WithError(err).Error("snapshot reload failed")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
