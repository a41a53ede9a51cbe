package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dreamware/plancheck/internal/metrics"
	"github.com/dreamware/plancheck/internal/placement"
	"github.com/dreamware/plancheck/internal/render"
	"github.com/dreamware/plancheck/internal/verify"
)

// errViolations is returned by --strict runs that found misplaced shards.
var errViolations = errors.New("placement violations found")

type checkOptions struct {
	snapshotPath string
	snapshotURL  string
	tables       []string
	detail       bool
	format       string
	parallelism  int
	metricsOut   string
	strict       bool
	fetchTimeout time.Duration
}

func newCheckCmd(root *rootOptions) *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify a placement snapshot once and print the report",
		Example: `  plancheck check --snapshot snapshot.yaml --detail
  plancheck check --snapshot-url http://master:8080/snapshot --table usertable --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := root.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runCheck(cmd, opts, verify.NewAnalyzer(logger))
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.snapshotPath, "snapshot", "", "snapshot document (YAML, or JSON with a .json extension)")
	f.StringVar(&opts.snapshotURL, "snapshot-url", "", "URL serving a JSON snapshot document")
	f.StringSliceVar(&opts.tables, "table", nil, "table to verify (repeatable, default all tables)")
	f.BoolVar(&opts.detail, "detail", false, "list shard and host names in text output")
	f.StringVar(&opts.format, "format", "text", "output format: text, json or yaml")
	f.IntVar(&opts.parallelism, "parallelism", 4, "tables verified concurrently (0 = unlimited)")
	f.StringVar(&opts.metricsOut, "metrics-out", "", "also write Prometheus metrics to this textfile")
	f.BoolVar(&opts.strict, "strict", false, "exit non-zero if any shard is not on a preferred host")
	f.DurationVar(&opts.fetchTimeout, "fetch-timeout", 10*time.Second, "timeout for --snapshot-url")
	cmd.MarkFlagsMutuallyExclusive("snapshot", "snapshot-url")
	cmd.MarkFlagsOneRequired("snapshot", "snapshot-url")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *checkOptions, analyzer *verify.Analyzer) error {
	format, err := render.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	snap, locality, err := loadSnapshot(cmd.Context(), opts)
	if err != nil {
		return err
	}

	byTable, err := analyzer.AnalyzeTables(cmd.Context(), snap, opts.tables, locality, opts.parallelism)
	if err != nil {
		return err
	}
	reports := orderedReports(byTable, opts.tables, snap)

	if err := render.Write(cmd.OutOrStdout(), format, opts.detail, reports...); err != nil {
		return err
	}

	if opts.metricsOut != "" {
		reg := prometheus.NewRegistry()
		m := metrics.NewMetrics(reg)
		for _, r := range reports {
			m.Observe(r)
		}
		if err := prometheus.WriteToTextfile(opts.metricsOut, reg); err != nil {
			return errors.Wrap(err, "write metrics")
		}
	}

	if opts.strict {
		for _, r := range reports {
			if r.TotalCompliant() != r.TotalShards() {
				return errors.Wrapf(errViolations, "table %s: %d of %d shards on preferred hosts",
					r.Table(), r.TotalCompliant(), r.TotalShards())
			}
		}
	}
	return nil
}

func loadSnapshot(ctx context.Context, opts *checkOptions) (*placement.Snapshot, placement.Locality, error) {
	if opts.snapshotURL != "" {
		ctx, cancel := context.WithTimeout(ctx, opts.fetchTimeout)
		defer cancel()
		return placement.Fetch(ctx, opts.snapshotURL)
	}
	if opts.snapshotPath == "" {
		return nil, nil, errors.New("one of --snapshot or --snapshot-url is required")
	}
	return placement.LoadFile(opts.snapshotPath)
}

// orderedReports returns reports in the order tables were asked for, or by
// table name when every table was verified.
func orderedReports(byTable map[string]*verify.Report, tables []string, snap *placement.Snapshot) []*verify.Report {
	if len(tables) == 0 {
		tables = snap.Tables()
	}
	out := make([]*verify.Report, 0, len(byTable))
	for _, t := range tables {
		if r, ok := byTable[t]; ok {
			out = append(out, r)
		}
	}
	return out
}
