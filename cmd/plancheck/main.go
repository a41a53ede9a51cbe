package main

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	logLevel  string
	logFormat string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "plancheck",
		Short: "Verify shard placement against a placement plan",
		Long: `plancheck compares where shards are served from with where the placement
plan wants them, and reports plan compliance, locality and host balance.`,
		SilenceUsage: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level",
		getenv("PLANCHECK_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format",
		getenv("PLANCHECK_LOG_FORMAT", "text"), "log format (text or json)")

	cmd.AddCommand(newCheckCmd(opts), newServeCmd(opts))
	return cmd
}

// logger builds the process logger. Logs always go to stderr so that report
// output on stdout stays machine readable.
func (o *rootOptions) logger(stderr io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		return nil, errors.Wrap(err, "invalid --log-level")
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetLevel(level)
	switch strings.ToLower(o.logFormat) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("invalid --log-format %q", o.logFormat)
	}
	return logger, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
