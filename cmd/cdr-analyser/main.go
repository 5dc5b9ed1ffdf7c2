package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/alerting"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/analyser"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/config"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/correlation"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/errors"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/messaging"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/metrics"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// dateLayout is the format of the start and end arguments
const dateLayout = "2006-01-02 15:04:05"

var logger = logrus.New()

type options struct {
	settings        string
	causeCodes      string
	xlsx            bool
	metricsTextfile string
	amqpURL         string
	amqpQueue       string
	logLevel        string
	logFormat       string
	minSeverity     string
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		logger.WithError(err).WithFields(logrus.Fields(errors.GetErrorFields(err))).Error("Analysis failed")
		os.Exit(errors.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "cdr-analyser START END INPUT_DIR CDR_REPORT CMR_REPORT",
		Short: "Report CUCM call failures and poor voice quality from CDR/CMR exports",
		Long: `Reads the CUCM CDR and CMR CSV files in INPUT_DIR, keeps the records between
START and END (inclusive, "YYYY-MM-DD HH:MM:SS", UTC) and groups failed calls by
device and termination cause, and poor quality calls by device. Groups that reach
the amber or red thresholds are written to the CDR_REPORT and CMR_REPORT HTML files.

Examples:
  cdr-analyser "2020-03-14 00:00:00" "2020-03-21 00:00:00" ./cdr cdr.html cmr.html
  cdr-analyser --xlsx --settings prod.yaml "2020-03-14 00:00:00" "2020-03-15 00:00:00" ./cdr cdr.html cmr.html`,
		Version:       version.Version,
		Args:          exactArgs(5),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.settings, "settings", "", "settings file (JSON or YAML, default "+config.DefaultSettingsPath+")")
	flags.StringVar(&opts.causeCodes, "cause-codes", "", "termination cause code descriptions (default "+config.DefaultCauseCodesPath+")")
	flags.BoolVar(&opts.xlsx, "xlsx", false, "also write an .xlsx workbook next to each report")
	flags.StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this .prom file")
	flags.StringVar(&opts.amqpURL, "amqp-url", "", "publish a run summary to this AMQP broker")
	flags.StringVar(&opts.amqpQueue, "amqp-queue", config.DefaultAMQPQueue, "queue for run summaries")
	flags.StringVar(&opts.minSeverity, "min-severity", "amber", "lowest severity to report (amber or red)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (text or json)")

	return cmd
}

// exactArgs reports usage errors with the invalid input exit code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return errors.NewInvalidInput(fmt.Sprintf("expected %d arguments, got %d", n, len(args)), map[string]interface{}{
				"usage": cmd.UseLine(),
			})
		}
		return nil
	}
}

func parseDate(name, value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, errors.NewInvalidInput("dates must be in the format YYYY-MM-DD HH:MM:SS", map[string]interface{}{
			"argument": name,
			"value":    value,
		})
	}
	return t, nil
}

func run(cmd *cobra.Command, opts *options, args []string) error {
	start, err := parseDate("start", args[0])
	if err != nil {
		return err
	}
	end, err := parseDate("end", args[1])
	if err != nil {
		return err
	}
	minSeverity, err := alerting.ParseSeverity(opts.minSeverity)
	if err != nil {
		return err
	}

	cfg, err := config.Load(logger, config.Paths{Settings: opts.settings, CauseCodes: opts.causeCodes})
	if err != nil {
		return err
	}
	applyFlags(cmd, opts, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ApplyLogging(logger); err != nil {
		return err
	}

	recorder := metrics.NewRecorder(logger)
	a, err := analyser.New(cfg.Settings, cfg.CauseCodes, logger, recorder)
	if err != nil {
		return err
	}
	a.WithMinSeverity(minSeverity)

	if cfg.Messaging.Enabled() {
		publisher := messaging.NewAMQPPublisher(logger, messaging.AMQPConfig{
			URL:       cfg.Messaging.AMQPURL,
			QueueName: cfg.Messaging.AMQPQueue,
			Durable:   true,
		}, nil)
		defer publisher.Close()
		a.WithPublisher(publisher, cfg.Messaging.AMQPQueue)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = correlation.WithRunID(ctx, correlation.NewRunID())

	_, runErr := a.Run(ctx, analyser.Input{
		Start:     start,
		End:       end,
		Dir:       args[2],
		CDRReport: args[3],
		CMRReport: args[4],
		XLSX:      opts.xlsx,
	})

	if cfg.Metrics.TextfilePath != "" {
		if err := recorder.WriteTextfile(cfg.Metrics.TextfilePath); err != nil && runErr == nil {
			return err
		}
	}
	return runErr
}

// applyFlags lets explicitly set flags override the environment.
func applyFlags(cmd *cobra.Command, opts *options, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("amqp-url") {
		cfg.Messaging.AMQPURL = opts.amqpURL
	}
	if flags.Changed("amqp-queue") {
		cfg.Messaging.AMQPQueue = opts.amqpQueue
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.TextfilePath = opts.metricsTextfile
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}
}
