package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	heapstat "github.com/hprofstat/heapstat"
	"github.com/hprofstat/heapstat/internal/altformat"
	"github.com/hprofstat/heapstat/internal/metrics"
	"github.com/hprofstat/heapstat/report"
)

func newScanCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "scan <file>",
		Short: "Parse a single hprof file and print its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, v, args[0])
		},
	}

	flags := cmd.Flags()
	flags.Int("buffer-size", 256*1024, "prefetch reader buffer size in bytes")
	flags.Int("prefetch-depth", 4, "number of buffers to keep in flight")
	flags.String("format", "text", "output format: text or json")
	flags.String("metrics-addr", "", "address to serve Prometheus /metrics on (empty disables)")
	flags.String("variant", "hprof", "input variant: hprof or alt")
	flags.String("alt-helper", "", "path to the alt-format helper executable (required when --variant=alt)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")

	v.SetEnvPrefix("HEAPSTAT")
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	return cmd
}

func runScan(cmd *cobra.Command, v *viper.Viper, path string) error {
	logger := logrus.New()
	level, err := logrus.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	var collector *metrics.Collector
	if addr := v.GetString("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		collector = metrics.NewCollector(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Warn("metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	format := heapstat.OutputFormat(v.GetString("format"))

	switch variant := v.GetString("variant"); variant {
	case "alt":
		helper := v.GetString("alt-helper")
		if helper == "" {
			return errors.New("--alt-helper is required when --variant=alt")
		}
		rep, err := altformat.Run(ctx, helper, path)
		if err != nil {
			return err
		}
		if format == heapstat.FormatJSON {
			return report.WriteJSON(cmd.OutOrStdout(), rep)
		}
		return report.WriteText(cmd.OutOrStdout(), rep)
	case "hprof", "":
		// fall through to the native decoder below
	default:
		return errors.Errorf("unknown --variant %q, want hprof or alt", variant)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cfg := heapstat.Config{
		BufferSize:    v.GetInt("buffer-size"),
		PrefetchDepth: v.GetInt("prefetch-depth"),
		Logger:        logger,
		Metrics:       collector,
	}

	_, err = heapstat.Run(ctx, cfg, f, cmd.OutOrStdout(), format)
	return err
}
