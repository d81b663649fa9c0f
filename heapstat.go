// Package heapstat streams an hprof heap-dump file and produces an
// aggregated per-class instance/byte report. See SPEC_FULL.md for the full
// component design.
package heapstat

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hprofstat/heapstat/errs"
	"github.com/hprofstat/heapstat/hprof"
	"github.com/hprofstat/heapstat/internal/metrics"
	"github.com/hprofstat/heapstat/prefetch"
	"github.com/hprofstat/heapstat/report"
)

// OutputFormat selects the final report's rendering.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// Config controls the prefetch reader's buffering and the logger used for
// diagnostics. Zero value is valid; BufferSize/PrefetchDepth default per
// prefetch.DefaultConfig, and Logger defaults to a discarding logger.
type Config struct {
	BufferSize    int
	PrefetchDepth int
	Logger        *logrus.Logger
	Metrics       *metrics.Collector // optional; nil disables metrics
}

func (c Config) readerConfig() prefetch.Config {
	return prefetch.Config{BufferSize: c.BufferSize, PrefetchDepth: c.PrefetchDepth}
}

// Run drives the full pipeline: constructs the prefetch reader, decodes the
// header, parses records to EOF, and renders the final report to out. It
// also returns the Report so callers needing programmatic access don't
// have to re-parse the rendered output.
func Run(ctx context.Context, cfg Config, src io.Reader, out io.Writer, format OutputFormat) (report.Report, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	reader := prefetch.NewReader(ctx, src, cfg.readerConfig())
	defer reader.Close()

	start := time.Now()
	hdr, err := hprof.ReadHeader(reader)
	if err != nil {
		return report.Report{}, err
	}
	logger.WithFields(logrus.Fields{
		"label":    hdr.Label,
		"id_width": hdr.IDWidth,
	}).Info("decoded hprof header")

	sidecar := report.NewSidecar(logger)
	recorder := report.NewRecorder(sidecar)
	state := hprof.NewState(hdr.IDWidth, &meteredWarner{Sidecar: sidecar, m: cfg.Metrics})
	parser := hprof.NewParser(reader, state, &meteredSink{Recorder: recorder, m: cfg.Metrics})

	if err := parser.Run(); err != nil {
		return report.Report{}, err
	}

	rep := recorder.Finalize()
	elapsed := time.Since(start)
	logger.WithFields(logrus.Fields{
		"bytes_read":    reader.Pos(),
		"total_objects": rep.Counters.TotalObjects,
		"elapsed":       elapsed.String(),
	}).Info("run complete")
	if cfg.Metrics != nil {
		cfg.Metrics.ObserveDuration(elapsed)
		cfg.Metrics.AddBytesRead(reader.Pos())
	}

	switch format {
	case FormatJSON:
		if err := report.WriteJSON(out, rep); err != nil {
			return rep, errors.Wrap(err, "writing structured report")
		}
	case FormatText, "":
		if err := report.WriteText(out, rep); err != nil {
			return rep, errors.Wrap(err, "writing text report")
		}
	default:
		return rep, errs.New(errs.IOError, -1, "unknown output format %q", format)
	}
	return rep, nil
}

// meteredSink wraps a Recorder, additionally incrementing the per-tag
// records-total counter from ObserveRecord when a Collector is configured.
// ObserveObject/ObserveThread pass straight through to the Recorder
// unchanged; tag-level counting happens exactly once per top-level record,
// not once per aggregated object, so it is kept on its own method.
type meteredSink struct {
	*report.Recorder
	m *metrics.Collector
}

func (s *meteredSink) ObserveRecord(tagName string) {
	s.Recorder.ObserveRecord(tagName)
	s.m.IncRecord(tagName)
}

// meteredWarner wraps a Sidecar, additionally incrementing the
// warnings-total counter by kind when a Collector is configured. The
// Sidecar itself is still the one report.Recorder reads Warnings() from at
// Finalize, so this only adds metrics, never changes warning storage.
type meteredWarner struct {
	*report.Sidecar
	m *metrics.Collector
}

func (w *meteredWarner) Warn(kind, detail string) {
	w.Sidecar.Warn(kind, detail)
	w.m.IncWarning(kind)
}
