package report

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// WarningKind classifies a non-fatal parse anomaly.
type WarningKind string

const (
	DuplicateKey       WarningKind = "duplicate_key"
	UnknownTopLevelTag WarningKind = "unknown_top_level_tag"
	CorruptUTF8        WarningKind = "corrupt_utf8"
)

// Warning is one kind of accumulated anomaly, with the count of
// occurrences and the detail of the first occurrence.
type Warning struct {
	Kind   WarningKind
	Detail string
	Count  int
}

// logEvery caps how often a repeated warning kind is logged, so a dump with
// thousands of duplicate keys doesn't flood the log.
const logEvery = 100

// Sidecar accumulates warnings by kind and optionally logs them as they
// arrive. It implements hprof.Warner.
type Sidecar struct {
	mu       sync.Mutex
	warnings map[WarningKind]*Warning
	log      *logrus.Logger
}

// NewSidecar creates a Sidecar. If log is nil, a discarding logger is used.
func NewSidecar(log *logrus.Logger) *Sidecar {
	if log == nil {
		log = discardLogger()
	}
	return &Sidecar{
		warnings: make(map[WarningKind]*Warning),
		log:      log,
	}
}

// Warn implements hprof.Warner. kind must be one of the hprof.Warn*
// string constants, which share their literal values with WarningKind.
func (s *Sidecar) Warn(kind, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := WarningKind(kind)
	w, ok := s.warnings[k]
	if !ok {
		w = &Warning{Kind: k, Detail: detail}
		s.warnings[k] = w
	}
	w.Count++
	if w.Count == 1 || w.Count%logEvery == 0 {
		s.log.WithFields(logrus.Fields{
			"kind":  k,
			"count": w.Count,
		}).Warn(detail)
	}
}

// Warnings returns the accumulated warnings sorted by kind.
func (s *Sidecar) Warnings() []Warning {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Warning, 0, len(s.warnings))
	for _, w := range s.warnings {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
