// Package report aggregates decoded hprof events into per-class totals and
// renders the final report in text or structured form.
package report

import (
	"sort"
)

const stringClassName = "java.lang.String"

// InstanceAggregate is the per-class tally described by the spec: all
// fields are monotonically non-decreasing over the life of a run.
type InstanceAggregate struct {
	ClassName     string
	InstanceCount uint64
	TotalBytes    uint64
	MaxBytes      uint64
}

// GlobalCounters holds the run-wide totals included in every report.
type GlobalCounters struct {
	TotalObjects       uint64
	TotalHeapBytes     uint64
	StringLiteralCount uint64
	ThreadCount        uint32
}

// Report is the finalized, sorted result of a run.
type Report struct {
	Aggregates []InstanceAggregate
	Counters   GlobalCounters
	Warnings   []Warning
}

// Recorder accumulates ObserveObject/ObserveThread events during the parse.
// It owns no buffers and never fails. Warnings are recorded by the parser
// state into the Sidecar; the Recorder only reads them back at Finalize.
type Recorder struct {
	byClass  map[string]*InstanceAggregate
	counters GlobalCounters
	sidecar  *Sidecar
}

// NewRecorder creates a Recorder. sidecar may be nil, in which case the
// finalized Report carries no warnings (used in tests that don't care about
// diagnostics).
func NewRecorder(sidecar *Sidecar) *Recorder {
	return &Recorder{
		byClass: make(map[string]*InstanceAggregate),
		sidecar: sidecar,
	}
}

// ObserveObject implements hprof.Sink: folds one observed object into its
// class's running aggregate. className arrives already rendered and
// memoized by the decoder (see hprof.State.ClassName).
func (r *Recorder) ObserveObject(className string, size uint64) {
	a, ok := r.byClass[className]
	if !ok {
		a = &InstanceAggregate{ClassName: className}
		r.byClass[className] = a
	}
	a.InstanceCount++
	a.TotalBytes += size
	if size > a.MaxBytes {
		a.MaxBytes = size
	}

	r.counters.TotalObjects++
	r.counters.TotalHeapBytes += size
	if className == stringClassName {
		r.counters.StringLiteralCount++
	}
}

// ObserveThread implements hprof.Sink.
func (r *Recorder) ObserveThread() {
	r.counters.ThreadCount++
}

// ObserveRecord implements hprof.Sink. The recorder aggregates by class
// and thread, not by raw top-level record tag, so this is a no-op; metrics
// consumers that want per-tag record counts wrap Recorder instead (see
// heapstat.meteredSink).
func (r *Recorder) ObserveRecord(tagName string) {}

// Finalize sorts aggregates by total bytes descending, class name
// ascending on ties, and attaches any accumulated warnings.
func (r *Recorder) Finalize() Report {
	aggs := make([]InstanceAggregate, 0, len(r.byClass))
	for _, a := range r.byClass {
		aggs = append(aggs, *a)
	}
	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].TotalBytes != aggs[j].TotalBytes {
			return aggs[i].TotalBytes > aggs[j].TotalBytes
		}
		return aggs[i].ClassName < aggs[j].ClassName
	})

	var warnings []Warning
	if r.sidecar != nil {
		warnings = r.sidecar.Warnings()
	}

	return Report{
		Aggregates: aggs,
		Counters:   r.counters,
		Warnings:   warnings,
	}
}
