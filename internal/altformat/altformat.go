// Package altformat delegates decoding of heap-dump variants this module
// does not understand natively (e.g. a vendor-specific binary layout) to an
// external helper process, per SPEC_FULL.md §11. The helper is an opaque
// executable: altformat only knows its calling convention, never its
// internal format.
package altformat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/hprofstat/heapstat/errs"
	"github.com/hprofstat/heapstat/report"
)

// delegateResult mirrors the JSON document the helper process is expected
// to print to stdout: the same shape report.WriteJSON produces, so a
// helper can literally shell out to this binary's own --format json path
// if it wants to.
type delegateResult struct {
	MemoryUsage []struct {
		ClassName              string `json:"class_name"`
		InstanceCount          uint64 `json:"instance_count"`
		LargestAllocationBytes uint64 `json:"largest_allocation_bytes"`
		AllocationSizeBytes    uint64 `json:"allocation_size_bytes"`
	} `json:"memory_usage"`
	TotalObjects    uint64 `json:"total_objects"`
	ClassCount      int    `json:"class_count"`
	ThreadCount     uint32 `json:"thread_count"`
	StringCount     uint64 `json:"string_count"`
	TotalHeapBytes  uint64 `json:"total_heap_bytes"`
}

// Run invokes helperPath with inputPath as its sole argument, waits for it
// to exit, and decodes its stdout into a report.Report. Any non-zero exit
// or malformed output is returned as an error; the caller decides whether
// that's fatal for the overall run.
func Run(ctx context.Context, helperPath, inputPath string) (report.Report, error) {
	cmd := exec.CommandContext(ctx, helperPath, inputPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return report.Report{}, errs.Wrap(errs.IOError, -1, err, fmt.Sprintf("alt-format helper %s failed: %s", helperPath, stderr.String()))
	}

	var dec delegateResult
	if err := json.Unmarshal(stdout.Bytes(), &dec); err != nil {
		return report.Report{}, errs.Wrap(errs.IOError, -1, err, "decoding alt-format helper output")
	}

	rep := report.Report{
		Counters: report.GlobalCounters{
			TotalObjects:       dec.TotalObjects,
			TotalHeapBytes:     dec.TotalHeapBytes,
			StringLiteralCount: dec.StringCount,
			ThreadCount:        dec.ThreadCount,
		},
	}
	for _, m := range dec.MemoryUsage {
		rep.Aggregates = append(rep.Aggregates, report.InstanceAggregate{
			ClassName:     m.ClassName,
			InstanceCount: m.InstanceCount,
			TotalBytes:    m.AllocationSizeBytes,
			MaxBytes:      m.LargestAllocationBytes,
		})
	}
	return rep, nil
}
