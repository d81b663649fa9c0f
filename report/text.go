package report

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
)

// WriteText renders the report as a human-readable table: columns
// total_bytes, instance_count, max_bytes, class_name, followed by a
// trailing summary of the global counters.
func WriteText(w io.Writer, rep Report) error {
	data := pterm.TableData{
		{"TOTAL_BYTES", "INSTANCE_COUNT", "MAX_BYTES", "CLASS_NAME"},
	}
	for _, a := range rep.Aggregates {
		data = append(data, []string{
			humanize.Comma(int64(a.TotalBytes)),
			humanize.Comma(int64(a.InstanceCount)),
			humanize.Comma(int64(a.MaxBytes)),
			a.ClassName,
		})
	}

	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, rendered); err != nil {
		return err
	}

	c := rep.Counters
	fmt.Fprintf(w, "total objects:   %s\n", humanize.Comma(int64(c.TotalObjects)))
	fmt.Fprintf(w, "total heap size: %s (%s)\n", humanize.Comma(int64(c.TotalHeapBytes)), humanize.Bytes(c.TotalHeapBytes))
	fmt.Fprintf(w, "thread count:    %d\n", c.ThreadCount)
	fmt.Fprintf(w, "string literals: %s\n", humanize.Comma(int64(c.StringLiteralCount)))
	fmt.Fprintf(w, "class count:     %d\n", len(rep.Aggregates))

	if len(rep.Warnings) > 0 {
		fmt.Fprintln(w, "\nwarnings:")
		for _, wr := range rep.Warnings {
			fmt.Fprintf(w, "  %s: %d (%s)\n", wr.Kind, wr.Count, wr.Detail)
		}
	}
	return nil
}
