package report

import (
	"fmt"
	"io"
	"strings"
)

// escapeJSONString renders s per the spec's custom escaping rules:
// backslash, double-quote, CR, LF, TAB get their canonical escapes; any
// other byte below 0x20 becomes a 4-hex-digit \u00XX escape; every other
// byte (including invalid UTF-8 and bytes >= 0x80) passes through
// unchanged, so decode(escape(s)) == s for any byte string s.
func escapeJSONString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\r':
			b.WriteString(`\r`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

// unescapeJSONString is the inverse of escapeJSONString, used by the round
// trip test.
func unescapeJSONString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case '\\':
			b.WriteByte('\\')
			i++
		case '"':
			b.WriteByte('"')
			i++
		case 'r':
			b.WriteByte('\r')
			i++
		case 'n':
			b.WriteByte('\n')
			i++
		case 't':
			b.WriteByte('\t')
			i++
		case 'u':
			if i+5 < len(s) {
				var v byte
				if _, err := fmt.Sscanf(s[i+2:i+6], "%04x", &v); err == nil {
					b.WriteByte(v)
					i += 5
					continue
				}
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func quoted(s string) string {
	return `"` + escapeJSONString(s) + `"`
}

// WriteJSON renders the structured document described in spec §4.5, with
// keys in the stated order: memory_usage first, then the global counters,
// then format.
func WriteJSON(w io.Writer, rep Report) error {
	var b strings.Builder
	b.WriteString("{\n")
	b.WriteString("  \"memory_usage\": [\n")
	for i, a := range rep.Aggregates {
		b.WriteString("    {\n")
		fmt.Fprintf(&b, "      \"class_name\": %s,\n", quoted(a.ClassName))
		fmt.Fprintf(&b, "      \"instance_count\": %d,\n", a.InstanceCount)
		fmt.Fprintf(&b, "      \"largest_allocation_bytes\": %d,\n", a.MaxBytes)
		fmt.Fprintf(&b, "      \"allocation_size_bytes\": %d\n", a.TotalBytes)
		if i == len(rep.Aggregates)-1 {
			b.WriteString("    }\n")
		} else {
			b.WriteString("    },\n")
		}
	}
	b.WriteString("  ],\n")
	fmt.Fprintf(&b, "  \"total_objects\": %d,\n", rep.Counters.TotalObjects)
	fmt.Fprintf(&b, "  \"class_count\": %d,\n", len(rep.Aggregates))
	fmt.Fprintf(&b, "  \"thread_count\": %d,\n", rep.Counters.ThreadCount)
	fmt.Fprintf(&b, "  \"string_count\": %d,\n", rep.Counters.StringLiteralCount)
	fmt.Fprintf(&b, "  \"total_heap_bytes\": %d,\n", rep.Counters.TotalHeapBytes)
	b.WriteString("  \"format\": \"hprof\"\n")
	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}
