package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscapeRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"plain",
		"with \"quotes\" and \\backslash\\",
		"line1\nline2\r\ttabbed",
		string([]byte{0x00, 0x01, 0x1f, 0x20}),
		string([]byte{0xff, 0xfe, 0x80}), // invalid UTF-8, must still round-trip
	}
	for _, s := range cases {
		got := unescapeJSONString(escapeJSONString(s))
		require.Equal(t, s, got, "round trip failed for %q", s)
	}
}

func TestEscapeControlBytes(t *testing.T) {
	require.Equal(t, "\\u0001", escapeJSONString("\x01"))
	require.Equal(t, "\\n", escapeJSONString("\n"))
	require.Equal(t, "\\t", escapeJSONString("\t"))
	require.Equal(t, "\\r", escapeJSONString("\r"))
	require.Equal(t, "\\\"", escapeJSONString("\""))
	require.Equal(t, "\\\\", escapeJSONString("\\"))
}

func TestWriteJSONKeyOrderAndShape(t *testing.T) {
	r := NewRecorder(nil)
	r.ObserveObject("java.lang.String", 16)
	r.ObserveThread()
	rep := r.Finalize()

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, rep))
	out := buf.String()

	require.True(t, strings.Index(out, "memory_usage") < strings.Index(out, "total_objects"))
	require.True(t, strings.Index(out, "total_objects") < strings.Index(out, "class_count"))
	require.True(t, strings.Index(out, "class_count") < strings.Index(out, "thread_count"))
	require.True(t, strings.Index(out, "thread_count") < strings.Index(out, "string_count"))
	require.True(t, strings.Index(out, "string_count") < strings.Index(out, "total_heap_bytes"))
	require.True(t, strings.Index(out, "total_heap_bytes") < strings.Index(out, "\"format\""))
	require.Contains(t, out, "\"class_name\": \"java.lang.String\"")
}
