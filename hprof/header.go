package hprof

import (
	"strings"

	"github.com/hprofstat/heapstat/errs"
)

// headerPrefix is the recognized magic prefix; real dumps carry a version
// suffix (e.g. "JAVA PROFILE 1.0.2") before the NUL terminator.
const headerPrefix = "JAVA PROFILE"

// Header is the decoded file header: format label, identifier width, and
// the dump's base timestamp (milliseconds since epoch, high/low halves
// combined).
type Header struct {
	Label     string
	IDWidth   int
	Timestamp uint64
}

// ReadHeader reads the NUL-terminated label, 4-byte identifier width, and
// 8-byte timestamp. A label without the recognized prefix, or an
// identifier width other than 4 or 8, is a fatal HeaderInvalid error.
func ReadHeader(s source) (Header, error) {
	label, err := readCString(s)
	if err != nil {
		return Header{}, errs.Wrap(errs.HeaderInvalid, s.Pos(), err, "reading format label")
	}
	if !strings.HasPrefix(label, headerPrefix) {
		return Header{}, errs.New(errs.HeaderInvalid, s.Pos(), "unrecognized format label %q", label)
	}
	idWidth, err := readU4(s)
	if err != nil {
		return Header{}, errs.Wrap(errs.HeaderInvalid, s.Pos(), err, "reading identifier width")
	}
	if idWidth != 4 && idWidth != 8 {
		return Header{}, errs.New(errs.HeaderInvalid, s.Pos(), "unsupported identifier width %d", idWidth)
	}
	ts, err := readU8(s)
	if err != nil {
		return Header{}, errs.Wrap(errs.HeaderInvalid, s.Pos(), err, "reading timestamp")
	}
	return Header{Label: label, IDWidth: int(idWidth), Timestamp: ts}, nil
}

// readCString reads bytes one at a time up to and including a NUL
// terminator, returning the string without the terminator.
func readCString(s source) (string, error) {
	var sb strings.Builder
	for {
		b, err := s.ReadExact(1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			return sb.String(), nil
		}
		sb.WriteByte(b[0])
	}
}
