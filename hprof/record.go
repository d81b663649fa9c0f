// Package hprof decodes a streaming hprof heap-dump record sequence: the
// file header, the top-level record loop, and the nested heap-segment
// sub-record dispatch, folding the decoded stream into a Sink.
package hprof

import (
	"io"

	"github.com/hprofstat/heapstat/errs"
)

// Top-level record tags.
const (
	tagString          = 0x01
	tagLoadClass       = 0x02
	tagUnloadClass     = 0x03
	tagStackFrame      = 0x04
	tagStackTrace      = 0x05
	tagAllocSites      = 0x06
	tagHeapSummary     = 0x07
	tagStartThread     = 0x0A
	tagEndThread       = 0x0B
	tagHeapDump        = 0x0C
	tagCPUSamples      = 0x0D
	tagControlSettings = 0x0E
	tagHeapDumpSegment = 0x1C
	tagHeapDumpEnd     = 0x2C
)

// tagName renders a top-level tag byte as the name used by the
// heapstat_records_total{tag="..."} metric and log lines.
func tagName(tag byte) string {
	switch tag {
	case tagString:
		return "STRING"
	case tagLoadClass:
		return "LOAD_CLASS"
	case tagUnloadClass:
		return "UNLOAD_CLASS"
	case tagStackFrame:
		return "STACK_FRAME"
	case tagStackTrace:
		return "STACK_TRACE"
	case tagAllocSites:
		return "ALLOC_SITES"
	case tagHeapSummary:
		return "HEAP_SUMMARY"
	case tagStartThread:
		return "START_THREAD"
	case tagEndThread:
		return "END_THREAD"
	case tagHeapDump:
		return "HEAP_DUMP"
	case tagCPUSamples:
		return "CPU_SAMPLES"
	case tagControlSettings:
		return "CONTROL_SETTINGS"
	case tagHeapDumpSegment:
		return "HEAP_DUMP_SEGMENT"
	case tagHeapDumpEnd:
		return "HEAP_DUMP_END"
	default:
		return "UNKNOWN"
	}
}

// Sink receives decoded events. Class names arrive pre-rendered (resolved
// and memoized by State at first use, per the class-name-resolution design
// note) so the recorder never needs to see raw class ids. ObserveRecord
// fires once per top-level record, keyed by its tag name, for metrics
// consumers that track record counts independently of object/thread
// aggregation. Implemented by report.Recorder; kept local to avoid hprof
// importing report.
type Sink interface {
	ObserveObject(className string, size uint64)
	ObserveThread()
	ObserveRecord(tagName string)
}

// Parser drives the top-level record loop over a source, updating State
// and forwarding aggregable events to a Sink.
type Parser struct {
	src   source
	state *State
	sink  Sink
}

// NewParser builds a parser over src (normally a *prefetch.Reader). The
// header must already have been consumed by ReadHeader; state.IDWidth must
// match the header's declared width.
func NewParser(src source, state *State, sink Sink) *Parser {
	return &Parser{src: src, state: state, sink: sink}
}

// Run drives the loop to EOF, returning the first fatal error encountered.
// Non-fatal anomalies are routed to state's Warner and do not abort.
func (p *Parser) Run() error {
	for {
		done, err := p.readRecord()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// readRecord reads one top-level record: tag, timestamp delta, body
// length, then dispatches on tag. done is true at a clean end of stream.
func (p *Parser) readRecord() (done bool, err error) {
	tag, err := p.src.ReadByteOrEOF()
	if err != nil {
		if err == io.EOF {
			return true, nil
		}
		return false, errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, "reading record tag")
	}

	if _, err := readU4(p.src); err != nil { // timestamp delta, unused
		return false, errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, "reading record timestamp")
	}
	bodyLen32, err := readU4(p.src)
	if err != nil {
		return false, errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, "reading record body length")
	}
	bodyLen := int(bodyLen32)
	startPos := p.src.Pos()
	p.sink.ObserveRecord(tagName(tag))

	switch tag {
	case tagString:
		if err := p.readString(bodyLen); err != nil {
			return false, err
		}
	case tagLoadClass:
		if err := p.readLoadClass(); err != nil {
			return false, err
		}
	case tagStackFrame, tagStackTrace:
		if err := p.src.Skip(bodyLen); err != nil {
			return false, errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, "skipping record body")
		}
	case tagStartThread:
		p.sink.ObserveThread()
		if err := p.src.Skip(bodyLen); err != nil {
			return false, errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, "skipping start-thread body")
		}
	case tagEndThread, tagHeapSummary, tagCPUSamples, tagControlSettings, tagUnloadClass, tagAllocSites, tagHeapDumpEnd:
		if err := p.src.Skip(bodyLen); err != nil {
			return false, errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, "skipping record body")
		}
	case tagHeapDump, tagHeapDumpSegment:
		if err := p.readHeapSegment(bodyLen); err != nil {
			return false, err
		}
	default:
		p.state.warn.Warn(WarnUnknownTopLevelTag, "unknown top-level tag")
		if err := p.src.Skip(bodyLen); err != nil {
			return false, errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, "skipping unknown record body")
		}
	}

	consumed := p.src.Pos() - startPos
	if consumed != int64(bodyLen) {
		return false, errs.New(errs.BodyLengthMismatch, p.src.Pos(),
			"record tag %#x declared body length %d but consumed %d", tag, bodyLen, consumed)
	}
	return false, nil
}

func (p *Parser) readString(bodyLen int) error {
	idw := p.state.IDWidth
	id, err := readID(p.src, idw)
	if err != nil {
		return errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, "reading string id")
	}
	n := bodyLen - idw
	if n < 0 {
		return errs.New(errs.BodyLengthMismatch, p.src.Pos(), "STRING body shorter than id width")
	}
	raw, err := p.src.ReadExact(n)
	if err != nil {
		return errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, "reading string payload")
	}
	if !isValidUTF8(raw) {
		p.state.warn.Warn(WarnCorruptUtf8, "string payload is not valid UTF-8")
	}
	p.state.PutString(id, raw)
	return nil
}

func (p *Parser) readLoadClass() error {
	idw := p.state.IDWidth
	if _, err := readU4(p.src); err != nil { // class serial number
		return errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, "reading class serial")
	}
	classID, err := readID(p.src, idw)
	if err != nil {
		return errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, "reading class id")
	}
	if _, err := readU4(p.src); err != nil { // stack trace serial number
		return errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, "reading load-class stack serial")
	}
	nameID, err := readID(p.src, idw)
	if err != nil {
		return errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, "reading class name id")
	}
	p.state.LoadClass(classID, nameID)
	return nil
}
