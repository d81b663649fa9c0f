package hprof

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	hprofErrs "github.com/hprofstat/heapstat/errs"
	"github.com/hprofstat/heapstat/prefetch"
)

// fakeSink records every ObserveObject/ObserveThread/ObserveRecord call for
// assertions, standing in for report.Recorder without importing it.
type fakeSink struct {
	objects []observedObject
	threads int
	records []string
}

type observedObject struct {
	className string
	size      uint64
}

func (s *fakeSink) ObserveObject(className string, size uint64) {
	s.objects = append(s.objects, observedObject{className, size})
}

func (s *fakeSink) ObserveThread() { s.threads++ }

func (s *fakeSink) ObserveRecord(tagName string) { s.records = append(s.records, tagName) }

// recordBuilder assembles a synthetic hprof record stream one record at a
// time: tag, 4-byte timestamp delta (always zero in tests), 4-byte body
// length, then the body.
type recordBuilder struct {
	buf bytes.Buffer
}

func (b *recordBuilder) putU1(v byte)   { b.buf.WriteByte(v) }
func (b *recordBuilder) putU4(v uint32) { var t [4]byte; binary.BigEndian.PutUint32(t[:], v); b.buf.Write(t[:]) }

func (b *recordBuilder) record(tag byte, body []byte) {
	b.putU1(tag)
	b.putU4(0) // timestamp delta
	b.putU4(uint32(len(body)))
	b.buf.Write(body)
}

func runParser(t *testing.T, idWidth int, stream []byte) (*fakeSink, *collectingWarner, error) {
	t.Helper()
	r := prefetch.NewReader(context.Background(), bytes.NewReader(stream), prefetch.Config{BufferSize: 32, PrefetchDepth: 2})
	t.Cleanup(func() { _ = r.Close() })

	w := &collectingWarner{}
	state := NewState(idWidth, w)
	sink := &fakeSink{}
	p := NewParser(r, state, sink)
	err := p.Run()
	return sink, w, err
}

// Seed scenario 1: STRING + LOAD_CLASS + single INSTANCE_DUMP.
func TestSeedScenario1InstanceDump(t *testing.T) {
	var b recordBuilder

	var sb bytes.Buffer
	sb.Write(idBytes(1, 4))
	sb.WriteString("java.lang.String")
	b.record(tagString, sb.Bytes())

	var lc bytes.Buffer
	writeU4(&lc, 0) // class serial
	lc.Write(idBytes(2, 4))
	writeU4(&lc, 0) // stack serial
	lc.Write(idBytes(1, 4))
	b.record(tagLoadClass, lc.Bytes())

	var seg bytes.Buffer
	seg.WriteByte(subInstanceDump)
	seg.Write(idBytes(100, 4)) // object id
	writeU4(&seg, 0)           // stack serial
	seg.Write(idBytes(2, 4))   // class id
	writeU4(&seg, 16)          // payload length
	seg.Write(make([]byte, 16))
	b.record(tagHeapDump, seg.Bytes())

	sink, warn, err := runParser(t, 4, b.buf.Bytes())
	require.NoError(t, err)
	require.Empty(t, warn.warnings)
	require.Len(t, sink.objects, 1)
	require.Equal(t, "java.lang.String", sink.objects[0].className)
	require.EqualValues(t, 16, sink.objects[0].size)
	require.Equal(t, []string{"STRING", "LOAD_CLASS", "HEAP_DUMP"}, sink.records)
}

// Seed scenario 2: OBJECT_ARRAY_DUMP naming.
func TestSeedScenario2ObjectArrayDump(t *testing.T) {
	var b recordBuilder

	var sb bytes.Buffer
	sb.Write(idBytes(1, 4))
	sb.WriteString("java/lang/Object")
	b.record(tagString, sb.Bytes())

	var lc bytes.Buffer
	writeU4(&lc, 0)
	lc.Write(idBytes(2, 4))
	writeU4(&lc, 0)
	lc.Write(idBytes(1, 4))
	b.record(tagLoadClass, lc.Bytes())

	var seg bytes.Buffer
	seg.WriteByte(subObjectArrayDump)
	seg.Write(idBytes(200, 4)) // array object id
	writeU4(&seg, 0)           // stack serial
	writeU4(&seg, 3)           // element count
	seg.Write(idBytes(2, 4))   // element class id
	seg.Write(make([]byte, 3*4))
	b.record(tagHeapDump, seg.Bytes())

	sink, _, err := runParser(t, 4, b.buf.Bytes())
	require.NoError(t, err)
	require.Len(t, sink.objects, 1)
	want := observedObject{"java.lang.Object[]", 3*4 + objectArrayHeaderBytes}
	require.Equal(t, want, sink.objects[0])
}

// Seed scenario 3: two START_THREAD records, no objects.
func TestSeedScenario3StartThreadsOnly(t *testing.T) {
	var b recordBuilder
	b.record(tagStartThread, make([]byte, 0))
	b.record(tagStartThread, make([]byte, 0))

	sink, _, err := runParser(t, 4, b.buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 2, sink.threads)
	require.Empty(t, sink.objects)
}

// Seed scenario 4: PRIMITIVE_ARRAY_DUMP naming/sizing.
func TestSeedScenario4PrimitiveArrayDump(t *testing.T) {
	var b recordBuilder

	var seg bytes.Buffer
	seg.WriteByte(subPrimitiveArrayDump)
	seg.Write(idBytes(300, 4)) // array object id
	writeU4(&seg, 0)           // stack serial
	writeU4(&seg, 4)           // element count
	seg.WriteByte(10)          // type int
	seg.Write(make([]byte, 4*4))
	b.record(tagHeapDump, seg.Bytes())

	sink, _, err := runParser(t, 4, b.buf.Bytes())
	require.NoError(t, err)
	require.Len(t, sink.objects, 1)
	want := observedObject{"int[]", 4*4 + primitiveArrayHeaderBytes}
	require.Equal(t, want, sink.objects[0])
}

// Seed scenario 5: corrupt UTF-8 STRING, later referenced by LOAD_CLASS.
func TestSeedScenario5CorruptUTF8String(t *testing.T) {
	var b recordBuilder

	var sb bytes.Buffer
	sb.Write(idBytes(5, 4))
	sb.Write([]byte{0xFF, 0xFE, 0xFD})
	b.record(tagString, sb.Bytes())

	var lc bytes.Buffer
	writeU4(&lc, 0)
	lc.Write(idBytes(9, 4))
	writeU4(&lc, 0)
	lc.Write(idBytes(5, 4))
	b.record(tagLoadClass, lc.Bytes())

	_, warn, err := runParser(t, 4, b.buf.Bytes())
	require.NoError(t, err)
	require.Contains(t, warn.warnings, WarnCorruptUtf8)
}

// Seed scenario 6: duplicate LOAD_CLASS for the same class id.
func TestSeedScenario6DuplicateLoadClass(t *testing.T) {
	var b recordBuilder

	mk := func(classID, nameID uint64) []byte {
		var lc bytes.Buffer
		writeU4(&lc, 0)
		lc.Write(idBytes(classID, 4))
		writeU4(&lc, 0)
		lc.Write(idBytes(nameID, 4))
		return lc.Bytes()
	}
	b.record(tagLoadClass, mk(7, 1))
	b.record(tagLoadClass, mk(7, 2))

	_, warn, err := runParser(t, 4, b.buf.Bytes())
	require.NoError(t, err)

	count := 0
	for _, k := range warn.warnings {
		if k == WarnDuplicateKey {
			count++
		}
	}
	require.Equal(t, 1, count, "expected exactly one duplicate_key warning, got %v", warn.warnings)
}

func TestEmptyDumpYieldsNoRecords(t *testing.T) {
	sink, warn, err := runParser(t, 4, nil)
	require.NoError(t, err)
	require.Empty(t, sink.objects)
	require.Zero(t, sink.threads)
	require.Empty(t, warn.warnings)
}

func TestUnknownTopLevelTagWarnsAndContinues(t *testing.T) {
	var b recordBuilder
	b.record(0x99, []byte{1, 2, 3, 4}) // unrecognized tag
	b.record(tagStartThread, nil)

	sink, warn, err := runParser(t, 4, b.buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 1, sink.threads)
	require.Contains(t, warn.warnings, WarnUnknownTopLevelTag)
	require.Equal(t, []string{"UNKNOWN", "START_THREAD"}, sink.records)
}

func TestTruncatedFinalRecordIsUnexpectedEOF(t *testing.T) {
	var b recordBuilder
	b.putU1(tagStartThread)
	b.putU4(0)
	b.putU4(10) // declares 10 bytes but none follow

	_, _, err := runParser(t, 4, b.buf.Bytes())
	require.Error(t, err)

	var fatal *hprofErrs.FatalError
	require.ErrorAs(t, err, &fatal)
	require.Equal(t, hprofErrs.UnexpectedEOF, fatal.Kind)
}

func idBytes(v uint64, idw int) []byte {
	if idw == 4 {
		var t [4]byte
		binary.BigEndian.PutUint32(t[:], uint32(v))
		return t[:]
	}
	var t [8]byte
	binary.BigEndian.PutUint64(t[:], v)
	return t[:]
}

func writeU4(buf *bytes.Buffer, v uint32) {
	var t [4]byte
	binary.BigEndian.PutUint32(t[:], v)
	buf.Write(t[:])
}
