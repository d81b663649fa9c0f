package hprof

import "github.com/hprofstat/heapstat/errs"

// Heap-segment sub-record tags.
const (
	subRootUnknown       = 0xFF
	subRootJNIGlobal     = 0x01
	subRootJNILocal      = 0x02
	subRootJavaFrame     = 0x03
	subRootNativeStack   = 0x04
	subRootStickyClass   = 0x05
	subRootThreadBlock   = 0x06
	subRootMonitorUsed   = 0x07
	subRootThreadObj     = 0x08
	subClassDump         = 0x20
	subInstanceDump      = 0x21
	subObjectArrayDump   = 0x22
	subPrimitiveArrayDump = 0x23
)

const (
	instanceHeaderBytes       = 16
	objectArrayHeaderBytes    = 24
	primitiveArrayHeaderBytes = 24
)

// readHeapSegment consumes exactly bodyLen bytes of nested sub-records. An
// unrecognized sub-tag is fatal (SubRecordDesync): sub-record framing has
// no length prefix, so a misread desynchronizes everything after it.
func (p *Parser) readHeapSegment(bodyLen int) error {
	remaining := bodyLen
	for remaining > 0 {
		consumed, err := p.readSubRecord()
		if err != nil {
			return err
		}
		remaining -= consumed
		if remaining < 0 {
			return errs.New(errs.SubRecordDesync, p.src.Pos(), "sub-record overran heap segment body by %d bytes", -remaining)
		}
	}
	return nil
}

func (p *Parser) readSubRecord() (int, error) {
	idw := p.state.IDWidth
	tag, err := readU1(p.src)
	if err != nil {
		return 0, errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, "reading sub-record tag")
	}
	n := 1

	switch tag {
	case subRootUnknown, subRootStickyClass, subRootMonitorUsed:
		if _, err := readID(p.src, idw); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading root id")
		}
		n += idw
	case subRootJNIGlobal:
		if _, err := readID(p.src, idw); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading JNI global root id")
		}
		if _, err := readID(p.src, idw); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading JNI global ref id")
		}
		n += 2 * idw
	case subRootJNILocal, subRootJavaFrame:
		if _, err := readID(p.src, idw); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading frame root id")
		}
		if _, err := readU4(p.src); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading frame thread serial")
		}
		if _, err := readU4(p.src); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading frame depth/number")
		}
		n += idw + 4 + 4
	case subRootNativeStack:
		if _, err := readID(p.src, idw); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading native stack root id")
		}
		if _, err := readU4(p.src); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading native stack thread serial")
		}
		n += idw + 4
	case subRootThreadBlock:
		if _, err := readID(p.src, idw); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading thread block root id")
		}
		if _, err := readU4(p.src); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading thread block serial")
		}
		n += idw + 4
	case subRootThreadObj:
		objID, err := readID(p.src, idw)
		if err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading thread object root id")
		}
		if _, err := readU4(p.src); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading thread object serial")
		}
		if _, err := readU4(p.src); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading thread object stack serial")
		}
		n += idw + 4 + 4
		if p.state.MarkThreadObj(objID) {
			p.sink.ObserveThread()
		}
	case subClassDump:
		consumed, err := p.readClassDump()
		if err != nil {
			return 0, err
		}
		n += consumed
	case subInstanceDump:
		consumed, err := p.readInstanceDump()
		if err != nil {
			return 0, err
		}
		n += consumed
	case subObjectArrayDump:
		consumed, err := p.readObjectArrayDump()
		if err != nil {
			return 0, err
		}
		n += consumed
	case subPrimitiveArrayDump:
		consumed, err := p.readPrimitiveArrayDump()
		if err != nil {
			return 0, err
		}
		n += consumed
	default:
		return 0, errs.New(errs.SubRecordDesync, p.src.Pos(), "unknown heap-segment sub-tag %#x", tag)
	}
	return n, nil
}

func wrapUnexpectedEOF(p *Parser, err error, msg string) error {
	return errs.Wrap(errs.UnexpectedEOF, p.src.Pos(), err, msg)
}

func (p *Parser) readClassDump() (int, error) {
	idw := p.state.IDWidth
	n := 0
	classID, err := readID(p.src, idw)
	if err != nil {
		return 0, wrapUnexpectedEOF(p, err, "reading class dump id")
	}
	n += idw
	if _, err := readU4(p.src); err != nil { // stack trace serial
		return 0, wrapUnexpectedEOF(p, err, "reading class dump stack serial")
	}
	n += 4
	for i := 0; i < 6; i++ { // super, loader, signers, protection domain, 2 reserved
		if _, err := readID(p.src, idw); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading class dump reference field")
		}
		n += idw
	}
	instanceSize, err := readU4(p.src)
	if err != nil {
		return 0, wrapUnexpectedEOF(p, err, "reading class dump instance size")
	}
	n += 4
	p.state.SetInstanceBytes(classID, instanceSize)

	numCP, err := readU2(p.src)
	if err != nil {
		return 0, wrapUnexpectedEOF(p, err, "reading constant pool count")
	}
	n += 2
	for i := 0; i < int(numCP); i++ {
		if _, err := readU2(p.src); err != nil { // constant pool index
			return 0, wrapUnexpectedEOF(p, err, "reading constant pool index")
		}
		typ, err := readU1(p.src)
		if err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading constant pool type")
		}
		w, ok := basicTypeSize(typ, idw)
		if !ok {
			return 0, errs.New(errs.SubRecordDesync, p.src.Pos(), "class dump constant pool has unknown basic type %#x", typ)
		}
		if err := p.src.Skip(w); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "skipping constant pool value")
		}
		n += 2 + 1 + w
	}

	numSF, err := readU2(p.src)
	if err != nil {
		return 0, wrapUnexpectedEOF(p, err, "reading static field count")
	}
	n += 2
	for i := 0; i < int(numSF); i++ {
		if _, err := readID(p.src, idw); err != nil { // field name string id
			return 0, wrapUnexpectedEOF(p, err, "reading static field name id")
		}
		typ, err := readU1(p.src)
		if err != nil {
			return 0, wrapUnexpectedEOF(p, err, "reading static field type")
		}
		w, ok := basicTypeSize(typ, idw)
		if !ok {
			return 0, errs.New(errs.SubRecordDesync, p.src.Pos(), "class dump static field has unknown basic type %#x", typ)
		}
		if err := p.src.Skip(w); err != nil {
			return 0, wrapUnexpectedEOF(p, err, "skipping static field value")
		}
		n += idw + 1 + w
	}

	numIF, err := readU2(p.src)
	if err != nil {
		return 0, wrapUnexpectedEOF(p, err, "reading instance field count")
	}
	n += 2
	for i := 0; i < int(numIF); i++ {
		if _, err := readID(p.src, idw); err != nil { // field name string id
			return 0, wrapUnexpectedEOF(p, err, "reading instance field name id")
		}
		if _, err := readU1(p.src); err != nil { // field type
			return 0, wrapUnexpectedEOF(p, err, "reading instance field type")
		}
		n += idw + 1
	}
	return n, nil
}

func (p *Parser) readInstanceDump() (int, error) {
	idw := p.state.IDWidth
	n := 0
	if _, err := readID(p.src, idw); err != nil { // object id
		return 0, wrapUnexpectedEOF(p, err, "reading instance dump object id")
	}
	n += idw
	if _, err := readU4(p.src); err != nil { // stack trace serial
		return 0, wrapUnexpectedEOF(p, err, "reading instance dump stack serial")
	}
	n += 4
	classID, err := readID(p.src, idw)
	if err != nil {
		return 0, wrapUnexpectedEOF(p, err, "reading instance dump class id")
	}
	n += idw
	payloadLen, err := readU4(p.src)
	if err != nil {
		return 0, wrapUnexpectedEOF(p, err, "reading instance dump payload length")
	}
	n += 4
	if err := p.src.Skip(int(payloadLen)); err != nil {
		return 0, wrapUnexpectedEOF(p, err, "skipping instance dump payload")
	}
	n += int(payloadLen)

	size := uint64(p.state.InstanceBytes(classID))
	if size == 0 {
		size = uint64(payloadLen)
	}
	p.sink.ObserveObject(p.state.ClassName(classID), size)
	return n, nil
}

func (p *Parser) readObjectArrayDump() (int, error) {
	idw := p.state.IDWidth
	n := 0
	if _, err := readID(p.src, idw); err != nil { // array object id
		return 0, wrapUnexpectedEOF(p, err, "reading object array id")
	}
	n += idw
	if _, err := readU4(p.src); err != nil { // stack trace serial
		return 0, wrapUnexpectedEOF(p, err, "reading object array stack serial")
	}
	n += 4
	count, err := readU4(p.src)
	if err != nil {
		return 0, wrapUnexpectedEOF(p, err, "reading object array element count")
	}
	n += 4
	elementClassID, err := readID(p.src, idw)
	if err != nil {
		return 0, wrapUnexpectedEOF(p, err, "reading object array element class id")
	}
	n += idw
	if err := p.src.Skip(int(count) * idw); err != nil {
		return 0, wrapUnexpectedEOF(p, err, "skipping object array elements")
	}
	n += int(count) * idw

	size := uint64(count)*uint64(idw) + objectArrayHeaderBytes
	p.sink.ObserveObject(p.state.ObjectArrayClassName(elementClassID), size)
	return n, nil
}

func (p *Parser) readPrimitiveArrayDump() (int, error) {
	idw := p.state.IDWidth
	n := 0
	if _, err := readID(p.src, idw); err != nil { // array object id
		return 0, wrapUnexpectedEOF(p, err, "reading primitive array id")
	}
	n += idw
	if _, err := readU4(p.src); err != nil { // stack trace serial
		return 0, wrapUnexpectedEOF(p, err, "reading primitive array stack serial")
	}
	n += 4
	count, err := readU4(p.src)
	if err != nil {
		return 0, wrapUnexpectedEOF(p, err, "reading primitive array element count")
	}
	n += 4
	typ, err := readU1(p.src)
	if err != nil {
		return 0, wrapUnexpectedEOF(p, err, "reading primitive array element type")
	}
	n += 1
	w, ok := basicTypeSize(typ, idw)
	if !ok {
		return 0, errs.New(errs.SubRecordDesync, p.src.Pos(), "primitive array has unknown element type %#x", typ)
	}
	if err := p.src.Skip(int(count) * w); err != nil {
		return 0, wrapUnexpectedEOF(p, err, "skipping primitive array elements")
	}
	n += int(count) * w

	size := uint64(count)*uint64(w) + primitiveArrayHeaderBytes
	p.sink.ObserveObject(primitiveArrayElementName(typ), size)
	return n, nil
}
