package hprof

import (
	"encoding/binary"
	"unicode/utf8"
)

// isValidUTF8 reports whether raw is well-formed UTF-8. Invalid payloads
// are tolerated (CorruptUtf8 warning, raw bytes retained as-is) rather than
// aborting the parse.
func isValidUTF8(raw []byte) bool {
	return utf8.Valid(raw)
}

// source is the cursor-style pull interface the decoders read from. It is
// satisfied by *prefetch.Reader; kept as a local interface so this package
// never imports prefetch directly.
type source interface {
	ReadExact(n int) ([]byte, error)
	ReadByteOrEOF() (byte, error)
	Skip(n int) error
	Pos() int64
}

func readU1(s source) (byte, error) {
	b, err := s.ReadExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func readU2(s source) (uint16, error) {
	b, err := s.ReadExact(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func readU4(s source) (uint32, error) {
	b, err := s.ReadExact(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func readU8(s source) (uint64, error) {
	b, err := s.ReadExact(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// readID reads an identifier of the given width (4 or 8, fixed for the
// life of a parse once read from the header).
func readID(s source, idWidth int) (uint64, error) {
	if idWidth == 4 {
		v, err := readU4(s)
		return uint64(v), err
	}
	b, err := s.ReadExact(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// basicTypeSize returns the on-disk width of a JVM basic type tag as used
// in CLASS_DUMP constant pool / field entries and PRIMITIVE_ARRAY_DUMP.
func basicTypeSize(typ byte, idWidth int) (int, bool) {
	switch typ {
	case 2: // object
		return idWidth, true
	case 4: // boolean
		return 1, true
	case 5: // char
		return 2, true
	case 6: // float
		return 4, true
	case 7: // double
		return 8, true
	case 8: // byte
		return 1, true
	case 9: // short
		return 2, true
	case 10: // int
		return 4, true
	case 11: // long
		return 8, true
	default:
		return 0, false
	}
}

// primitiveArrayElementName maps a PRIMITIVE_ARRAY_DUMP element-type byte to
// its rendered array class name, e.g. 'I' (10) -> "int[]".
func primitiveArrayElementName(typ byte) string {
	switch typ {
	case 4:
		return "boolean[]"
	case 5:
		return "char[]"
	case 6:
		return "float[]"
	case 7:
		return "double[]"
	case 8:
		return "byte[]"
	case 9:
		return "short[]"
	case 10:
		return "int[]"
	case 11:
		return "long[]"
	default:
		return "<unknown>[]"
	}
}
