package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFormatsMessageWithOffset(t *testing.T) {
	err := New(SubRecordDesync, 42, "bad tag %#x", 0x99)
	require.Equal(t, "sub_record_desync at offset 42: bad tag 0x99", err.Error())
}

func TestWrapPreservesUnderlyingError(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(IOError, -1, cause, "reading chunk")
	require.ErrorIs(t, err, cause)
}

func TestIsComparesByKind(t *testing.T) {
	a := New(HeaderInvalid, 0, "bad label")
	b := New(HeaderInvalid, 99, "different message, same kind")
	c := New(IOError, 0, "different kind")

	require.ErrorIs(t, a, b, "expected FatalErrors with the same Kind to match via errors.Is")
	require.False(t, errors.Is(a, c), "expected FatalErrors with different Kinds not to match")
}
