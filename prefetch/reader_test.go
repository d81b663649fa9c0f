package prefetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderReadExactWithinBuffer(t *testing.T) {
	src := bytes.NewReader([]byte("hello world"))
	r := NewReader(context.Background(), src, Config{BufferSize: 16, PrefetchDepth: 2})
	defer r.Close()

	b, err := r.ReadExact(5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))
	require.EqualValues(t, 5, r.Pos())
}

func TestReaderReadExactSpansBuffers(t *testing.T) {
	src := bytes.NewReader([]byte("0123456789"))
	r := NewReader(context.Background(), src, Config{BufferSize: 3, PrefetchDepth: 2})
	defer r.Close()

	b, err := r.ReadExact(7)
	require.NoError(t, err)
	require.Equal(t, "0123456", string(b))

	b, err = r.ReadExact(3)
	require.NoError(t, err)
	require.Equal(t, "789", string(b))
}

func TestReaderSkip(t *testing.T) {
	src := bytes.NewReader([]byte("abcdefghij"))
	r := NewReader(context.Background(), src, Config{BufferSize: 3, PrefetchDepth: 2})
	defer r.Close()

	require.NoError(t, r.Skip(4))
	b, err := r.ReadExact(2)
	require.NoError(t, err)
	require.Equal(t, "ef", string(b))
}

func TestReaderUnexpectedEOF(t *testing.T) {
	src := bytes.NewReader([]byte("ab"))
	r := NewReader(context.Background(), src, Config{BufferSize: 4, PrefetchDepth: 1})
	defer r.Close()

	_, err := r.ReadExact(5)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReaderCleanEOF(t *testing.T) {
	src := bytes.NewReader([]byte("ab"))
	r := NewReader(context.Background(), src, Config{BufferSize: 4, PrefetchDepth: 1})
	defer r.Close()

	b, err := r.ReadExact(2)
	require.NoError(t, err)
	require.Equal(t, "ab", string(b))

	_, err = r.ReadByteOrEOF()
	require.ErrorIs(t, err, io.EOF)
}

type errReader struct{ err error }

func (e errReader) Read(p []byte) (int, error) { return 0, e.err }

func TestReaderForwardsIOError(t *testing.T) {
	boom := errors.New("disk on fire")
	r := NewReader(context.Background(), errReader{boom}, Config{BufferSize: 4, PrefetchDepth: 1})
	defer r.Close()

	_, err := r.ReadExact(1)
	require.ErrorIs(t, err, boom)
}

func TestReaderCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	r := NewReader(ctx, pr, Config{BufferSize: 4, PrefetchDepth: 1})
	cancel()
	pw.Close() // unblock the filler's in-flight Read so Close() can return
	require.NoError(t, r.Close())
}
