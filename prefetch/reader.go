// Package prefetch implements a prefetching byte reader: a dedicated filler
// goroutine reads sequentially into pooled buffers and hands them to the
// consumer through a bounded channel, overlapping I/O with parsing.
package prefetch

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Config controls buffering behavior.
type Config struct {
	BufferSize    int // bytes per buffer
	PrefetchDepth int // buffers allowed in flight ahead of the consumer
}

// DefaultConfig matches the spec's documented defaults: 256 KiB buffers,
// 4 deep.
func DefaultConfig() Config {
	return Config{BufferSize: 256 * 1024, PrefetchDepth: 4}
}

type chunk struct {
	full []byte // original pooled backing slice, for recycling
	data []byte // unread remainder of full
	err  error
}

// Reader presents a cursor-style pull interface over src: ReadExact and
// Skip. Up to cfg.PrefetchDepth buffers are kept filled ahead of the
// consumer's position whenever src has remaining bytes.
type Reader struct {
	cfg  Config
	pool sync.Pool

	chunks chan chunk
	group  *errgroup.Group
	cancel context.CancelFunc

	cur     []byte // remainder of the chunk currently being drained
	curFull []byte // backing buffer for cur, returned to the pool when fill replaces it
	pos     int64

	closeOnce sync.Once
}

// NewReader starts the filler goroutine and returns a Reader. The filler
// runs until src is exhausted, a read error occurs, or ctx is canceled.
func NewReader(ctx context.Context, src io.Reader, cfg Config) *Reader {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.PrefetchDepth <= 0 {
		cfg.PrefetchDepth = def.PrefetchDepth
	}

	r := &Reader{
		cfg:    cfg,
		chunks: make(chan chunk, cfg.PrefetchDepth),
	}
	r.pool.New = func() any { return make([]byte, r.cfg.BufferSize) }

	fillCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	g, gctx := errgroup.WithContext(fillCtx)
	r.group = g

	g.Go(func() error {
		defer close(r.chunks)
		for {
			buf := r.pool.Get().([]byte)
			n, readErr := io.ReadFull(src, buf)
			if n > 0 {
				c := chunk{full: buf, data: buf[:n]}
				select {
				case r.chunks <- c:
				case <-gctx.Done():
					return gctx.Err()
				}
			} else {
				r.pool.Put(buf)
			}
			switch readErr {
			case nil:
				continue
			case io.EOF, io.ErrUnexpectedEOF:
				return nil
			default:
				select {
				case r.chunks <- chunk{err: readErr}:
				case <-gctx.Done():
				}
				return readErr
			}
		}
	})
	return r
}

// fill ensures r.cur holds at least one unread byte, blocking on the
// channel if necessary. Returns io.EOF once the source and channel are
// exhausted. The drained buffer is returned to the pool only here, so a
// slice borrowed from it stays intact until the next read or skip.
func (r *Reader) fill() error {
	for len(r.cur) == 0 {
		if r.curFull != nil {
			r.pool.Put(r.curFull[:cap(r.curFull)])
			r.curFull = nil
		}
		c, ok := <-r.chunks
		if !ok {
			return io.EOF
		}
		if c.err != nil {
			return c.err
		}
		r.cur = c.data
		r.curFull = c.full
	}
	return nil
}

// ReadByteOrEOF reads a single byte, returning io.EOF (unconverted) if the
// source is exhausted at a clean record boundary. The top-level record loop
// uses this to distinguish "no more records" from a truncated record.
func (r *Reader) ReadByteOrEOF() (byte, error) {
	if err := r.fill(); err != nil {
		return 0, err
	}
	b := r.cur[0]
	r.advance(1)
	return b, nil
}

// ReadExact reads exactly n bytes, returning a slice borrowed from the
// current buffer when n fits within it, or a freshly allocated spliced
// slice when the read spans a buffer boundary. Borrowed slices are only
// valid until the next ReadExact/Skip/ReadByteOrEOF call and must be copied by the
// caller if retained (e.g. into a string table).
func (r *Reader) ReadExact(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if err := r.fill(); err != nil {
		return nil, eofToUnexpected(err)
	}
	if n <= len(r.cur) {
		b := r.cur[:n]
		r.advance(n)
		return b, nil
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		if err := r.fill(); err != nil {
			return nil, eofToUnexpected(err)
		}
		take := n - len(out)
		if take > len(r.cur) {
			take = len(r.cur)
		}
		out = append(out, r.cur[:take]...)
		r.advance(take)
	}
	return out, nil
}

// Skip discards n bytes without copying them.
func (r *Reader) Skip(n int) error {
	for n > 0 {
		if err := r.fill(); err != nil {
			return eofToUnexpected(err)
		}
		take := n
		if take > len(r.cur) {
			take = len(r.cur)
		}
		r.advance(take)
		n -= take
	}
	return nil
}

func (r *Reader) advance(n int) {
	r.cur = r.cur[n:]
	r.pos += int64(n)
}

// Pos returns the number of bytes consumed so far.
func (r *Reader) Pos() int64 { return r.pos }

// Close cancels the filler if still running and waits for it to exit.
// Safe to call multiple times.
func (r *Reader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.cancel()
		for range r.chunks {
			// drain so the filler's blocked send (if any) unblocks
		}
		err = r.group.Wait()
	})
	return err
}

func eofToUnexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
