// Package buffer accumulates request bodies before dispatch. A body is
// handed on exactly once, after the transport reports its end; an aborted
// body is never dispatched.
package buffer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

var (
	ErrTooLarge = errors.New("request body exceeds limit")
	ErrReleased = errors.New("buffer already released")
	ErrEncoding = errors.New("unsupported content encoding")
)

// chunkSize is the read size used while draining a body.
const chunkSize = 32 << 10

// maxPooled caps the capacity of buffers returned to the pool.
const maxPooled = 1 << 20

var pool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// Buffer is a pooled body accumulator. It must be released exactly once.
type Buffer struct {
	buf   *bytes.Buffer
	limit int64
}

// Acquire takes a buffer from the pool. A non-positive limit disables the
// size check.
func Acquire(limit int64) *Buffer {
	buf := pool.Get().(*bytes.Buffer)
	buf.Reset()
	return &Buffer{buf: buf, limit: limit}
}

// Release returns the buffer to the pool. Further use fails with ErrReleased.
func (b *Buffer) Release() {
	if b.buf == nil {
		return
	}
	if b.buf.Cap() <= maxPooled {
		pool.Put(b.buf)
	}
	b.buf = nil
}

// Append adds a chunk in arrival order.
func (b *Buffer) Append(chunk []byte) error {
	if b.buf == nil {
		return ErrReleased
	}
	if b.limit > 0 && int64(b.buf.Len()+len(chunk)) > b.limit {
		return ErrTooLarge
	}
	b.buf.Write(chunk)
	return nil
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	if b.buf == nil {
		return 0
	}
	return b.buf.Len()
}

// ReadFrom drains r chunk by chunk until EOF, checking ctx between chunks.
func (b *Buffer) ReadFrom(ctx context.Context, r io.Reader) error {
	chunk := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			if aerr := b.Append(chunk[:n]); aerr != nil {
				return aerr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Bytes returns a copy of the buffered payload that outlives Release.
func (b *Buffer) Bytes() []byte {
	if b.buf == nil {
		return nil
	}
	return bytes.Clone(b.buf.Bytes())
}

// Collect drives body to its end and then calls dispatch once with the
// complete payload. encoding is the request's Content-Encoding; gzip bodies
// are decompressed and the limit applies to the decompressed size. If the
// body cannot be read to the end, dispatch is not called.
func Collect[T any](ctx context.Context, body io.Reader, encoding string, limit int64, dispatch func([]byte) T) (T, error) {
	var zero T

	buf := Acquire(limit)
	defer buf.Release()

	if body != nil {
		r, closeFn, err := decode(body, encoding)
		if err != nil {
			return zero, err
		}
		defer closeFn()

		if err := buf.ReadFrom(ctx, r); err != nil {
			return zero, err
		}
	}

	return dispatch(buf.Bytes()), nil
}

func decode(body io.Reader, encoding string) (io.Reader, func(), error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, func() {}, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		return zr, func() { zr.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrEncoding, encoding)
	}
}
