package buffer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectString(t *testing.T, body io.Reader, encoding string, limit int64) (string, int, error) {
	t.Helper()
	calls := 0
	got, err := Collect(context.Background(), body, encoding, limit, func(b []byte) string {
		calls++
		return string(b)
	})
	return got, calls, err
}

func TestCollectPreservesChunkOrder(t *testing.T) {
	payload := strings.Repeat("0123456789", 10000)

	got, calls, err := collectString(t, iotest.OneByteReader(strings.NewReader(payload)), "", 0)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, payload, got)
}

func TestCollectEmptyBody(t *testing.T) {
	tests := []struct {
		name string
		body io.Reader
	}{
		{name: "nil body", body: nil},
		{name: "empty reader", body: strings.NewReader("")},
		{name: "data with EOF", body: iotest.DataErrReader(strings.NewReader(""))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, calls, err := collectString(t, tt.body, "", 10)
			require.NoError(t, err)
			assert.Equal(t, 1, calls)
			assert.Empty(t, got)
		})
	}
}

func TestCollectAbortNeverDispatches(t *testing.T) {
	errReset := errors.New("connection reset")

	tests := []struct {
		name    string
		body    io.Reader
		limit   int64
		wantErr error
	}{
		{
			name:    "transport error mid-body",
			body:    io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(errReset)),
			wantErr: errReset,
		},
		{
			name:    "unexpected EOF",
			body:    iotest.ErrReader(io.ErrUnexpectedEOF),
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "over limit",
			body:    strings.NewReader("0123456789A"),
			limit:   10,
			wantErr: ErrTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, calls, err := collectString(t, tt.body, "", tt.limit)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, calls)
		})
	}
}

func TestCollectExactlyAtLimit(t *testing.T) {
	got, calls, err := collectString(t, strings.NewReader("0123456789"), "", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "0123456789", got)
}

func TestCollectCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Collect(ctx, strings.NewReader("body"), "", 0, func([]byte) int {
		calls++
		return 0
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestCollectGzip(t *testing.T) {
	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	_, err := zw.Write([]byte("function start(){return 'Success'}"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	got, calls, err := collectString(t, bytes.NewReader(compressed.Bytes()), "gzip", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "function start(){return 'Success'}", got)

	// The limit applies after decompression
	_, calls, err = collectString(t, bytes.NewReader(compressed.Bytes()), "gzip", 8)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, 0, calls)
}

func TestCollectBadEncoding(t *testing.T) {
	_, calls, err := collectString(t, strings.NewReader("not gzip"), "gzip", 0)
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Equal(t, 0, calls)

	_, calls, err = collectString(t, strings.NewReader("x"), "br", 0)
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Equal(t, 0, calls)
}

func TestDispatchedBytesOutliveRelease(t *testing.T) {
	var kept []byte
	_, err := Collect(context.Background(), strings.NewReader("keep me"), "", 0, func(b []byte) struct{} {
		kept = b
		return struct{}{}
	})
	require.NoError(t, err)

	// Reuse the pool so the old backing array would be overwritten
	other := Acquire(0)
	require.NoError(t, other.Append([]byte("XXXXXXX")))
	other.Release()

	assert.Equal(t, "keep me", string(kept))
}

func TestReleasedBuffer(t *testing.T) {
	b := Acquire(0)
	require.NoError(t, b.Append([]byte("abc")))
	assert.Equal(t, 3, b.Len())

	b.Release()
	b.Release()

	assert.ErrorIs(t, b.Append([]byte("d")), ErrReleased)
	assert.Nil(t, b.Bytes())
	assert.Equal(t, 0, b.Len())
}
