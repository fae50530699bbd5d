package bandwidth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriterEndToEnd(t *testing.T) {
	g, err := NewGroup(WithRate(100_000), WithResolution(100), WithHighWater(512))
	require.NoError(t, err)

	var dst bytes.Buffer
	th, err := g.CreateThrottle(NewWriterSink(&dst))
	require.NoError(t, err)

	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	w := NewWriter(context.Background(), th)
	n, err := io.Copy(w, bytes.NewReader(payload))
	require.NoError(t, err)
	require.EqualValues(t, len(payload), n)

	require.NoError(t, w.Close())
	require.Equal(t, StateEnded, th.State())
	require.True(t, bytes.Equal(payload, dst.Bytes()), "copied bytes must match in order")
}

func TestWriterUnblocksOnContextCancel(t *testing.T) {
	g, err := NewGroup(WithRate(0), WithResolution(1), WithHighWater(4))
	require.NoError(t, err)

	th, err := g.CreateThrottle(NewWriterSink(io.Discard))
	require.NoError(t, err)
	defer th.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// The frozen link never drains, so the post-write wait must end
	// with the context's error while reporting the accepted length.
	w := NewWriter(ctx, th)
	n, err := w.Write(make([]byte, 64))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 64, n)
}

func TestWriterWriteAfterSinkFailure(t *testing.T) {
	g := newTestGroup(t, WithRate(100))
	cause := errors.New("downstream gone")
	sink := &captureSink{pushErr: cause}
	th := mustThrottle(t, g, sink)

	w := NewWriter(context.Background(), th)
	_, err := w.Write([]byte("first"))
	require.NoError(t, err)

	g.tick()
	waitUntil(t, 300*time.Millisecond, func() bool { return th.State() == StateAborted },
		"abort on sink failure")

	_, err = w.Write([]byte("second"))
	require.True(t, IsInvalidState(err))
	require.ErrorIs(t, err, cause)
}

func TestWriterCloseReportsSinkCloseFailure(t *testing.T) {
	g := newTestGroup(t, WithRate(100))
	sink := &captureSink{closeErr: errors.New("flush failed")}
	th := mustThrottle(t, g, sink)

	w := NewWriter(context.Background(), th)
	err := w.Close()
	require.Error(t, err)
	require.True(t, IsSinkFailed(err))
	require.Equal(t, StateEnded, th.State(), "a close failure still ends the stream")
}
