package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "voice3d-server/internal/platform/errors"
)

type fakeDevice struct {
	mu       sync.Mutex
	onData   func([]byte)
	startErr error
	started  bool
	stopped  bool
	closed   bool
}

func (d *fakeDevice) Start(onData func([]byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.onData = onData
	d.started = true
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) emit(frame []byte) {
	d.mu.Lock()
	fn := d.onData
	d.mu.Unlock()
	fn(frame)
}

type deviceBox struct {
	mu      sync.Mutex
	devices []*fakeDevice
	err     error
	start   error
}

func (b *deviceBox) factory(Format) (Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	d := &fakeDevice{startErr: b.start}
	b.devices = append(b.devices, d)
	return d, nil
}

func (b *deviceBox) last() *fakeDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.devices[len(b.devices)-1]
}

// slowSink blocks Close until released, simulating a lagging write-complete.
type slowSink struct {
	Sink
	release chan struct{}
}

func (s *slowSink) Close() error {
	<-s.release
	return s.Sink.Close()
}

func pcmFrame(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func newTestRecorder(t *testing.T, box *deviceBox, sinks SinkFactory) *Recorder {
	t.Helper()
	return NewRecorder(Options{
		Dir:        t.TempDir(),
		Format:     Format{SampleRate: 16000, Channels: 1},
		FlushGrace: 200 * time.Millisecond,
	}, box.factory, sinks, nil)
}

func TestRecorder_StartStopWritesWAV(t *testing.T) {
	box := &deviceBox{}
	rec := newTestRecorder(t, box, nil)

	session, err := rec.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRecording, session.Status)
	assert.NotEmpty(t, session.ID)

	dev := box.last()
	dev.emit(pcmFrame(1, 2, 3, 4))
	dev.emit(pcmFrame(-5, 6, -7, 8))

	stopped, wasRecording, err := rec.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, wasRecording)
	assert.Equal(t, StatusFlushed, stopped.Status)
	assert.False(t, stopped.Truncated)
	assert.Greater(t, stopped.Bytes, int64(44))
	assert.True(t, dev.stopped)
	assert.True(t, dev.closed)

	f, err := os.Open(stopped.RawPath)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(16000), dec.SampleRate)
	assert.Equal(t, uint16(1), dec.NumChans)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, -5, 6, -7, 8}, buf.Data)
}

func TestRecorder_DoubleStartRejected(t *testing.T) {
	box := &deviceBox{}
	rec := newTestRecorder(t, box, nil)

	first, err := rec.Start(context.Background())
	require.NoError(t, err)

	second, err := rec.Start(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAlreadyRecording))
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, box.devices, 1)

	_, _, err = rec.Stop(context.Background())
	require.NoError(t, err)
}

func TestRecorder_StopWhenIdleIsNoop(t *testing.T) {
	rec := newTestRecorder(t, &deviceBox{}, nil)

	_, wasRecording, err := rec.Stop(context.Background())
	assert.NoError(t, err)
	assert.False(t, wasRecording)

	_, ok := rec.Current()
	assert.False(t, ok)
}

func TestRecorder_DeviceErrors(t *testing.T) {
	box := &deviceBox{err: errors.New("no microphone")}
	rec := newTestRecorder(t, box, nil)

	session, err := rec.Start(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDevice))
	assert.Equal(t, StatusFailed, session.Status)
	assert.NoFileExists(t, session.RawPath)

	box.err = nil
	box.start = errors.New("device busy")
	session, err = rec.Start(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDevice))
	assert.Equal(t, StatusFailed, session.Status)
	assert.True(t, box.last().closed)

	// a failed session does not block the next start
	box.start = nil
	_, err = rec.Start(context.Background())
	require.NoError(t, err)
}

func TestRecorder_SinkError(t *testing.T) {
	box := &deviceBox{}
	rec := newTestRecorder(t, box, func(string, Format) (Sink, error) {
		return nil, errors.New("disk full")
	})

	session, err := rec.Start(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDevice))
	assert.Equal(t, StatusFailed, session.Status)
	assert.Empty(t, box.devices)
}

func TestRecorder_FlushTimeoutIsNonFatal(t *testing.T) {
	release := make(chan struct{})
	box := &deviceBox{}
	rec := newTestRecorder(t, box, func(path string, format Format) (Sink, error) {
		inner, err := NewWAVSink(path, format)
		if err != nil {
			return nil, err
		}
		return &slowSink{Sink: inner, release: release}, nil
	})

	_, err := rec.Start(context.Background())
	require.NoError(t, err)
	box.last().emit(pcmFrame(10, 20))

	begin := time.Now()
	session, _, err := rec.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, session.Truncated)
	assert.Equal(t, StatusFlushed, session.Status)
	assert.GreaterOrEqual(t, time.Since(begin), 200*time.Millisecond)

	// the next start waits for the lagging writer before opening a new sink
	close(release)
	next, err := rec.Start(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, session.ID, next.ID)
}

func TestRecorder_ReleasesPreviousDevice(t *testing.T) {
	box := &deviceBox{}
	rec := newTestRecorder(t, box, nil)

	_, err := rec.Start(context.Background())
	require.NoError(t, err)
	_, _, err = rec.Stop(context.Background())
	require.NoError(t, err)
	first := box.last()

	require.NoError(t, rec.Reset())
	_, err = rec.Start(context.Background())
	require.NoError(t, err)

	assert.True(t, first.closed)
	assert.Len(t, box.devices, 2)
	require.NoError(t, rec.Close())
	assert.True(t, box.last().closed)
}

func TestRecorder_EmptyCaptureIsHeaderOnly(t *testing.T) {
	box := &deviceBox{}
	rec := newTestRecorder(t, box, nil)

	_, err := rec.Start(context.Background())
	require.NoError(t, err)
	session, _, err := rec.Stop(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, session.Bytes, int64(44))
}

func TestDispose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.wav")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, Dispose(path, false, ""))
	assert.NoFileExists(t, path)
	assert.NoError(t, Dispose(path, false, ""))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	archive := filepath.Join(dir, "archive")
	require.NoError(t, Dispose(path, true, archive))
	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(archive, "a.wav"))
}
