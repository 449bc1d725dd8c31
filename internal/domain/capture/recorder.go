package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	apperrors "voice3d-server/internal/platform/errors"
	"voice3d-server/internal/utils"
)

const (
	DefaultFlushGrace = 750 * time.Millisecond
	defaultQueueSize  = 512
)

// Options configures a Recorder.
type Options struct {
	Dir        string
	Format     Format
	FlushGrace time.Duration
	// QueueSize bounds frames buffered between the device thread and the writer.
	QueueSize int
}

// flushState is closed by the writer goroutine once the sink is closed.
type flushState struct {
	done chan struct{}
	err  error
}

// Recorder owns the microphone and the raw file of at most one session.
type Recorder struct {
	opts      Options
	newDevice DeviceFactory
	newSink   SinkFactory
	logger    *utils.Logger
	now       func() time.Time

	mu      sync.Mutex
	current *Session
	device  Device
	flush   *flushState
	lastID  string
	idSeq   int

	// frames is written from the device thread; sendMu guards close.
	sendMu  sync.Mutex
	frames  chan []byte
	closed  bool
	dropped atomic.Int64
}

// NewRecorder creates a recorder. newDevice and newSink default to malgo and WAV.
func NewRecorder(opts Options, newDevice DeviceFactory, newSink SinkFactory, logger *utils.Logger) *Recorder {
	if opts.FlushGrace <= 0 {
		opts.FlushGrace = DefaultFlushGrace
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Format.SampleRate <= 0 {
		opts.Format.SampleRate = 16000
	}
	if opts.Format.Channels <= 0 {
		opts.Format.Channels = 1
	}
	if newDevice == nil {
		newDevice = NewMalgoDevice
	}
	if newSink == nil {
		newSink = NewWAVSink
	}
	return &Recorder{
		opts:      opts,
		newDevice: newDevice,
		newSink:   newSink,
		logger:    logger,
		now:       time.Now,
	}
}

// Current returns a copy of the latest session, or false when none exists.
func (r *Recorder) Current() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Session{}, false
	}
	return r.snapshotLocked(), true
}

func (r *Recorder) snapshotLocked() Session {
	s := *r.current
	s.DroppedFrames = r.dropped.Load()
	return s
}

func (r *Recorder) nextIDLocked() string {
	base := r.now().UTC().Format("20060102-150405.000")
	if base == r.lastID {
		// same millisecond as the previous session
		r.idSeq++
		return fmt.Sprintf("%s-%d", base, r.idSeq)
	}
	r.lastID = base
	r.idSeq = 0
	return base
}

// Start opens a new sink and begins streaming the microphone into it.
func (r *Recorder) Start(ctx context.Context) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && (r.current.Status == StatusRecording || r.current.Status == StatusStopping) {
		return r.snapshotLocked(), apperrors.New(apperrors.KindAlreadyRecording, "capture.start", "recording already in progress")
	}

	r.releaseLocked(ctx)

	id := r.nextIDLocked()
	session := &Session{
		ID:        id,
		RawPath:   filepath.Join(r.opts.Dir, id+".wav"),
		Status:    StatusIdle,
		StartedAt: r.now(),
	}
	r.current = session
	r.dropped.Store(0)

	fail := func(msg string, err error) (Session, error) {
		session.Status = StatusFailed
		session.StoppedAt = r.now()
		r.logger.ErrorTag("Capture", "session %s: %s: %v", id, msg, err)
		return r.snapshotLocked(), apperrors.Wrap(apperrors.KindDevice, "capture.start", msg, err)
	}

	if err := os.MkdirAll(r.opts.Dir, 0o755); err != nil {
		return fail("create recording dir", err)
	}

	sink, err := r.newSink(session.RawPath, r.opts.Format)
	if err != nil {
		return fail("open sink", err)
	}

	device, err := r.newDevice(r.opts.Format)
	if err != nil {
		sink.Close()
		os.Remove(session.RawPath)
		return fail("open device", err)
	}

	frames := make(chan []byte, r.opts.QueueSize)
	flush := &flushState{done: make(chan struct{})}
	r.sendMu.Lock()
	r.frames = frames
	r.closed = false
	r.sendMu.Unlock()
	go drain(sink, frames, flush)

	if err := device.Start(r.enqueue); err != nil {
		r.closeFrames()
		<-flush.done
		device.Close()
		os.Remove(session.RawPath)
		return fail("start device", err)
	}

	r.device = device
	r.flush = flush
	session.Status = StatusRecording
	r.logger.InfoTag("Capture", "session %s recording to %s", id, session.RawPath)
	return r.snapshotLocked(), nil
}

// enqueue runs on the device thread.
func (r *Recorder) enqueue(frame []byte) {
	if len(frame) == 0 {
		return
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)

	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if r.closed || r.frames == nil {
		return
	}
	select {
	case r.frames <- buf:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) closeFrames() {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if r.closed || r.frames == nil {
		return
	}
	r.closed = true
	close(r.frames)
}

func drain(sink Sink, frames <-chan []byte, flush *flushState) {
	var writeErr error
	for frame := range frames {
		if writeErr != nil {
			continue
		}
		writeErr = sink.Write(frame)
	}
	if err := sink.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	flush.err = writeErr
	close(flush.done)
}

// Stop halts capture and waits for the sink to flush. It is a no-op
// returning false when no session is recording. A missed grace period is
// reported through Session.Truncated, not as an error.
func (r *Recorder) Stop(ctx context.Context) (Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.current.Status != StatusRecording {
		if r.current == nil {
			return Session{}, false, nil
		}
		return r.snapshotLocked(), false, nil
	}

	session := r.current
	session.Status = StatusStopping
	session.StoppedAt = r.now()

	if err := r.device.Stop(); err != nil {
		r.logger.WarnTag("Capture", "session %s: stop device: %v", session.ID, err)
	}
	r.closeFrames()

	timer := time.NewTimer(r.opts.FlushGrace)
	defer timer.Stop()

	select {
	case <-r.flush.done:
		if r.flush.err != nil {
			session.Status = StatusFailed
			r.releaseDeviceLocked()
			return r.snapshotLocked(), true, apperrors.Wrap(apperrors.KindDevice, "capture.stop", "flush raw audio", r.flush.err)
		}
	case <-timer.C:
		session.Truncated = true
		r.logger.WarnTag("Capture", "session %s: write-complete not observed within %s, continuing", session.ID, r.opts.FlushGrace)
	case <-ctx.Done():
		session.Status = StatusFailed
		r.releaseDeviceLocked()
		return r.snapshotLocked(), true, apperrors.Wrap(apperrors.KindDevice, "capture.stop", "flush wait cancelled", ctx.Err())
	}

	r.releaseDeviceLocked()
	session.Bytes = utils.FileSize(session.RawPath)
	session.Status = StatusFlushed
	r.logger.InfoTag("Capture", "session %s flushed: %d bytes in %s", session.ID, session.Bytes, session.Duration().Round(time.Millisecond))
	return r.snapshotLocked(), true, nil
}

func (r *Recorder) releaseDeviceLocked() {
	if r.device == nil {
		return
	}
	if err := r.device.Close(); err != nil {
		r.logger.WarnTag("Capture", "release device: %v", err)
	}
	r.device = nil
}

// releaseLocked drops everything the previous session still holds. A writer
// that missed its grace period gets one more grace period to finish.
func (r *Recorder) releaseLocked(ctx context.Context) {
	if r.device != nil {
		r.device.Stop()
	}
	r.releaseDeviceLocked()
	r.closeFrames()

	if r.flush != nil {
		select {
		case <-r.flush.done:
		case <-time.After(r.opts.FlushGrace):
			r.logger.WarnTag("Capture", "previous sink still flushing, continuing")
		case <-ctx.Done():
		}
		r.flush = nil
	}
}

// Reset forgets a finished session so the recorder reports Idle.
// It refuses to drop a session that is still recording.
func (r *Recorder) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.current.Status == StatusRecording {
		return fmt.Errorf("session %s still recording", r.current.ID)
	}
	r.current = nil
	return nil
}

// Close stops any active capture and releases the device.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked(context.Background())
	if r.current != nil && r.current.Status == StatusRecording {
		r.current.Status = StatusFailed
	}
	return nil
}
