package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voice3d-server/internal/domain/capture"
	"voice3d-server/internal/domain/eventbus"
	"voice3d-server/internal/domain/normalize"
	"voice3d-server/internal/domain/pipeline"
	"voice3d-server/internal/domain/task"
	apperrors "voice3d-server/internal/platform/errors"
	"voice3d-server/internal/platform/metrics"
	"voice3d-server/internal/platform/observability"
	"voice3d-server/internal/utils"
)

const DefaultMaxDuration = 10 * time.Second

type Recorder interface {
	Start(ctx context.Context) (capture.Session, error)
	Stop(ctx context.Context) (capture.Session, bool, error)
	Reset() error
}

type Normalizer interface {
	Normalize(ctx context.Context, rawPath string) (normalize.Artifact, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, artifact normalize.Artifact) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt, style string) (*pipeline.Generation, error)
	Publish(ctx context.Context, gen *pipeline.Generation) (*pipeline.PublishedAsset, error)
}

// Events receives controller events. *eventbus.AsyncEventBus satisfies it.
type Events interface {
	PublishAsync(topic string, args ...interface{}) bool
}

type Options struct {
	// MaxDuration force-stops a recording. Zero selects DefaultMaxDuration.
	MaxDuration time.Duration
	FlushGrace  time.Duration
	KeepAudio   bool
	ArchiveDir  string
}

type Deps struct {
	Recorder    Recorder
	Normalizer  Normalizer
	Transcriber Transcriber
	Pipeline    Generator
	Events      Events
	Metrics     *metrics.Metrics
	Logger      *utils.Logger
}

// Chain is the handle of a running normalize-to-publish chain.
type Chain = task.Future[*pipeline.PublishedAsset]

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	State     State                    `json:"state"`
	SessionID string                   `json:"session_id,omitempty"`
	Since     time.Time                `json:"since"`
	LastAsset *pipeline.PublishedAsset `json:"last_asset,omitempty"`
	LastError string                   `json:"last_error,omitempty"`
	LastKind  string                   `json:"last_error_kind,omitempty"`
}

// Controller owns the only mutable session state. Every state change goes
// through transitionLocked while mu is held, and at most one chain runs.
type Controller struct {
	opts Options
	deps Deps
	now  func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu        sync.Mutex
	state     State
	since     time.Time
	sessionID string
	// cancelSession ends the force-stop watchdog of the current recording.
	cancelSession context.CancelFunc
	chain         *Chain
	lastAsset     *pipeline.PublishedAsset
	lastErr       error
	uploadSeq     int
}

func NewController(opts Options, deps Deps) *Controller {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.FlushGrace <= 0 {
		opts.FlushGrace = capture.DefaultFlushGrace
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		opts:       opts,
		deps:       deps,
		now:        time.Now,
		baseCtx:    ctx,
		baseCancel: cancel,
		state:      StateIdle,
		since:      time.Now(),
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:     c.state,
		SessionID: c.sessionID,
		Since:     c.since,
		LastAsset: c.lastAsset,
	}
	if c.lastErr != nil {
		s.LastError = apperrors.Detail(c.lastErr)
		s.LastKind = string(apperrors.KindOf(c.lastErr))
	}
	return s
}

// Start begins a recording. It is rejected while any session or chain is
// in flight; requests are never queued.
func (c *Controller) Start(ctx context.Context) (capture.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		msg := "session busy"
		if c.state == StateRecording || c.state == StateStopping {
			msg = "recording already in progress"
		}
		err := apperrors.New(apperrors.KindAlreadyRecording, "session.start", msg)
		c.deps.Metrics.RecordCommand("start", string(err.Kind))
		c.deps.Logger.WarnTag("Session", "start rejected in state %s", c.state)
		return capture.Session{}, err
	}

	sess, err := c.deps.Recorder.Start(ctx)
	if err != nil {
		c.sessionID = sess.ID
		c.failLocked("capture", err)
		c.deps.Recorder.Reset()
		c.deps.Metrics.RecordCommand("start", string(apperrors.KindOf(err)))
		return sess, err
	}

	c.sessionID = sess.ID
	c.transitionLocked(StateRecording)

	sessCtx, cancel := context.WithCancel(c.baseCtx)
	c.cancelSession = cancel
	go c.watchdog(sessCtx, sess.ID)

	c.deps.Metrics.RecordCommand("start", "ok")
	c.deps.Logger.InfoTag("Session", "session %s started, force stop in %s", sess.ID, c.opts.MaxDuration)
	return sess, nil
}

// watchdog stops the recording when MaxDuration elapses. A timer stop is
// the same operation as a manual stop.
func (c *Controller) watchdog(ctx context.Context, id string) {
	timer := time.NewTimer(c.opts.MaxDuration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	c.deps.Logger.InfoTag("Session", "session %s reached %s, stopping", id, c.opts.MaxDuration)
	if _, err := c.stopRecording(c.baseCtx, id, "timer"); err != nil {
		c.deps.Logger.ErrorTag("Session", "session %s timer stop: %v", id, err)
	}
}

// Stop ends the recording and waits for the chain it launches. Stopping
// while not recording is a no-op that returns a nil asset.
func (c *Controller) Stop(ctx context.Context) (*pipeline.PublishedAsset, error) {
	chain, err := c.stopRecording(ctx, "", "manual")
	if err != nil {
		return nil, err
	}
	if chain == nil {
		return nil, nil
	}
	asset, err := chain.Wait(ctx)
	if err != nil {
		c.deps.Metrics.RecordCommand("stop", string(apperrors.KindOf(err)))
		return nil, err
	}
	c.deps.Metrics.RecordCommand("stop", "ok")
	return asset, nil
}

// StopAsync is Stop without waiting for the chain.
func (c *Controller) StopAsync(ctx context.Context) (*Chain, error) {
	return c.stopRecording(ctx, "", "manual")
}

// stopRecording halts capture and launches the chain. A non-empty id only
// stops that session, so a late timer cannot end a newer recording.
func (c *Controller) stopRecording(ctx context.Context, id, trigger string) (*Chain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording || (id != "" && id != c.sessionID) {
		if trigger == "manual" {
			c.deps.Metrics.RecordCommand("stop", "noop")
		}
		return nil, nil
	}
	if c.cancelSession != nil {
		c.cancelSession()
		c.cancelSession = nil
	}
	c.transitionLocked(StateStopping)

	sess, _, err := c.deps.Recorder.Stop(ctx)
	if err != nil {
		c.failLocked("capture", err)
		c.dispose(sess.RawPath)
		c.deps.Recorder.Reset()
		c.deps.Metrics.RecordCommand("stop", string(apperrors.KindOf(err)))
		return nil, err
	}

	c.deps.Metrics.RecordRecording(sess.Duration())
	if sess.Truncated {
		c.deps.Metrics.RecordFlushTimeout()
		c.publish(eventbus.EventFlushTimeout, eventbus.FlushTimeoutEvent{
			SessionID: sess.ID,
			Grace:     c.opts.FlushGrace,
			Bytes:     sess.Bytes,
		})
	}
	c.deps.Logger.InfoTag("Session", "session %s stopped by %s after %s (%d bytes)",
		sess.ID, trigger, sess.Duration().Round(time.Millisecond), sess.Bytes)

	c.transitionLocked(StateFlushed)
	return c.launchLocked(sess.ID, sess.RawPath, ""), nil
}

// Upload runs the chain on an audio file that did not come from the
// microphone. The file is consumed: removed or archived afterwards.
func (c *Controller) Upload(ctx context.Context, audioPath, style string) (*pipeline.PublishedAsset, error) {
	chain, err := c.UploadAsync(audioPath, style)
	if err != nil {
		c.deps.Metrics.RecordCommand("upload", string(apperrors.KindOf(err)))
		return nil, err
	}
	asset, err := chain.Wait(ctx)
	if err != nil {
		c.deps.Metrics.RecordCommand("upload", string(apperrors.KindOf(err)))
		return nil, err
	}
	c.deps.Metrics.RecordCommand("upload", "ok")
	return asset, nil
}

func (c *Controller) UploadAsync(audioPath, style string) (*Chain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		c.deps.Logger.WarnTag("Session", "upload rejected in state %s", c.state)
		return nil, apperrors.New(apperrors.KindAlreadyRecording, "session.upload", "session busy")
	}

	c.sessionID = c.uploadIDLocked()
	c.transitionLocked(StateFlushed)
	c.deps.Logger.InfoTag("Session", "session %s processing upload %s", c.sessionID, audioPath)
	return c.launchLocked(c.sessionID, audioPath, style), nil
}

func (c *Controller) uploadIDLocked() string {
	c.uploadSeq++
	return fmt.Sprintf("upload-%s-%d", c.now().UTC().Format("20060102-150405"), c.uploadSeq)
}

func (c *Controller) launchLocked(id, rawPath, style string) *Chain {
	chain := task.Go(c.baseCtx, "chain:"+id, func(ctx context.Context) (*pipeline.PublishedAsset, error) {
		return c.runChain(ctx, id, rawPath, style)
	})
	c.chain = chain
	return chain
}

// runChain moves one captured file through normalize, transcribe, generate
// and publish. The first failure ends the chain.
func (c *Controller) runChain(ctx context.Context, id, rawPath, style string) (asset *pipeline.PublishedAsset, err error) {
	normalized := normalize.OutputPath(rawPath)
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.KindUnknown, "session.chain", fmt.Sprintf("panic: %v", r))
			c.fail(id, "chain", err)
			asset = nil
		}
		c.dispose(rawPath)
		c.dispose(normalized)
	}()

	if err := c.transition(id, StateNormalizing); err != nil {
		return nil, err
	}
	var artifact normalize.Artifact
	err = c.span(ctx, "normalize", func(ctx context.Context) error {
		var err error
		artifact, err = c.deps.Normalizer.Normalize(ctx, rawPath)
		return err
	})
	if err != nil {
		return nil, c.fail(id, "normalize", err)
	}

	if err := c.transition(id, StateTranscribing); err != nil {
		return nil, err
	}
	var transcript string
	err = c.span(ctx, "transcribe", func(ctx context.Context) error {
		var err error
		transcript, err = c.deps.Transcriber.Transcribe(ctx, artifact)
		return err
	})
	if err != nil {
		return nil, c.fail(id, "transcribe", err)
	}

	if err := c.transition(id, StateGenerating); err != nil {
		return nil, err
	}
	gen, err := c.deps.Pipeline.Generate(ctx, transcript, style)
	if err != nil {
		return nil, c.fail(id, "generate", err)
	}

	if err := c.transition(id, StatePublishing); err != nil {
		return nil, err
	}
	asset, err = c.deps.Pipeline.Publish(ctx, gen)
	if err != nil {
		return nil, c.fail(id, "publish", err)
	}

	c.complete(id, asset)
	return asset, nil
}

func (c *Controller) span(ctx context.Context, stage string, fn func(context.Context) error) error {
	ctx, end := observability.StartSpan(ctx, "session", stage)
	err := fn(ctx)
	end(err)
	return err
}

func (c *Controller) complete(id string, asset *pipeline.PublishedAsset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.sessionID {
		return
	}
	c.lastAsset = asset
	c.lastErr = nil
	c.transitionLocked(StateIdle)
	c.deps.Metrics.RecordPublish()
	c.deps.Logger.InfoTag("Session", "session %s published %s as %s", id, asset.URL, asset.Version)

	c.publish(eventbus.EventModelReady, eventbus.ModelReadyEvent{
		SessionID:    id,
		URL:          asset.URL,
		RemotePath:   asset.RemotePath,
		Version:      asset.Version,
		PriorVersion: asset.PriorVersion,
		PublishedAt:  asset.PublishedAt,
	})
}

func (c *Controller) transition(id string, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.sessionID {
		return apperrors.Newf(apperrors.KindDomain, "session.transition", "session %s is no longer current", id)
	}
	return c.transitionLocked(to)
}

func (c *Controller) transitionLocked(to State) error {
	from := c.state
	if !CanTransition(from, to) {
		err := &transitionError{from: from, to: to}
		c.deps.Logger.ErrorTag("Session", "session %s: %v", c.sessionID, err)
		return apperrors.Wrap(apperrors.KindDomain, "session.transition", "state machine violation", err)
	}
	c.state = to
	c.since = c.now()
	c.deps.Logger.DebugTag("Session", "session %s: %s -> %s", c.sessionID, from, to)
	c.publish(eventbus.EventStageChanged, eventbus.StageEvent{
		SessionID: c.sessionID,
		From:      string(from),
		To:        string(to),
	})
	return nil
}

func (c *Controller) fail(id, stage string, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == c.sessionID {
		c.failLocked(stage, err)
	}
	return err
}

// failLocked records err, passes through Failed and resets to Idle.
func (c *Controller) failLocked(stage string, err error) {
	c.lastErr = err
	c.deps.Logger.ErrorTag("Session", "session %s failed at %s: %v", c.sessionID, stage, err)
	c.publish(eventbus.EventPipelineFailed, eventbus.FailureEvent{
		SessionID: c.sessionID,
		Stage:     stage,
		Kind:      string(apperrors.KindOf(err)),
		Message:   apperrors.Detail(err),
	})
	c.transitionLocked(StateFailed)
	c.transitionLocked(StateIdle)
}

func (c *Controller) publish(topic string, event any) {
	if c.deps.Events == nil {
		return
	}
	if !c.deps.Events.PublishAsync(topic, event) {
		c.deps.Logger.WarnTag("Session", "event queue full, dropped %s", topic)
	}
}

func (c *Controller) dispose(path string) {
	if err := capture.Dispose(path, c.opts.KeepAudio, c.opts.ArchiveDir); err != nil {
		c.deps.Logger.WarnTag("Session", "dispose audio: %v", err)
	}
}

// Wait blocks until the current chain, if any, finishes.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	chain := c.chain
	c.mu.Unlock()
	if chain == nil {
		return nil
	}
	select {
	case <-chain.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops an active recording, waits for the running chain until ctx
// ends, then cancels whatever is left.
func (c *Controller) Close(ctx context.Context) error {
	if _, err := c.stopRecording(ctx, "", "shutdown"); err != nil {
		c.deps.Logger.WarnTag("Session", "stop on shutdown: %v", err)
	}
	err := c.Wait(ctx)
	c.baseCancel()
	return err
}
