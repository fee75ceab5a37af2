package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-obbcam/pkg/overlay"
)

// Defaults for Config.
const (
	DefaultQuality           = 80
	DefaultThrottle          = 15 * time.Millisecond
	DefaultStopTimeout       = 3 * time.Second
	DefaultMaxEncodeFailures = 30
)

// Config controls the capture loop.
type Config struct {
	// Quality is the JPEG quality (1-100).
	Quality int

	// Throttle is the pause between loop iterations.
	Throttle time.Duration

	// StopTimeout bounds how long Stop waits for the loop to exit.
	StopTimeout time.Duration

	// MaxEncodeFailures consecutive encode failures end the session.
	MaxEncodeFailures int

	// Negotiator selects the frame size after the device opens.
	// Nil uses NewNegotiator().
	Negotiator *Negotiator

	Logger *slog.Logger
}

// DefaultConfig returns the standard loop settings.
func DefaultConfig() Config {
	return Config{
		Quality:           DefaultQuality,
		Throttle:          DefaultThrottle,
		StopTimeout:       DefaultStopTimeout,
		MaxEncodeFailures: DefaultMaxEncodeFailures,
	}
}

// Info describes a started session.
type Info struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"device_index"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Meta is a point-in-time view of the worker.
type Meta struct {
	Running     bool    `json:"running"`
	State       State   `json:"state"`
	SessionID   string  `json:"session_id,omitempty"`
	DeviceIndex int     `json:"device_index"`
	FrameW      int     `json:"frame_w"`
	FrameH      int     `json:"frame_h"`
	MultiCount  int     `json:"multi_count"`
	BBoxIDs     []int64 `json:"bbox_ids"`
	FrameSeq    uint64  `json:"frame_seq"`
}

type session struct {
	info    Info
	dev     Device
	cancel  context.CancelFunc
	done    chan struct{}
	release sync.Once
}

func (s *session) closeDevice(logger *slog.Logger) {
	s.release.Do(func() {
		if err := s.dev.Close(); err != nil {
			logger.Warn("device close failed", "session", s.info.SessionID, "error", err)
		}
	})
}

// Worker owns one capture device at a time and runs the
// read, draw, encode, publish loop on a background goroutine.
//
// Start and Stop are serialized. Overlay mutation and frame reads are safe
// from any goroutine and never wait for the loop.
type Worker struct {
	cfg      Config
	opener   Opener
	renderer Renderer
	logger   *slog.Logger

	lifecycle sync.Mutex
	state     atomic.Int32

	mu      sync.Mutex
	session *session
	pending chan struct{} // done channel of a loop that outlived Stop
	onFrame func(EncodedFrame)
	onState func(State)

	overlays *overlay.Store
	frames   Publisher
}

// NewWorker creates a stopped worker.
func NewWorker(cfg Config, opener Opener, renderer Renderer) *Worker {
	def := DefaultConfig()
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	if cfg.Throttle < 0 {
		cfg.Throttle = def.Throttle
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	if cfg.MaxEncodeFailures <= 0 {
		cfg.MaxEncodeFailures = def.MaxEncodeFailures
	}
	if cfg.Negotiator == nil {
		cfg.Negotiator = NewNegotiator()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "capture")
	}
	if cfg.Negotiator.Logger == nil {
		cfg.Negotiator.Logger = logger
	}
	return &Worker{
		cfg:      cfg,
		opener:   opener,
		renderer: renderer,
		logger:   logger,
		overlays: overlay.NewStore(),
	}
}

// OnFrame registers a callback invoked on the loop goroutine after every
// publish. It must not block.
func (w *Worker) OnFrame(fn func(EncodedFrame)) {
	w.mu.Lock()
	w.onFrame = fn
	w.mu.Unlock()
}

// OnStateChange registers a callback invoked on every state transition.
// It must not block or call Start or Stop.
func (w *Worker) OnStateChange(fn func(State)) {
	w.mu.Lock()
	w.onState = fn
	w.mu.Unlock()
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// IsRunning reports whether a session is running.
func (w *Worker) IsRunning() bool {
	return w.State() == StateRunning
}

// Info returns the current session, if any.
func (w *Worker) Info() (Info, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return Info{}, false
	}
	return w.session.info, true
}

// Start opens device index, negotiates a resolution, confirms it with a first
// frame and starts the loop. The returned Info carries the size of the
// confirmed frame. If a session is already starting or running it returns
// that session's Info with ErrAlreadyRunning.
func (w *Worker) Start(index int) (Info, error) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	switch w.State() {
	case StateStarting, StateRunning:
		info, _ := w.Info()
		return info, ErrAlreadyRunning
	case StateStopping:
		return Info{}, ErrStopPending
	}
	if w.stopPending() {
		return Info{}, ErrStopPending
	}

	w.setState(StateStarting)
	logger := w.logger.With("device", index)

	dev, err := w.opener.Open(index)
	if err != nil {
		w.setState(StateStopped)
		logger.Error("open failed", "error", err)
		return Info{}, deviceError("open", index, ErrDeviceUnavailable, err)
	}

	negotiated := w.cfg.Negotiator.Negotiate(dev)

	first, err := dev.Read()
	if err != nil {
		dev.Close()
		w.setState(StateStopped)
		logger.Error("first frame failed", "error", err)
		return Info{}, deviceError("read", index, ErrNoFrame, err)
	}

	info := Info{
		SessionID: uuid.NewString(),
		Index:     index,
		Width:     first.Width(),
		Height:    first.Height(),
	}
	if info.Width != negotiated.Width || info.Height != negotiated.Height {
		logger.Warn("first frame differs from negotiated size",
			"negotiated", negotiated.String(),
			"actual", Resolution{info.Width, info.Height}.String())
	}

	if data, err := w.renderer.Encode(first, w.cfg.Quality); err == nil {
		w.publish(data, info.Width, info.Height)
	} else {
		logger.Warn("first frame encode failed", "error", err)
	}
	first.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		info:   info,
		dev:    dev,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	w.mu.Lock()
	w.session = s
	w.mu.Unlock()

	w.setState(StateRunning)
	go w.loop(ctx, s)

	logger.Info("capture started", "session", info.SessionID,
		"width", info.Width, "height", info.Height)
	return info, nil
}

// Stop cancels the running session and waits up to the stop timeout for the
// loop to exit. Overlays and the published frame are cleared either way. A
// loop that outlives the timeout keeps the device until it exits, and Start
// reports ErrStopPending until then.
func (w *Worker) Stop() error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.mu.Lock()
	s := w.session
	w.mu.Unlock()
	if s == nil || w.State() == StateStopped {
		return ErrNotRunning
	}

	w.transition(StateRunning, StateStopping)
	s.cancel()

	timer := time.NewTimer(w.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
		w.logger.Warn("capture loop did not exit in time",
			"session", s.info.SessionID, "timeout", w.cfg.StopTimeout)
		w.mu.Lock()
		w.pending = s.done
		w.mu.Unlock()
	}

	w.overlays.Clear()
	w.frames.Clear()

	w.mu.Lock()
	if w.session == s {
		w.session = nil
	}
	w.mu.Unlock()

	w.setState(StateStopped)
	w.logger.Info("capture stopped", "session", s.info.SessionID)
	return nil
}

func (w *Worker) loop(ctx context.Context, s *session) {
	logger := w.logger.With("session", s.info.SessionID)
	defer w.finish(s, logger)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		items := w.overlays.Snapshot()

		f, err := s.dev.Read()
		if err != nil {
			logger.Error("frame read failed", "error", err)
			return
		}

		if err := w.renderer.Draw(f, items); err != nil {
			logger.Debug("draw failed", "error", err)
		}
		data, err := w.renderer.Encode(f, w.cfg.Quality)
		width, height := f.Width(), f.Height()
		f.Close()

		if err != nil {
			failures++
			logger.Debug("encode failed", "error", err, "consecutive", failures)
			if failures >= w.cfg.MaxEncodeFailures {
				logger.Error("too many consecutive encode failures", "count", failures)
				return
			}
		} else {
			failures = 0
			w.publish(data, width, height)
		}

		if !sleepCtx(ctx, w.cfg.Throttle) {
			return
		}
	}
}

// finish runs once per session when the loop exits for any reason.
func (w *Worker) finish(s *session, logger *slog.Logger) {
	selfStopped := w.transition(StateRunning, StateStopping)
	s.cancel()

	s.closeDevice(logger)
	w.frames.Clear()
	w.overlays.Clear()

	w.mu.Lock()
	if w.session == s {
		w.session = nil
	}
	if w.pending == s.done {
		w.pending = nil
	}
	w.mu.Unlock()

	close(s.done)

	if selfStopped {
		w.transition(StateStopping, StateStopped)
		logger.Warn("capture loop ended without stop request")
	}
}

func (w *Worker) publish(data []byte, width, height int) {
	f := w.frames.Publish(data, width, height)
	w.mu.Lock()
	cb := w.onFrame
	w.mu.Unlock()
	if cb != nil {
		cb(f)
	}
}

func (w *Worker) stopPending() bool {
	w.mu.Lock()
	pending := w.pending
	w.mu.Unlock()
	if pending == nil {
		return false
	}
	select {
	case <-pending:
		return false
	default:
		return true
	}
}

func (w *Worker) setState(s State) {
	if old := State(w.state.Swap(int32(s))); old != s {
		w.notifyState(s)
	}
}

func (w *Worker) transition(from, to State) bool {
	if !w.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	w.notifyState(to)
	return true
}

func (w *Worker) notifyState(s State) {
	w.mu.Lock()
	cb := w.onState
	w.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// sleepCtx waits d or until ctx is done. It reports false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Meta returns the session and overlay summary.
func (w *Worker) Meta() Meta {
	m := Meta{
		State:    w.State(),
		BBoxIDs:  w.overlays.IDs(),
		FrameSeq: w.frames.Seq(),
	}
	m.Running = m.State == StateRunning
	m.MultiCount = len(m.BBoxIDs)
	if info, ok := w.Info(); ok {
		m.SessionID = info.SessionID
		m.DeviceIndex = info.Index
		m.FrameW = info.Width
		m.FrameH = info.Height
	}
	return m
}

// CurrentFrame returns the latest encoded frame.
func (w *Worker) CurrentFrame() (EncodedFrame, bool) {
	return w.frames.Current()
}

// UpsertOverlay adds or replaces an overlay.
func (w *Worker) UpsertOverlay(o overlay.Overlay) error {
	return w.overlays.Upsert(o)
}

// RemoveOverlay deletes an overlay and reports whether it existed.
func (w *Worker) RemoveOverlay(id int64) bool {
	return w.overlays.Remove(id)
}

// ClearOverlays removes all overlays.
func (w *Worker) ClearOverlays() {
	w.overlays.Clear()
}

// ReplaceOverlays swaps the whole overlay set. Nothing changes on error.
func (w *Worker) ReplaceOverlays(items []overlay.Overlay) error {
	return w.overlays.ReplaceAll(items)
}

// ListOverlays returns the overlays in draw order.
func (w *Worker) ListOverlays() []overlay.Overlay {
	return w.overlays.Snapshot()
}
