// Package web serves the capture worker over HTTP: control endpoints,
// overlay CRUD, JPEG snapshot and MJPEG stream, websocket feeds and the
// WebRTC relay signaling endpoint.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-obbcam/pkg/capture"
	"github.com/teslashibe/go-obbcam/pkg/devwatch"
	"github.com/teslashibe/go-obbcam/pkg/hub"
	"github.com/teslashibe/go-obbcam/pkg/store"
)

// DefaultStreamInterval is the MJPEG poll period.
const DefaultStreamInterval = 30 * time.Millisecond

const shutdownTimeout = 5 * time.Second

// OverlayStore persists overlay records. *store.Store satisfies it.
type OverlayStore interface {
	Get(ctx context.Context, id int64) (*store.Record, error)
	List(ctx context.Context) ([]*store.Record, error)
	Upsert(ctx context.Context, r store.Record) (*store.Record, error)
	Update(ctx context.Context, id int64, p store.Patch) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// Signaler answers WebRTC offers. *relay.Relay satisfies it.
type Signaler interface {
	Answer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
}

// Options configures the server.
type Options struct {
	Addr           string
	CORS           bool
	StreamInterval time.Duration

	// ReplayOnStart copies persisted records into the worker after a start.
	ReplayOnStart bool

	// DefaultIndex is used when a start request names no device.
	DefaultIndex int

	// Relay handles /api/webrtc/offer. Nil disables the endpoint.
	Relay Signaler

	// Devices lists capture devices. Nil uses devwatch.List.
	Devices func() ([]devwatch.Device, error)

	Logger *slog.Logger
}

// StatusEvent is pushed to /ws/status subscribers.
type StatusEvent struct {
	Type    string          `json:"type"` // "state" or "device"
	State   string          `json:"state,omitempty"`
	Running bool            `json:"running"`
	Device  *devwatch.Event `json:"device,omitempty"`
	Time    time.Time       `json:"time"`
}

// Server is the HTTP boundary around one capture worker.
type Server struct {
	app    *fiber.App
	opts   Options
	logger *slog.Logger

	worker *capture.Worker
	store  OverlayStore

	statusHub *hub.Hub
	cameraHub *hub.Hub

	// closed when Serve begins shutting down; ends MJPEG streams
	quit chan struct{}
}

// NewServer wires worker and st into a fiber app.
func NewServer(worker *capture.Worker, st OverlayStore, opts Options) *Server {
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = DefaultStreamInterval
	}
	if opts.Devices == nil {
		opts.Devices = devwatch.List
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		opts:      opts,
		logger:    logger,
		worker:    worker,
		store:     st,
		statusHub: hub.New("status", logger),
		cameraHub: hub.New("camera", logger),
		quit:      make(chan struct{}),
	}

	worker.OnFrame(func(f capture.EncodedFrame) {
		s.cameraHub.BroadcastBinary(f.Data)
	})
	worker.OnStateChange(func(state capture.State) {
		s.broadcastStatus(StatusEvent{
			Type:    "state",
			State:   state.String(),
			Running: state == capture.StateRunning,
		})
	})

	app := fiber.New(fiber.Config{
		AppName:               "obbcam",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	if opts.CORS {
		app.Use(cors.New())
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/meta", s.handleMeta)
	api.Post("/start", s.handleStart)
	api.Post("/stop", s.handleStop)

	api.Post("/bbox", s.handleUpsertOverlay)
	api.Get("/bbox/:id", s.handleGetOverlay)
	api.Patch("/bbox/:id", s.handlePatchOverlay)
	api.Delete("/bbox/:id", s.handleDeleteOverlay)
	api.Get("/bboxes", s.handleListOverlays)
	api.Put("/bboxes", s.handleReplaceOverlays)
	api.Delete("/bboxes", s.handleClearOverlays)

	api.Post("/webrtc/offer", s.handleOffer)
	api.Get("/devices", s.handleDevices)

	app.Get("/snapshot.jpg", s.handleSnapshot)
	app.Get("/stream.mjpg", s.handleStream)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on Options.Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve starts the hubs and serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, cancelHubs := context.WithCancel(ctx)
	defer cancelHubs()
	go s.statusHub.Run(hubCtx)
	go s.cameraHub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		close(s.quit)
		return err
	case <-ctx.Done():
	}

	close(s.quit)
	cancelHubs()
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// NotifyDevice pushes a hotplug event to /ws/status subscribers.
func (s *Server) NotifyDevice(ev devwatch.Event) {
	s.broadcastStatus(StatusEvent{
		Type:    "device",
		Running: s.worker.IsRunning(),
		Device:  &ev,
	})
}

func (s *Server) broadcastStatus(ev StatusEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if err := s.statusHub.BroadcastJSON(ev); err != nil {
		s.logger.Warn("status broadcast failed", "error", err)
	}
}

// handleError renders fiber errors in the {"ok":false,"msg":...} shape.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= 500 {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return fail(c, code, err.Error())
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"ok": false, "msg": msg})
}
