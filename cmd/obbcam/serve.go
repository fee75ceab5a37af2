package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-obbcam/internal/config"
	"github.com/teslashibe/go-obbcam/internal/log"
	"github.com/teslashibe/go-obbcam/pkg/capture"
	"github.com/teslashibe/go-obbcam/pkg/capture/cv"
	"github.com/teslashibe/go-obbcam/pkg/devwatch"
	"github.com/teslashibe/go-obbcam/pkg/relay"
	"github.com/teslashibe/go-obbcam/pkg/store"
	"github.com/teslashibe/go-obbcam/pkg/web"
)

type serveOptions struct {
	addr      string
	db        string
	index     int
	autostart bool
	noRelay   bool
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			applyServeFlags(cmd, cfg, opts)
			log.Init(cfg.Logging.Level, cfg.Logging.Format)
			return runServe(cmd.Context(), cfg, opts.autostart)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().StringVar(&opts.db, "db", "", "SQLite database path (overrides store.path)")
	cmd.Flags().IntVar(&opts.index, "index", 0, "Camera index (overrides camera.index)")
	cmd.Flags().BoolVar(&opts.autostart, "start", false, "Start the camera immediately")
	cmd.Flags().BoolVar(&opts.noRelay, "no-relay", false, "Disable the WebRTC relay")
	return cmd
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config, opts serveOptions) {
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.db != "" {
		cfg.Store.Path = opts.db
	}
	if cmd.Flags().Changed("index") {
		cfg.Camera.Index = opts.index
	}
	if opts.noRelay {
		cfg.Relay.Enabled = false
	}
}

// newNegotiator builds the resolution negotiator from camera settings.
func newNegotiator(cam config.Camera, logger *slog.Logger) (*capture.Negotiator, error) {
	n := capture.NewNegotiator()
	n.Warmup = cam.WarmupFrames
	n.Logger = logger
	if len(cam.Resolutions) > 0 {
		n.Candidates = make([]capture.Resolution, 0, len(cam.Resolutions))
		for _, r := range cam.Resolutions {
			w, h, err := config.ParseResolution(r)
			if err != nil {
				return nil, err
			}
			n.Candidates = append(n.Candidates, capture.Resolution{Width: w, Height: h})
		}
	}
	if len(cam.Formats) > 0 {
		n.Formats = cam.Formats
	}
	return n, nil
}

func runServe(ctx context.Context, cfg *config.Config, autostart bool) error {
	logger := log.Component("serve")

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("store opened", "path", st.Path())

	neg, err := newNegotiator(cfg.Camera, log.Component("negotiate"))
	if err != nil {
		return err
	}
	worker := capture.NewWorker(capture.Config{
		Quality:     cfg.Camera.JPEGQuality,
		Throttle:    cfg.Camera.Throttle(),
		StopTimeout: cfg.Camera.StopTimeout(),
		Negotiator:  neg,
		Logger:      log.Component("capture"),
	}, cv.NewOpener(cfg.Camera.LockDir, log.Component("device")), cv.NewRenderer())
	defer func() {
		if err := worker.Stop(); err != nil && !errors.Is(err, capture.ErrNotRunning) {
			logger.Warn("stop on shutdown", "error", err)
		}
	}()

	opts := web.Options{
		Addr:           cfg.Server.Addr,
		CORS:           cfg.Server.CORS,
		StreamInterval: cfg.Server.StreamInterval(),
		ReplayOnStart:  cfg.Store.ReplayOnStart,
		DefaultIndex:   cfg.Camera.Index,
		Logger:         log.L(),
	}
	if cfg.Relay.Enabled {
		r := relay.New(relay.Config{
			ICEServers:    cfg.Relay.ICEServers,
			FrameInterval: cfg.Relay.FrameInterval(),
			Logger:        log.L(),
		}, worker)
		defer r.Close()
		opts.Relay = r
	}
	srv := web.NewServer(worker, st, opts)

	if cfg.Camera.WatchDevices {
		mon := devwatch.NewMonitor(log.Component("devwatch"), func(ev devwatch.Event) {
			logger.Info("video device event", "action", ev.Action, "path", ev.Device.Path)
			srv.NotifyDevice(ev)
		})
		switch err := mon.Start(ctx); {
		case errors.Is(err, devwatch.ErrUnsupported):
			logger.Debug("device monitor unavailable on this platform")
		case err != nil:
			logger.Warn("device monitor unavailable; hotplug events disabled", "error", err)
		default:
			defer mon.Stop()
		}
	}

	if autostart {
		info, err := worker.Start(cfg.Camera.Index)
		if err != nil {
			return fmt.Errorf("start camera %d: %w", cfg.Camera.Index, err)
		}
		logger.Info("camera started", "index", info.Index, "width", info.Width, "height", info.Height)
		if cfg.Store.ReplayOnStart {
			srv.Replay(ctx)
		}
	}

	return srv.Run(ctx)
}
