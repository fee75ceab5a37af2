package web

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-obbcam/pkg/capture"
	"github.com/teslashibe/go-obbcam/pkg/overlay"
	"github.com/teslashibe/go-obbcam/pkg/store"
)

const (
	msgNotRunning = "camera is not running"
	msgNoFrame    = "no frame yet"
)

func noCache(c *fiber.Ctx) {
	c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
	c.Set(fiber.HeaderPragma, "no-cache")
	c.Set(fiber.HeaderExpires, "0")
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := s.worker.State()
	return c.JSON(fiber.Map{
		"running": st == capture.StateRunning,
		"state":   st.String(),
	})
}

func (s *Server) handleMeta(c *fiber.Ctx) error {
	if !s.worker.IsRunning() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"running": false, "msg": msgNotRunning})
	}
	return c.JSON(s.worker.Meta())
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	index := s.opts.DefaultIndex
	if body := c.Body(); len(body) > 0 {
		f, err := decodeFields(body)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
		if f.has("index") {
			v, err := f.integer("index")
			if err != nil || v < 0 {
				return fail(c, fiber.StatusBadRequest, "index must be a non-negative integer")
			}
			index = int(v)
		}
	}

	info, err := s.worker.Start(index)
	switch {
	case errors.Is(err, capture.ErrAlreadyRunning):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"ok":         false,
			"msg":        "camera already running",
			"session_id": info.SessionID,
		})
	case errors.Is(err, capture.ErrStopPending):
		return fail(c, fiber.StatusConflict, "previous session is still shutting down")
	case errors.Is(err, capture.ErrDeviceUnavailable), errors.Is(err, capture.ErrNoFrame):
		s.logger.Warn("start failed", "index", index, "error", err)
		return fail(c, fiber.StatusServiceUnavailable, err.Error())
	case err != nil:
		return err
	}

	resp := fiber.Map{
		"ok":           true,
		"width":        info.Width,
		"height":       info.Height,
		"session_id":   info.SessionID,
		"device_index": info.Index,
	}
	if s.opts.ReplayOnStart {
		resp["replayed"] = s.Replay(c.UserContext())
	}
	return c.JSON(resp)
}

// Replay loads persisted records into the worker, oldest first so the
// draw order follows creation order. It returns the number loaded.
func (s *Server) Replay(ctx context.Context) int {
	recs, err := s.store.List(ctx)
	if err != nil {
		s.logger.Warn("replay: list failed", "error", err)
		return 0
	}
	n := 0
	for i := len(recs) - 1; i >= 0; i-- {
		if err := s.worker.UpsertOverlay(recordOverlay(recs[i])); err != nil {
			s.logger.Warn("replay: skipping record", "id", recs[i].ID, "error", err)
			continue
		}
		n++
	}
	s.logger.Info("replayed overlays", "count", n)
	return n
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.worker.Stop(); err != nil {
		if errors.Is(err, capture.ErrNotRunning) {
			return fail(c, fiber.StatusBadRequest, msgNotRunning)
		}
		return err
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	if !s.worker.IsRunning() {
		return fail(c, fiber.StatusBadRequest, msgNotRunning)
	}
	f, ok := s.worker.CurrentFrame()
	if !ok {
		return fail(c, fiber.StatusServiceUnavailable, msgNoFrame)
	}
	noCache(c)
	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(f.Data)
}

// handleStream writes a multipart/x-mixed-replace stream. Each new frame is
// one part; the stream ends with the closing boundary once the session it
// started on ends, even if another session has started since.
func (s *Server) handleStream(c *fiber.Ctx) error {
	info, ok := s.worker.Info()
	if !ok || !s.worker.IsRunning() {
		return fail(c, fiber.StatusBadRequest, msgNotRunning)
	}
	session := info.SessionID
	noCache(c)
	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary=frame")

	interval := s.opts.StreamInterval
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last uint64
		for s.sameSession(session) {
			if f, ok := s.worker.CurrentFrame(); ok && f.Seq != last {
				last = f.Seq
				if err := writePart(w, f.Data); err != nil {
					s.logger.Debug("stream client gone", "error", err)
					return
				}
			}
			select {
			case <-s.quit:
				return
			case <-ticker.C:
			}
		}
		w.WriteString("--frame--\r\n")
		w.Flush()
	})
	return nil
}

func (s *Server) sameSession(id string) bool {
	info, ok := s.worker.Info()
	return ok && info.SessionID == id && s.worker.IsRunning()
}

func writePart(w *bufio.Writer, jpeg []byte) error {
	fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg))
	w.Write(jpeg)
	w.WriteString("\r\n")
	return w.Flush()
}

func recordOverlay(r *store.Record) overlay.Overlay {
	color, err := overlay.ParseHex(r.ColorHex)
	if err != nil {
		color = overlay.DefaultColor
	}
	return overlay.Overlay{
		ID:    r.ID,
		CX:    r.CX,
		CY:    r.CY,
		W:     r.W,
		H:     r.H,
		Angle: r.AngleDeg,
		Color: color,
	}
}

func overlayRecord(o overlay.Overlay) store.Record {
	return store.Record{
		ID:       o.ID,
		CX:       o.CX,
		CY:       o.CY,
		W:        o.W,
		H:        o.H,
		AngleDeg: o.Angle,
		ColorHex: o.Color.Hex(),
	}
}
