package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-obbcam/pkg/overlay"
	"github.com/teslashibe/go-obbcam/pkg/store"
)

func overlayView(o overlay.Overlay) fiber.Map {
	return fiber.Map{
		"cx":           o.CX,
		"cy":           o.CY,
		"w":            o.W,
		"h":            o.H,
		"angle_deg_cv": o.Angle,
		"color_hex":    o.Color.Hex(),
	}
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id %q must be an integer", c.Params("id"))
	}
	return id, nil
}

func (s *Server) workerOverlays() []overlay.Overlay {
	if !s.worker.IsRunning() {
		return []overlay.Overlay{}
	}
	return s.worker.ListOverlays()
}

// handleUpsertOverlay draws the overlay on the running session and then
// persists it.
func (s *Server) handleUpsertOverlay(c *fiber.Ctx) error {
	if !s.worker.IsRunning() {
		return fail(c, fiber.StatusBadRequest, msgNotRunning)
	}
	f, err := decodeFields(c.Body())
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	o, err := parseOverlay(f)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	if err := s.worker.UpsertOverlay(o); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	if _, err := s.store.Upsert(c.UserContext(), overlayRecord(o)); err != nil {
		s.logger.Error("persist overlay failed", "id", o.ID, "error", err)
		return fail(c, fiber.StatusInternalServerError, "save failed: "+err.Error())
	}
	return c.JSON(fiber.Map{"ok": true, "id": o.ID, "saved": overlayView(o)})
}

func (s *Server) handleGetOverlay(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	rec, err := s.store.Get(c.UserContext(), id)
	if errors.Is(err, store.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, fmt.Sprintf("id %d does not exist", id))
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "item": rec})
}

// handlePatchOverlay merges the body over the persisted record, which is the
// source of truth for partial updates. The worker is updated best-effort.
func (s *Server) handlePatchOverlay(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	f, err := decodeFields(c.Body())
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	cur, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, fmt.Sprintf("id %d does not exist", id))
	}
	if err != nil {
		return err
	}

	o := recordOverlay(cur)
	for _, p := range []struct {
		key string
		dst *float64
	}{
		{"cx", &o.CX}, {"cy", &o.CY}, {"w", &o.W}, {"h", &o.H},
	} {
		if !f.has(p.key) {
			continue
		}
		if *p.dst, err = f.float(p.key); err != nil {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
	}
	if angle, ok, err := f.angle(); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	} else if ok {
		o.Angle = angle
	}
	if color, ok, err := f.color(); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	} else if ok {
		o.Color = color
	}
	if err := o.Validate(); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	hex := o.Color.Hex()
	updated, err := s.store.Update(ctx, id, store.Patch{
		CX:       &o.CX,
		CY:       &o.CY,
		W:        &o.W,
		H:        &o.H,
		AngleDeg: &o.Angle,
		ColorHex: &hex,
	})
	if err != nil {
		s.logger.Error("update overlay failed", "id", id, "error", err)
		return fail(c, fiber.StatusInternalServerError, "update failed: "+err.Error())
	}
	if !updated {
		return fail(c, fiber.StatusNotFound, fmt.Sprintf("id %d does not exist", id))
	}

	workerUpdated := false
	if s.worker.IsRunning() {
		if err := s.worker.UpsertOverlay(o); err != nil {
			s.logger.Warn("worker overlay update failed", "id", id, "error", err)
		} else {
			workerUpdated = true
		}
	}

	return c.JSON(fiber.Map{
		"ok":             true,
		"id":             id,
		"updated":        overlayView(o),
		"worker_updated": workerUpdated,
	})
}

func (s *Server) handleDeleteOverlay(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	removedWorker := s.worker.IsRunning() && s.worker.RemoveOverlay(id)
	removedDB, err := s.store.Delete(c.UserContext(), id)
	if err != nil {
		s.logger.Error("delete overlay failed", "id", id, "error", err)
		return fail(c, fiber.StatusInternalServerError, "delete failed: "+err.Error())
	}
	if !removedWorker && !removedDB {
		return fail(c, fiber.StatusNotFound, fmt.Sprintf("id %d does not exist", id))
	}
	return c.JSON(fiber.Map{
		"ok": true,
		"id": id,
		"removed": fiber.Map{
			"worker": removedWorker,
			"db":     removedDB,
		},
	})
}

// handleListOverlays lists persisted records (source=db, the default), the
// overlays the running worker draws (source=worker), or both.
func (s *Server) handleListOverlays(c *fiber.Ctx) error {
	source := strings.ToLower(c.Query("source", "db"))
	switch source {
	case "worker":
		return c.JSON(fiber.Map{
			"ok":      true,
			"source":  source,
			"running": s.worker.IsRunning(),
			"items":   s.workerOverlays(),
		})
	case "db", "both":
	default:
		return fail(c, fiber.StatusBadRequest, "source must be db, worker or both")
	}

	recs, err := s.store.List(c.UserContext())
	if err != nil {
		return err
	}
	if source == "db" {
		return c.JSON(fiber.Map{"ok": true, "source": source, "items": recs})
	}
	return c.JSON(fiber.Map{
		"ok":           true,
		"source":       source,
		"running":      s.worker.IsRunning(),
		"db_items":     recs,
		"worker_items": s.workerOverlays(),
	})
}

// handleReplaceOverlays swaps the worker's whole set. Any invalid entry
// rejects the request and leaves the set untouched.
func (s *Server) handleReplaceOverlays(c *fiber.Ctx) error {
	if !s.worker.IsRunning() {
		return fail(c, fiber.StatusBadRequest, msgNotRunning)
	}
	// null decodes to a nil slice; only [] clears the set
	var raw []json.RawMessage
	if err := json.Unmarshal(c.Body(), &raw); err != nil || raw == nil {
		return fail(c, fiber.StatusBadRequest, "body must be a JSON array")
	}

	items := make([]overlay.Overlay, 0, len(raw))
	for i, r := range raw {
		f, err := decodeFields(r)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, fmt.Sprintf("item %d: %v", i, err))
		}
		o, err := parseOverlay(f)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, fmt.Sprintf("item %d: %v", i, err))
		}
		items = append(items, o)
	}
	if err := s.worker.ReplaceOverlays(items); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(fiber.Map{"ok": true, "count": len(items)})
}

func (s *Server) handleClearOverlays(c *fiber.Ctx) error {
	if !s.worker.IsRunning() {
		return fail(c, fiber.StatusBadRequest, msgNotRunning)
	}
	s.worker.ClearOverlays()
	return c.JSON(fiber.Map{"ok": true})
}
