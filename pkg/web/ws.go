package web

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-obbcam/pkg/hub"
	"github.com/teslashibe/go-obbcam/pkg/relay"
)

// handleCameraWS streams every published JPEG as a binary message.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	if f, ok := s.worker.CurrentFrame(); ok {
		c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.WriteMessage(websocket.BinaryMessage, f.Data); err != nil {
			c.Close()
			return
		}
	}
	s.serveHub(s.cameraHub, c)
}

// handleStatusWS sends the current state, then every state change and
// device event.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	st := s.worker.State()
	hello := StatusEvent{
		Type:    "state",
		State:   st.String(),
		Running: s.worker.IsRunning(),
		Time:    time.Now().UTC(),
	}
	c.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.WriteJSON(hello); err != nil {
		c.Close()
		return
	}
	s.serveHub(s.statusHub, c)
}

func (s *Server) serveHub(h *hub.Hub, c *websocket.Conn) {
	client := hub.NewClient(h, c)
	if client == nil {
		c.Close()
		return
	}
	client.Run()
}

func (s *Server) handleOffer(c *fiber.Ctx) error {
	if s.opts.Relay == nil {
		return fail(c, fiber.StatusNotFound, "webrtc relay is disabled")
	}
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(c.Body(), &offer); err != nil {
		return fail(c, fiber.StatusBadRequest, "body must be an SDP offer {type, sdp}")
	}

	answer, err := s.opts.Relay.Answer(c.UserContext(), offer)
	switch {
	case errors.Is(err, relay.ErrInvalidOffer):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, relay.ErrClosed):
		return fail(c, fiber.StatusServiceUnavailable, err.Error())
	case err != nil:
		return err
	}
	return c.JSON(answer)
}

func (s *Server) handleDevices(c *fiber.Ctx) error {
	devices, err := s.opts.Devices()
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "devices": devices})
}
