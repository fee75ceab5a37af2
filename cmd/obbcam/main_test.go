package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-obbcam/internal/config"
	"github.com/teslashibe/go-obbcam/pkg/devwatch"
	"github.com/teslashibe/go-obbcam/pkg/web"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func fakeAPI(t *testing.T, routes map[string]string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"ok": false, "msg": "no route"}`))
			return
		}
		if strings.HasPrefix(body, "\xff\xd8") {
			w.Header().Set("Content-Type", "image/jpeg")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestBaseURLFromAddr(t *testing.T) {
	tests := map[string]string{
		":8080":         "http://localhost:8080",
		"0.0.0.0:9000":  "http://localhost:9000",
		"10.0.0.5:8080": "http://10.0.0.5:8080",
		"":              "http://localhost:8080",
	}
	for in, want := range tests {
		if got := baseURLFromAddr(in); got != want {
			t.Errorf("baseURLFromAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOverlayFromArgs(t *testing.T) {
	o, err := overlayFromArgs([]string{"4", "10", "20.5", "30", "40"}, 15, "#FF8000")
	if err != nil {
		t.Fatalf("overlayFromArgs: %v", err)
	}
	if o.ID != 4 || o.CY != 20.5 || o.Angle != 15 || o.Color.Hex() != "#FF8000" {
		t.Errorf("overlay = %+v", o)
	}

	bad := [][]string{
		{"x", "1", "1", "1", "1"},
		{"1", "1", "one", "1", "1"},
		{"1", "1", "1", "0", "1"},
	}
	for _, args := range bad {
		if _, err := overlayFromArgs(args, 0, "#00FF00"); err == nil {
			t.Errorf("overlayFromArgs(%v) should fail", args)
		}
	}
	if _, err := overlayFromArgs([]string{"1", "1", "1", "1", "1"}, 0, "blue"); err == nil {
		t.Error("bad color should fail")
	}
}

func TestNewNegotiatorFromConfig(t *testing.T) {
	cam := config.Default().Camera
	cam.Resolutions = []string{"1920x1080", "640x480"}
	cam.Formats = []string{"MJPG"}
	cam.WarmupFrames = 1

	n, err := newNegotiator(cam, nil)
	if err != nil {
		t.Fatalf("newNegotiator: %v", err)
	}
	if len(n.Candidates) != 2 || n.Candidates[0].Width != 1920 {
		t.Errorf("candidates = %v", n.Candidates)
	}
	if len(n.Formats) != 1 || n.Warmup != 1 {
		t.Errorf("negotiator = %+v", n)
	}

	cam.Resolutions = []string{"huge"}
	if _, err := newNegotiator(cam, nil); err == nil {
		t.Error("bad resolution should fail")
	}
}

func TestStatusCommand(t *testing.T) {
	url := fakeAPI(t, map[string]string{
		"GET /api/status": `{"running": true, "state": "running"}`,
		"GET /api/meta": `{"running": true, "state": "running", "session_id": "abc", "device_index": 1,
			"frame_w": 1280, "frame_h": 720, "multi_count": 2, "bbox_ids": [1, 2], "frame_seq": 12345}`,
	})

	out, err := runCLI(t, "--server", url, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"abc", "1280x720", "12,345"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, "--server", url, "--json", "status")
	if err != nil || !strings.Contains(out, `"frame_w": 1280`) {
		t.Errorf("json status = %q, %v", out, err)
	}
}

func TestStatusCommandStopped(t *testing.T) {
	url := fakeAPI(t, map[string]string{"GET /api/status": `{"running": false, "state": "stopped"}`})
	out, err := runCLI(t, "--server", url, "status")
	if err != nil || !strings.Contains(out, "Camera stopped") {
		t.Errorf("status = %q, %v", out, err)
	}
}

func TestOverlaysListCommand(t *testing.T) {
	url := fakeAPI(t, map[string]string{
		"GET /api/bboxes": `{"ok": true, "source": "db", "items": [
			{"id": 7, "cx": 10, "cy": 20, "w": 30, "h": 40, "angle_deg": 12.5, "color_hex": "#ABCDEF",
			 "created_at": "` + time.Now().Add(-time.Hour).UTC().Format(time.RFC3339Nano) + `"}]}`,
	})
	out, err := runCLI(t, "--server", url, "overlays", "list")
	if err != nil {
		t.Fatalf("overlays list: %v", err)
	}
	for _, want := range []string{"#ABCDEF", "12.5", "hour ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := runCLI(t, "--server", url, "overlays", "list", "--source", "cache"); err == nil {
		t.Error("unknown source should fail")
	}
}

func TestStopCommandSurfacesServerMessage(t *testing.T) {
	url := fakeAPI(t, map[string]string{})
	_, err := runCLI(t, "--server", url, "stop")
	if err == nil || !strings.Contains(err.Error(), "no route") {
		t.Errorf("stop err = %v", err)
	}
}

func TestSnapshotCommand(t *testing.T) {
	url := fakeAPI(t, map[string]string{"GET /snapshot.jpg": "\xff\xd8jpeg\xff\xd9"})
	path := filepath.Join(t.TempDir(), "shot.jpg")
	out, err := runCLI(t, "--server", url, "snapshot", "-o", path)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
		t.Fatalf("snapshot file = %q, %v", data, err)
	}
	if !strings.Contains(out, "8 B") {
		t.Errorf("output = %q", out)
	}
}

func TestPatchCommandRequiresAField(t *testing.T) {
	if _, err := runCLI(t, "--server", "http://127.0.0.1:1", "overlays", "patch", "3"); err == nil {
		t.Error("patch with no fields should fail before calling the server")
	}
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	got := formatEvent(web.StatusEvent{Type: "state", State: "running", Running: true, Time: ts})
	if got != "03:04:05 state running (running: yes)" {
		t.Errorf("state event = %q", got)
	}
	got = formatEvent(web.StatusEvent{
		Type:   "device",
		Device: &devwatch.Event{Action: "remove", Device: devwatch.Device{Path: "/dev/video1"}},
		Time:   ts,
	})
	if got != "03:04:05 device remove /dev/video1" {
		t.Errorf("device event = %q", got)
	}
}

func TestWatchFramesReportsThroughput(t *testing.T) {
	var lines []string
	frame := make([]byte, 1000)
	err := watchFrames(context.Background(), func(fn func([]byte) error) error {
		for i := 0; i < 3; i++ {
			if err := fn(frame); err != nil {
				return err
			}
			time.Sleep(600 * time.Millisecond)
		}
		return nil
	}, func(s string) { lines = append(lines, s) })
	if err != nil {
		t.Fatalf("watchFrames: %v", err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "fps") {
		t.Errorf("lines = %q", lines)
	}
}
