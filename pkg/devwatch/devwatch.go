// Package devwatch lists local video capture devices and reports hotplug
// events for them.
package devwatch

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrUnsupported is returned by Monitor.Start where hotplug events are not
// available.
var ErrUnsupported = errors.New("devwatch: hotplug monitoring is only available on linux")

// Device is a video4linux capture node.
type Device struct {
	Path  string `json:"path"`
	Index int    `json:"index"`
	Name  string `json:"name,omitempty"`
}

// Event is a device add or remove notification.
type Event struct {
	Action string `json:"action"`
	Device Device `json:"device"`
}

// Lister enumerates devices under a /dev and /sys root. The zero value
// uses the real filesystem.
type Lister struct {
	DevDir   string
	SysClass string
}

// List returns the capture devices on this host sorted by index.
func List() ([]Device, error) {
	return Lister{}.List()
}

// List returns the devices under l's roots sorted by index.
func (l Lister) List() ([]Device, error) {
	devDir := l.DevDir
	if devDir == "" {
		devDir = "/dev"
	}
	sysClass := l.SysClass
	if sysClass == "" {
		sysClass = "/sys/class/video4linux"
	}

	paths, err := filepath.Glob(filepath.Join(devDir, "video*"))
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(paths))
	for _, p := range paths {
		idx, ok := indexFromPath(p)
		if !ok {
			continue
		}
		d := Device{Path: p, Index: idx}
		if name, err := os.ReadFile(filepath.Join(sysClass, filepath.Base(p), "name")); err == nil {
			d.Name = strings.TrimSpace(string(name))
		}
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Index < devices[j].Index })
	return devices, nil
}

// indexFromPath extracts N from ".../videoN".
func indexFromPath(p string) (int, bool) {
	base := filepath.Base(p)
	if !strings.HasPrefix(base, "video") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(base, "video"))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// eventFromUEvent builds an Event from a kernel uevent environment.
func eventFromUEvent(action string, env map[string]string) (Event, bool) {
	devname := env["DEVNAME"]
	if devname == "" {
		devpath := env["DEVPATH"]
		if devpath == "" {
			return Event{}, false
		}
		devname = filepath.Base(devpath)
	}
	if !strings.HasPrefix(devname, "/") {
		devname = "/dev/" + devname
	}
	idx, ok := indexFromPath(devname)
	if !ok {
		return Event{}, false
	}
	return Event{Action: action, Device: Device{Path: devname, Index: idx}}, true
}
