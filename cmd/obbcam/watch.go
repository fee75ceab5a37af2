package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-obbcam/pkg/web"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var frames bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow status events, or frame throughput with --frames",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := ctx.client()
			out := cmd.OutOrStdout()
			var err error
			if frames {
				err = watchFrames(cmd.Context(), func(fn func([]byte) error) error {
					return c.Frames(cmd.Context(), fn)
				}, func(line string) { fmt.Fprintln(out, line) })
			} else {
				err = c.Events(cmd.Context(), func(ev web.StatusEvent) error {
					if ctx.jsonOutput() {
						return writeJSON(cmd, ev)
					}
					fmt.Fprintln(out, formatEvent(ev))
					return nil
				})
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&frames, "frames", false, "Report frames per second from /ws/camera")
	return cmd
}

func formatEvent(ev web.StatusEvent) string {
	ts := ev.Time.Local().Format("15:04:05")
	if ev.Type == "device" && ev.Device != nil {
		return fmt.Sprintf("%s device %s %s", ts, ev.Device.Action, ev.Device.Device.Path)
	}
	return fmt.Sprintf("%s state %s (running: %s)", ts, ev.State, yesNo(ev.Running))
}

// watchFrames prints one throughput line per second while subscribe runs.
func watchFrames(ctx context.Context, subscribe func(func([]byte) error) error, emit func(string)) error {
	var count, bytes int
	window := time.Now()
	return subscribe(func(jpeg []byte) error {
		count++
		bytes += len(jpeg)
		if elapsed := time.Since(window); elapsed >= time.Second {
			fps := float64(count) / elapsed.Seconds()
			emit(fmt.Sprintf("%.1f fps, %s/s, last frame %s",
				fps, humanize.Bytes(uint64(float64(bytes)/elapsed.Seconds())), humanize.Bytes(uint64(len(jpeg)))))
			count, bytes = 0, 0
			window = time.Now()
		}
		return ctx.Err()
	})
}
