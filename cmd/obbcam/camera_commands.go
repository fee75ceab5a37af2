package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCameraCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStatusCommand(ctx),
		newStartCommand(ctx),
		newStopCommand(ctx),
		newSnapshotCommand(ctx),
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show camera state and session details",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := ctx.client()
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			if !st.Running {
				if ctx.jsonOutput() {
					return writeJSON(cmd, st)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Camera %s (%s)\n", st.State, c.BaseURL)
				return nil
			}

			meta, err := c.Meta(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, meta)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues([][2]string{
				{"State", meta.State.String()},
				{"Running", yesNo(meta.Running)},
				{"Session", meta.SessionID},
				{"Device", strconv.Itoa(meta.DeviceIndex)},
				{"Frame size", fmt.Sprintf("%dx%d", meta.FrameW, meta.FrameH)},
				{"Overlays", strconv.Itoa(meta.MultiCount)},
				{"Frames published", humanize.Comma(int64(meta.FrameSeq))},
			}))
			return nil
		},
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Open a camera on the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("index") {
				if cfg, err := ctx.ensureConfig(); err == nil {
					index = cfg.Camera.Index
				}
			}
			res, err := ctx.client().Start(cmd.Context(), index)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Camera %d started at %dx%d (session %s)\n",
				res.DeviceIndex, res.Width, res.Height, res.SessionID)
			if res.Replayed > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d stored overlays\n", res.Replayed)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&index, "index", "i", 0, "Camera index")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running camera session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := ctx.client().Stop(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Camera stopped")
			return nil
		},
	}
}

func newSnapshotCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save the latest frame as a JPEG",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := ctx.client().Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", output, humanize.Bytes(uint64(len(data))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "snapshot.jpg", "Output file, or - for stdout")
	return cmd
}
