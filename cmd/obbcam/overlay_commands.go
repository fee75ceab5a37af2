package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-obbcam/pkg/overlay"
)

func newOverlaysCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "overlays",
		Aliases: []string{"bbox", "bboxes"},
		Short:   "Manage rotated bounding-box overlays",
	}
	cmd.AddCommand(
		newOverlaysListCommand(ctx),
		newOverlaysSetCommand(ctx),
		newOverlaysPatchCommand(ctx),
		newOverlaysRemoveCommand(ctx),
		newOverlaysClearCommand(ctx),
	)
	return cmd
}

func newOverlaysListCommand(ctx *commandContext) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored overlays, or what the worker draws with --source worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := ctx.client()
			switch source {
			case "db":
				recs, err := c.ListOverlays(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, recs)
				}
				rows := make([][]string, 0, len(recs))
				for _, r := range recs {
					rows = append(rows, []string{
						strconv.FormatInt(r.ID, 10), num(r.CX), num(r.CY), num(r.W), num(r.H),
						num(r.AngleDeg), r.ColorHex, humanize.Time(r.CreatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "CX", "CY", "W", "H", "Angle", "Color", "Created"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
				))
			case "worker":
				items, running, err := c.WorkerOverlays(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, items)
				}
				if !running {
					fmt.Fprintln(cmd.OutOrStdout(), "Camera is not running")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, o := range items {
					rows = append(rows, []string{
						strconv.FormatInt(o.ID, 10), num(o.CX), num(o.CY), num(o.W), num(o.H),
						num(o.Angle), o.Color.Hex(),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "CX", "CY", "W", "H", "Angle", "Color"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
				))
			default:
				return fmt.Errorf("--source must be db or worker, got %q", source)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "db", "Where to list from: db or worker")
	return cmd
}

func newOverlaysSetCommand(ctx *commandContext) *cobra.Command {
	var angle float64
	var color string
	cmd := &cobra.Command{
		Use:   "set ID CX CY W H",
		Short: "Draw and store an overlay",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := overlayFromArgs(args, angle, color)
			if err != nil {
				return err
			}
			saved, err := ctx.client().UpsertOverlay(cmd.Context(), o)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, saved)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Overlay %d saved (%s, %s deg)\n", o.ID, saved.ColorHex, num(saved.AngleDeg))
			return nil
		},
	}
	cmd.Flags().Float64VarP(&angle, "angle", "a", 0, "Rotation in degrees")
	cmd.Flags().StringVar(&color, "color", overlay.DefaultColor.Hex(), "Color as #RRGGBB")
	return cmd
}

func newOverlaysPatchCommand(ctx *commandContext) *cobra.Command {
	var cx, cy, w, h, angle float64
	var color string
	cmd := &cobra.Command{
		Use:   "patch ID",
		Short: "Change some fields of a stored overlay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			fields := map[string]any{}
			for name, v := range map[string]float64{"cx": cx, "cy": cy, "w": w, "h": h} {
				if cmd.Flags().Changed(name) {
					fields[name] = v
				}
			}
			if cmd.Flags().Changed("angle") {
				fields["angle_deg"] = angle
			}
			if cmd.Flags().Changed("color") {
				fields["color_hex"] = color
			}
			if len(fields) == 0 {
				return fmt.Errorf("nothing to change; pass at least one of --cx --cy --w --h --angle --color")
			}

			saved, workerUpdated, err := ctx.client().PatchOverlay(cmd.Context(), id, fields)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, saved)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Overlay %d updated (live: %s)\n", id, yesNo(workerUpdated))
			return nil
		},
	}
	cmd.Flags().Float64Var(&cx, "cx", 0, "Center x")
	cmd.Flags().Float64Var(&cy, "cy", 0, "Center y")
	cmd.Flags().Float64Var(&w, "w", 0, "Width")
	cmd.Flags().Float64Var(&h, "h", 0, "Height")
	cmd.Flags().Float64VarP(&angle, "angle", "a", 0, "Rotation in degrees")
	cmd.Flags().StringVar(&color, "color", "", "Color as #RRGGBB")
	return cmd
}

func newOverlaysRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove an overlay from the worker and the store",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			removed, err := ctx.client().DeleteOverlay(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Overlay %d removed (worker: %s, store: %s)\n",
				id, yesNo(removed.Worker), yesNo(removed.DB))
			return nil
		},
	}
}

func newOverlaysClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every overlay from the running worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := ctx.client().ClearOverlays(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Overlays cleared")
			return nil
		},
	}
}

func overlayFromArgs(args []string, angle float64, color string) (overlay.Overlay, error) {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return overlay.Overlay{}, fmt.Errorf("invalid id %q", args[0])
	}
	vals := make([]float64, 4)
	for i, name := range []string{"cx", "cy", "w", "h"} {
		if vals[i], err = strconv.ParseFloat(args[i+1], 64); err != nil {
			return overlay.Overlay{}, fmt.Errorf("invalid %s %q", name, args[i+1])
		}
	}
	c, err := overlay.ParseHex(color)
	if err != nil {
		return overlay.Overlay{}, err
	}
	o := overlay.Overlay{ID: id, CX: vals[0], CY: vals[1], W: vals[2], H: vals[3], Angle: angle, Color: c}
	return o, o.Validate()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
