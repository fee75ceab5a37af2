package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-obbcam/pkg/devwatch"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List video capture devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				devices []devwatch.Device
				err     error
			)
			if local {
				devices, err = devwatch.List()
			} else {
				devices, err = ctx.client().Devices(cmd.Context())
			}
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, devices)
			}
			if len(devices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No video devices found")
				return nil
			}
			rows := make([][]string, 0, len(devices))
			for _, d := range devices {
				rows = append(rows, []string{strconv.Itoa(d.Index), d.Path, d.Name})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Index", "Path", "Name"}, rows,
				[]columnAlignment{alignRight}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "List devices on this host instead of asking the server")
	return cmd
}
