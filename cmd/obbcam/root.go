package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var serverFlag string
	var jsonFlag bool

	ctx := newCommandContext(&configFlag, &serverFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:           "obbcam",
		Short:         "Camera capture with rotated bounding-box overlays",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "", "Server URL (default derived from the config address)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(newServeCommand(ctx))
	for _, cmd := range newCameraCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newOverlaysCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newDevicesCommand(ctx))

	return rootCmd
}
