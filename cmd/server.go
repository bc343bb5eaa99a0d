package cmd

import (
	"melodizr/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the melodizr server",
	Long:  `Start the melodizr HTTP server: recording flow, conversion, project playback and the audio libraries.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
