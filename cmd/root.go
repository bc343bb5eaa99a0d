package cmd

import (
	"fmt"
	"log"
	"os"

	"melodizr/logger"
	"melodizr/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "melodizr",
	Short: "Melodizr turns hummed and beatboxed ideas into instrument tracks.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting melodizr server...")
		server.Start()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.InitLogger(logger.Config{
			Level:      logger.InfoLevel,
			OutputPath: "logs/melodizr.log",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
