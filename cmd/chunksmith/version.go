package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkellner/chunksmith/internal/index"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chunksmith\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", index.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", index.DriverName)
		fmt.Printf("Vector Extension: %v\n", index.VectorExtensionAvailable)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
