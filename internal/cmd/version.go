package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tailorbatch %s\n", versionInfo.Version)
		if versionInfo.Commit != "" {
			fmt.Printf("  commit:     %s\n", versionInfo.Commit)
		}
		if versionInfo.BuildDate != "" {
			fmt.Printf("  build date: %s\n", versionInfo.BuildDate)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
