package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigreer/disktopo/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("disktopo %s\n", version.Version)
	},
}
