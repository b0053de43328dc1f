package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/disktopo/internal/topology"
)

var blocksizeCmd = &cobra.Command{
	Use:   "blocksize <device>",
	Short: "Print the block size of a device",
	Long: `Print the block size of a device in bytes.

Linux reports the physical block size from blockdev, macOS the device
block size from diskutil, and Cygwin the logical block size from smartctl.`,
	Args: cobra.ExactArgs(1),
	Run:  runBlocksize,
}

func init() {
	blocksizeCmd.Flags().String("platform", "", "Platform tools to use: auto, linux, darwin, cygwin")
	blocksizeCmd.Flags().String("replay", "", "Replay captured tool output from this directory")
	blocksizeCmd.Flags().String("record", "", "Save tool output to this directory")
}

func runBlocksize(cmd *cobra.Command, args []string) {
	p, err := platform(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	run, _, err := newRunner(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	size, err := topology.BlockSize(context.Background(), run, p, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading block size of %s: %v\n", args[0], err)
		os.Exit(1)
	}
	fmt.Println(size)
}
