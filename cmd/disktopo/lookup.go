package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/disktopo/internal/topology"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <query>",
	Short: "Look up a storage object by any identifier",
	Long: `Assemble the topology and find the object matching query.

Supports: device names, kernel names, LVM aliases, filesystem UUIDs,
persistent ids, /dev/disk/by-id paths and other symlinks.

Examples:
  disktopo lookup /dev/sda1
  disktopo lookup sda1                                  # Kernel name
  disktopo lookup /dev/mapper/fedora-root               # LVM alias
  disktopo lookup 5f2a3c64-2d8b-4f0c-9d55-2a4e0f1b7c11  # Filesystem UUID
  disktopo lookup ata-FakeDisk_FD0001                   # Persistent id`,
	Args: cobra.ExactArgs(1),
	Run:  runLookup,
}

func init() {
	addCollectFlags(lookupCmd)
	lookupCmd.Flags().StringP("output", "o", "table", "Output format: table, json, yaml")
	lookupCmd.Flags().BoolP("quiet", "q", false, "Only output the object name")
}

func runLookup(cmd *cobra.Command, args []string) {
	query := args[0]
	outputFmt, _ := cmd.Flags().GetString("output")
	quiet, _ := cmd.Flags().GetBool("quiet")

	format, err := topology.ParseFormat(outputFmt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	result, err := collect(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error assembling topology: %v\n", err)
		os.Exit(1)
	}

	obj, matchedAs, err := topology.NewIndex(result.Objects).Lookup(query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Not found: %s\n", query)
		os.Exit(1)
	}

	lookup := &topology.LookupResult{
		Query:     query,
		MatchedAs: matchedAs,
		Object:    obj,
	}

	if quiet {
		topology.PrintQuiet(os.Stdout, lookup)
		return
	}

	switch format {
	case topology.FormatJSON:
		err = topology.PrintJSON(os.Stdout, lookup)
	case topology.FormatYAML:
		err = topology.PrintYAML(os.Stdout, lookup)
	default:
		topology.PrintObject(os.Stdout, lookup)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
		os.Exit(1)
	}
}
