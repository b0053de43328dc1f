package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/disktopo/internal/collector"
	"github.com/sigreer/disktopo/internal/db"
	"github.com/sigreer/disktopo/internal/topology"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Assemble and print the storage topology",
	Long: `Run the platform's tools and print every device, partition and
logical volume found.

Tool output can be saved with --record and replayed later with --replay,
which makes it possible to inspect a host's topology elsewhere.

Examples:
  disktopo scan
  disktopo scan -o json
  disktopo scan --record /tmp/host1
  disktopo scan --replay /tmp/host1 --platform linux`,
	Run: runScan,
}

func init() {
	addCollectFlags(scanCmd)
	scanCmd.Flags().StringP("output", "o", "table", "Output format: table, json, yaml")
	scanCmd.Flags().Bool("save", false, "Record the result in the snapshot database")
}

// addCollectFlags registers the flags shared by commands that aggregate
func addCollectFlags(cmd *cobra.Command) {
	cmd.Flags().String("platform", "", "Platform sources to use: auto, linux, darwin, cygwin")
	cmd.Flags().String("replay", "", "Replay captured tool output from this directory")
	cmd.Flags().String("record", "", "Save tool output to this directory")
	cmd.Flags().Bool("no-boot-records", false, "Skip reading the first sector of each object")
}

// newRunner builds the runner for a run and reports whether it is offline
func newRunner(cmd *cobra.Command) (collector.Runner, bool, error) {
	replay, _ := cmd.Flags().GetString("replay")
	record, _ := cmd.Flags().GetString("record")
	if replay == "" {
		replay = cfg.CaptureDir
	}
	if record == "" {
		record = cfg.RecordDir
	}

	if replay != "" {
		if record != "" {
			return nil, false, errors.New("--replay and --record cannot be combined")
		}
		return &collector.ReplayRunner{Dir: replay}, true, nil
	}

	var run collector.Runner = &collector.ExecRunner{
		Timeout: cfg.CommandTimeout,
		Paths:   cfg.CommandPaths(),
	}
	if record != "" {
		rec, err := collector.NewRecordingRunner(run, record)
		if err != nil {
			return nil, false, err
		}
		run = rec
	}
	return collector.NewMemoRunner(run), false, nil
}

// platform resolves the --platform flag, falling back to config
func platform(cmd *cobra.Command) (topology.Platform, error) {
	name, _ := cmd.Flags().GetString("platform")
	if name == "" {
		name = cfg.Platform
	}
	return topology.ParsePlatform(name)
}

// collect runs one aggregation and logs its non-fatal errors
func collect(cmd *cobra.Command) (*topology.Result, error) {
	p, err := platform(cmd)
	if err != nil {
		return nil, err
	}
	run, offline, err := newRunner(cmd)
	if err != nil {
		return nil, err
	}

	noBoot, _ := cmd.Flags().GetBool("no-boot-records")
	opts := topology.Options{
		Platform:    p,
		BootRecords: cfg.BootRecordsEnabled() && !noBoot && !offline,
		Offline:     offline,
	}

	topo, errs, err := topology.Aggregate(context.Background(), run, opts)
	if memo, ok := run.(*collector.MemoRunner); ok {
		slog.Debug("captures", "commands", len(memo.Cache.Keys()), "cache_hits", memo.Cache.Hits(), "took", memo.Cache.Elapsed())
	}
	for _, e := range errs {
		slog.Warn("collection error", "source", e.Source, "object", e.Object, "err", e.Err)
	}
	if err != nil {
		return nil, err
	}
	return topology.NewResult(p, topo, errs), nil
}

func runScan(cmd *cobra.Command, args []string) {
	outputFmt, _ := cmd.Flags().GetString("output")
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

	if save, _ := cmd.Flags().GetBool("save"); save {
		database, err := openDB()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		snap, err := database.RecordSnapshot(result)
		database.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error saving snapshot: %v\n", err)
			os.Exit(1)
		}
		slog.Info("snapshot saved", "id", snap.ID, "objects", snap.ObjectCount)
	}

	switch format {
	case topology.FormatJSON:
		err = topology.PrintJSON(os.Stdout, result)
	case topology.FormatYAML:
		err = topology.PrintYAML(os.Stdout, result)
	default:
		topology.PrintTopology(os.Stdout, result.Objects)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
		os.Exit(1)
	}
}

func openDB() (*db.DB, error) {
	return db.New(cfg.Database)
}
