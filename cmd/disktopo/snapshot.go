package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sigreer/disktopo/internal/db"
	"github.com/sigreer/disktopo/internal/topology"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage the topology snapshot history",
	Long: `Record assembled topologies in a local SQLite database and inspect
them later, for example to see when a partition was resized or a disk
disappeared.`,
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Assemble the topology and record it",
	Run:   runSnapshotSave,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded snapshots",
	Run:   runSnapshotList,
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a recorded snapshot",
	Args:  cobra.ExactArgs(1),
	Run:   runSnapshotShow,
}

var snapshotHistoryCmd = &cobra.Command{
	Use:   "history <name|uuid>",
	Short: "Show every recorded state of one object",
	Args:  cobra.ExactArgs(1),
	Run:   runSnapshotHistory,
}

var snapshotPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest snapshots",
	Run:   runSnapshotPrune,
}

func init() {
	snapshotCmd.AddCommand(snapshotSaveCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotHistoryCmd)
	snapshotCmd.AddCommand(snapshotPruneCmd)

	addCollectFlags(snapshotSaveCmd)

	snapshotListCmd.Flags().Int("limit", 20, "Maximum number of snapshots to show")
	snapshotListCmd.Flags().Bool("json", false, "Output as JSON")

	snapshotShowCmd.Flags().StringP("output", "o", "table", "Output format: table, json, yaml")

	snapshotPruneCmd.Flags().Int("keep", 10, "Number of snapshots to keep")
}

func mustOpenDB() *db.DB {
	database, err := openDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return database
}

func runSnapshotSave(cmd *cobra.Command, args []string) {
	result, err := collect(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error assembling topology: %v\n", err)
		os.Exit(1)
	}

	database := mustOpenDB()
	defer database.Close()

	snap, err := database.RecordSnapshot(result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error saving snapshot: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Saved snapshot %s (%d objects, %d errors)\n", snap.ID, snap.ObjectCount, snap.ErrorCount)
}

func runSnapshotList(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOut, _ := cmd.Flags().GetBool("json")

	database := mustOpenDB()
	defer database.Close()

	snaps, err := database.ListSnapshots(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying snapshots: %v\n", err)
		os.Exit(1)
	}

	if jsonOut {
		if err := topology.PrintJSON(os.Stdout, snaps); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(snaps) == 0 {
		fmt.Println("No snapshots recorded. Run 'disktopo snapshot save' to record one.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTAKEN\tHOST\tPLATFORM\tOBJECTS\tERRORS")
	for _, s := range snaps {
		host := s.Hostname
		if host == "" {
			host = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID[:8], humanize.Time(s.TakenAt), host, s.Platform,
			humanize.Comma(int64(s.ObjectCount)), humanize.Comma(int64(s.ErrorCount)))
	}
	w.Flush()
}

func runSnapshotShow(cmd *cobra.Command, args []string) {
	outputFmt, _ := cmd.Flags().GetString("output")
	format, err := topology.ParseFormat(outputFmt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	database := mustOpenDB()
	defer database.Close()

	snap, topo, err := database.GetSnapshot(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	result := &topology.Result{
		Platform: topology.Platform(snap.Platform),
		Objects:  topo,
		Errors:   snap.Errors,
	}

	switch format {
	case topology.FormatJSON:
		err = topology.PrintJSON(os.Stdout, result)
	case topology.FormatYAML:
		err = topology.PrintYAML(os.Stdout, result)
	default:
		fmt.Printf("Snapshot %s taken %s (%s)\n\n", snap.ID, humanize.Time(snap.TakenAt),
			snap.TakenAt.Local().Format("2006-01-02 15:04:05"))
		topology.PrintTopology(os.Stdout, topo)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
		os.Exit(1)
	}
}

func runSnapshotHistory(cmd *cobra.Command, args []string) {
	database := mustOpenDB()
	defer database.Close()

	history, err := database.ObjectHistory(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying history: %v\n", err)
		os.Exit(1)
	}
	if len(history) == 0 {
		fmt.Printf("No recorded states for %s\n", args[0])
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SNAPSHOT\tTAKEN\tNAME\tCAPACITY\tFILESYSTEM\tUUID")
	for _, rec := range history {
		o := rec.Object
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.SnapshotID[:8], humanize.Time(rec.TakenAt), o.Name, o.HumanCapacity, o.FileSystem, o.UUID)
	}
	w.Flush()
}

func runSnapshotPrune(cmd *cobra.Command, args []string) {
	keep, _ := cmd.Flags().GetInt("keep")

	database := mustOpenDB()
	defer database.Close()

	removed, err := database.PruneSnapshots(keep)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error pruning snapshots: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed %s snapshots\n", humanize.Comma(removed))
}
