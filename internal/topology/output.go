package topology

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/sigreer/disktopo/internal/device"
)

// Format is an output format name
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates an output format flag
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("invalid format: %s (valid formats: table, json, yaml)", s)
	}
}

// PrintJSON outputs v as indented JSON
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintYAML outputs v as YAML
func PrintYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return enc.Close()
}

// PrintTopology outputs the topology as a table, each device followed by
// its partitions and logical volumes.
func PrintTopology(w io.Writer, topo device.Topology) {
	if len(topo) == 0 {
		fmt.Fprintln(w, "No storage objects found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tCAPACITY\tFILESYSTEM\tPARTITIONING\tVENDOR\tPRODUCT")

	printed := make(map[string]bool)
	row := func(obj *device.StorageObject, indent string) {
		printed[obj.Name] = true
		kind := string(obj.Kind)
		if obj.IsLogicalVolume() {
			kind = "LogicalVolume"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			indent, obj.Name, kind, obj.HumanCapacity, obj.FileSystem,
			obj.Partitioning, obj.Vendor, obj.Product)
	}

	for _, dev := range topo.Devices() {
		row(dev, "")
		for _, child := range dev.ChildNames {
			if c, ok := topo[child]; ok {
				row(c, "  ")
			}
		}
	}
	// objects without a known host
	for _, name := range topo.Names() {
		if !printed[name] {
			row(topo[name], "")
		}
	}

	_ = tw.Flush()
}

// PrintObject outputs a lookup result as a field listing
func PrintObject(w io.Writer, result *LookupResult) {
	fmt.Fprintf(w, "Query:      %s\n", result.Query)
	fmt.Fprintf(w, "Matched As: %s\n", result.MatchedAs)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-20s %s\n", "FIELD", "VALUE")
	fmt.Fprintln(w, strings.Repeat("-", 60))

	o := result.Object
	printField(w, "Name", o.Name)
	printField(w, "Kind", string(o.Kind))
	printField(w, "Host Device", o.HostDevice)
	printList(w, "Children", o.ChildNames)
	printField(w, "Vendor", o.Vendor)
	printField(w, "Product", o.Product)
	printField(w, "Description", o.Description)
	printField(w, "Capacity", o.HumanCapacity)
	printField(w, "Raw Capacity", o.RawCapacity)
	printField(w, "File System", o.FileSystem)
	printField(w, "Partitioning", o.Partitioning)
	printField(w, "UUID", o.UUID)
	printField(w, "Persistent ID", o.ID)
	printList(w, "Flags", o.Flags)

	// Logical volume info
	printField(w, "Volume Group", o.VolumeGroup)
	printField(w, "Logical Volume", o.LogicalVolume)
	printField(w, "Host Partition", o.HostPartition)
	printList(w, "Aliases", o.Aliases)

	printList(w, "Boot Strings", o.BootRecordStrings)
	printList(w, "Unsupported", o.Unsupported)
}

// printField prints a field if value is non-empty
func printField(w io.Writer, label, value string) {
	if value != "" {
		fmt.Fprintf(w, "%-20s %s\n", label, value)
	}
}

// printList prints one value per line under a single label
func printList(w io.Writer, label string, values []string) {
	for i, v := range values {
		if i == 0 {
			printField(w, label, v)
		} else {
			printField(w, "", v)
		}
	}
}

// PrintQuiet outputs only the canonical name
func PrintQuiet(w io.Writer, result *LookupResult) {
	fmt.Fprintln(w, result.Object.Name)
}
