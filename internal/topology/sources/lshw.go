package sources

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sigreer/disktopo/internal/collector"
	"github.com/sigreer/disktopo/internal/device"
)

// maxTreeDepth bounds the descendant walk below a device node
const maxTreeDepth = 32

// LshwSource enumerates devices and partitions from the lshw XML tree
type LshwSource struct {
	Linux *Linux
}

// lshwNode is one <node> of lshw -xml output
type lshwNode struct {
	XMLName      xml.Name
	ID           string           `xml:"id,attr"`
	Class        string           `xml:"class,attr"`
	Description  *string          `xml:"description"`
	Product      *string          `xml:"product"`
	Vendor       *string          `xml:"vendor"`
	PhysID       string           `xml:"physid"`
	LogicalNames []string         `xml:"logicalname"`
	Size         *string          `xml:"size"`
	Capacity     *string          `xml:"capacity"`
	Settings     []lshwSetting    `xml:"configuration>setting"`
	Capabilities []lshwCapability `xml:"capabilities>capability"`
	Children     []lshwNode       `xml:"node"`
}

type lshwSetting struct {
	ID    string `xml:"id,attr"`
	Value string `xml:"value,attr"`
}

type lshwCapability struct {
	ID   string `xml:"id,attr"`
	Text string `xml:",chardata"`
}

// Name returns the source name
func (s *LshwSource) Name() string {
	return "lshw"
}

// Collect runs lshw and parses its tree into topo
func (s *LshwSource) Collect(ctx context.Context, run collector.Runner, topo device.Topology, rep *device.Report) error {
	out, err := run.Run(ctx, "lshw", "-sanitize", "-class", "disk", "-class", "volume", "-xml")
	if err != nil {
		return err
	}
	return ParseLshw(ctx, out, topo, s.Linux.Aux(ctx, run, rep), rep)
}

// ParseLshw folds the devices and partitions of an lshw XML document into
// topo. Names already in topo are left untouched, so parsing the same
// document twice is a no-op.
func ParseLshw(ctx context.Context, data []byte, topo device.Topology, aux *LinuxAux, rep *device.Report) error {
	roots, err := decodeLshw(data)
	if err != nil {
		return fmt.Errorf("failed to parse lshw output: %w", err)
	}
	if aux == nil {
		aux = &LinuxAux{Attributes: Attributes{}}
	}

	for i := range roots {
		node := &roots[i]
		host, ok := lshwDevice(ctx, node, topo, aux, rep)
		if !ok {
			continue
		}
		if host == device.Unknown {
			rep.Add("lshw", "", errors.New("device without a logical name"))
			continue
		}

		for _, sub := range lshwDescendants(node) {
			lshwPartition(ctx, sub, host, topo, aux, rep)
		}
	}
	return nil
}

// decodeLshw accepts a <list> of nodes, a single <node>, or several
// top-level nodes back to back.
func decodeLshw(data []byte) ([]lshwNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var roots []lshwNode
	for {
		var n lshwNode
		err := dec.Decode(&n)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch n.XMLName.Local {
		case "list":
			roots = append(roots, n.Children...)
		case "node":
			roots = append(roots, n)
		}
	}
	if roots == nil && len(bytes.TrimSpace(data)) > 0 && !bytes.Contains(data, []byte("<list")) {
		return nil, errors.New("no device nodes in document")
	}
	return roots, nil
}

// lshwDescendants returns every node below n in document order.
func lshwDescendants(n *lshwNode) []*lshwNode {
	type entry struct {
		node  *lshwNode
		depth int
	}

	var out []*lshwNode
	stack := make([]entry, 0, len(n.Children))
	for i := len(n.Children) - 1; i >= 0; i-- {
		stack = append(stack, entry{&n.Children[i], 1})
	}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, e.node)
		if e.depth >= maxTreeDepth {
			continue
		}
		for i := len(e.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, entry{&e.node.Children[i], e.depth + 1})
		}
	}
	return out
}

// lshwDevice adds the device described by n. It returns the device name and
// false when the node is skipped entirely, which includes nodes naming an
// object already known as a partition.
func lshwDevice(ctx context.Context, n *lshwNode, topo device.Topology, aux *LinuxAux, rep *device.Report) (string, bool) {
	name := device.Unknown
	if len(n.LogicalNames) > 0 {
		name = strings.TrimSpace(n.LogicalNames[0])
	}
	if device.IsSkipped(name) {
		return "", false
	}
	if existing, exists := topo[name]; exists {
		// a top-level volume node repeating a known partition
		if existing.Kind != device.KindDevice {
			return "", false
		}
		return name, true
	}

	obj := device.New(name, device.KindDevice)
	obj.Vendor = text(n.Vendor)
	obj.Product = text(n.Product)
	obj.Description = text(n.Description)
	obj.Flags = n.flags()
	obj.Partitioning = partitioningFromFlags(obj.Flags)

	if device.IsOptical(name) {
		obj.SetCapacityNA()
	} else {
		obj.SetCapacity(n.rawCapacity())
	}

	obj.FileSystem = orNA(aux.Attributes.FileSystem(name))
	obj.UUID = orNA(aux.Attributes.UUID(name))
	obj.ID = PersistentID(aux.ByID, name)

	topo[name] = obj
	if name != device.Unknown {
		aux.Boot.Apply(ctx, obj, "lshw", rep)
	}
	return name, true
}

// lshwPartition adds the partition described by n under host.
func lshwPartition(ctx context.Context, n *lshwNode, host string, topo device.Topology, aux *LinuxAux, rep *device.Report) {
	var name string
	switch {
	case len(n.LogicalNames) > 0:
		name = strings.TrimSpace(n.LogicalNames[0])
	case n.PhysID != "":
		name = host + n.PhysID
		if strings.Contains(host, "nvme") {
			name = host + "p" + n.PhysID
		}
	default:
		rep.Add("lshw", host, errors.New("partition without a logical name or physical id"))
		return
	}

	if _, exists := topo[name]; exists || device.IsOptical(name) || device.IsSkipped(name) {
		return
	}

	hostObj := topo[host]

	obj := device.New(name, device.KindPartition)
	obj.HostDevice = host
	obj.Vendor = text(n.Vendor)
	obj.Product = "Host Device: " + hostObj.Product
	obj.SetCapacity(n.rawCapacity())
	obj.Description = text(n.Description)
	obj.Flags = n.flags()
	obj.Partitioning = device.NotApplicable

	switch {
	case hasFlag(obj.Flags, "extended"):
		obj.FileSystem = device.NotApplicable
	default:
		obj.FileSystem = n.fileSystem()
		if obj.FileSystem == device.Unknown {
			obj.FileSystem = aux.Attributes.FileSystem(name)
		}
	}

	obj.UUID = aux.Attributes.UUID(name)
	obj.ID = PersistentID(aux.ByID, name)

	topo[name] = obj
	hostObj.AddChild(name)
	aux.Boot.Apply(ctx, obj, "lshw", rep)
}

func (n *lshwNode) rawCapacity() string {
	if n.Size != nil {
		return *n.Size
	}
	if n.Capacity != nil {
		return *n.Capacity
	}
	return device.Unknown
}

func (n *lshwNode) flags() []string {
	flags := make([]string, 0, len(n.Capabilities))
	for _, c := range n.Capabilities {
		if c.ID != "" {
			flags = append(flags, c.ID)
		}
	}
	return flags
}

func (n *lshwNode) fileSystem() string {
	for _, s := range n.Settings {
		if s.ID == "filesystem" && s.Value != "" {
			return normalizeFileSystem(s.Value)
		}
	}
	if n.Description != nil && strings.Contains(*n.Description, "FAT") {
		return "vfat"
	}
	return device.Unknown
}

// partitioningFromFlags reads the table type from the last
// "partitioned:<type>" flag.
func partitioningFromFlags(flags []string) string {
	for i := len(flags) - 1; i >= 0; i-- {
		if t, ok := strings.CutPrefix(flags[i], "partitioned:"); ok {
			return normalizeTableType(t)
		}
	}
	return device.Unknown
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

func text(s *string) string {
	if s == nil {
		return device.Unknown
	}
	if t := strings.TrimSpace(*s); t != "" {
		return t
	}
	return device.Unknown
}

func orNA(v string) string {
	if v == device.Unknown {
		return device.NotApplicable
	}
	return v
}
