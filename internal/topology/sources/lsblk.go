package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sigreer/disktopo/internal/collector"
	"github.com/sigreer/disktopo/internal/device"
)

// lsblkColumns are the columns requested from lsblk
const lsblkColumns = "NAME,PATH,TYPE,SIZE,MODEL,VENDOR,TRAN,RM,ROTA,FSTYPE,UUID,PTTYPE,PKNAME"

// LsblkSource fills in devices and fields the lshw tree misses, such as
// NVMe namespaces on older lshw releases
type LsblkSource struct {
	Linux *Linux
}

// lsblkOutput represents the JSON output from lsblk
type lsblkOutput struct {
	Blockdevices []lsblkDevice `json:"blockdevices"`
}

// lsblkDevice represents a single device in lsblk output
type lsblkDevice struct {
	Name     string        `json:"name"`
	Path     lsblkValue    `json:"path"`
	Type     string        `json:"type"`
	Size     lsblkValue    `json:"size"`
	Model    lsblkValue    `json:"model"`
	Vendor   lsblkValue    `json:"vendor"`
	Tran     lsblkValue    `json:"tran"`
	RM       lsblkValue    `json:"rm"`
	Rota     lsblkValue    `json:"rota"`
	FSType   lsblkValue    `json:"fstype"`
	UUID     lsblkValue    `json:"uuid"`
	PTType   lsblkValue    `json:"pttype"`
	PKName   lsblkValue    `json:"pkname"`
	Children []lsblkDevice `json:"children,omitempty"`
}

// lsblkValue accepts the string, number, boolean and null encodings that
// different util-linux releases use for the same column.
type lsblkValue string

func (v *lsblkValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = lsblkValue(strings.TrimSpace(s))
	default:
		*v = lsblkValue(b)
	}
	return nil
}

func (v lsblkValue) String() string {
	return string(v)
}

// flag decodes "1"/"0" and true/false columns; nil when absent
func (v lsblkValue) flag() *bool {
	var b bool
	switch v {
	case "1", "true":
		b = true
	case "0", "false":
		b = false
	default:
		return nil
	}
	return &b
}

// Name returns the source name
func (s *LsblkSource) Name() string {
	return "lsblk"
}

// Collect runs lsblk and merges its devices into topo
func (s *LsblkSource) Collect(ctx context.Context, run collector.Runner, topo device.Topology, rep *device.Report) error {
	out, err := run.Run(ctx, "lsblk", "-J", "-b", "-o", lsblkColumns)
	if err != nil {
		return err
	}
	return ParseLsblk(ctx, out, topo, s.Linux.Aux(ctx, run, rep), rep)
}

// ParseLsblk adds disks and partitions missing from topo and fills fields
// still at the unknown sentinel on objects already known. Values already
// set are never overwritten.
func ParseLsblk(ctx context.Context, data []byte, topo device.Topology, aux *LinuxAux, rep *device.Report) error {
	var output lsblkOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return fmt.Errorf("failed to parse lsblk output: %w", err)
	}
	if aux == nil {
		aux = &LinuxAux{Attributes: Attributes{}}
	}

	for _, dev := range output.Blockdevices {
		if dev.Type != "disk" && dev.Type != "rom" {
			continue
		}
		host := lsblkDisk(ctx, dev, topo, aux, rep)
		if host == "" {
			continue
		}
		for _, child := range dev.Children {
			if child.Type == "part" {
				lsblkPartition(ctx, child, host, topo, aux, rep)
			}
		}
	}
	return nil
}

func (d lsblkDevice) path() string {
	if d.Path != "" {
		return d.Path.String()
	}
	return "/dev/" + d.Name
}

func lsblkDisk(ctx context.Context, d lsblkDevice, topo device.Topology, aux *LinuxAux, rep *device.Report) string {
	name := d.path()
	if device.IsSkipped(name) {
		return ""
	}

	obj := device.New(name, device.KindDevice)
	// ATA disks report the bus as vendor; the model then carries both
	switch vendor := d.Vendor.String(); {
	case vendor != "" && vendor != "ATA" && d.Model != "":
		obj.Vendor, obj.Product = vendor, d.Model.String()
	default:
		obj.Vendor, obj.Product = splitModel(d.Model.String())
	}
	if device.IsOptical(name) {
		obj.SetCapacityNA()
	} else {
		obj.SetCapacity(d.Size.String())
	}

	facts := driveFacts{Removable: d.RM.flag(), Protocol: protocolName(d.Tran.String())}
	if rota := d.Rota.flag(); rota != nil {
		ssd := !*rota
		facts.SolidState = &ssd
	}
	if facts.Protocol == "USB" {
		external := false
		facts.Internal = &external
	}
	obj.Description = describeDrive(facts)

	obj.Partitioning = normalizeTableType(d.PTType.String())
	if obj.Partitioning == device.Unknown {
		obj.Partitioning = aux.Attributes.Partitioning(name)
	}
	obj.FileSystem = orNA(firstKnown(normalizeFileSystem(d.FSType.String()), aux.Attributes.FileSystem(name)))
	obj.UUID = orNA(firstKnown(d.UUID.String(), aux.Attributes.UUID(name)))
	obj.ID = PersistentID(aux.ByID, name)

	if existing, ok := topo[name]; ok {
		fillUnknown(existing, obj)
		return name
	}

	topo[name] = obj
	aux.Boot.Apply(ctx, obj, "lsblk", rep)
	return name
}

func lsblkPartition(ctx context.Context, d lsblkDevice, host string, topo device.Topology, aux *LinuxAux, rep *device.Report) {
	name := d.path()
	if device.IsOptical(name) || device.IsSkipped(name) {
		return
	}
	hostObj := topo[host]

	obj := device.New(name, device.KindPartition)
	obj.HostDevice = host
	obj.Product = "Host Device: " + hostObj.Product
	obj.SetCapacity(d.Size.String())
	obj.Partitioning = device.NotApplicable
	obj.FileSystem = firstKnown(normalizeFileSystem(d.FSType.String()), aux.Attributes.FileSystem(name))
	obj.UUID = firstKnown(d.UUID.String(), aux.Attributes.UUID(name))
	obj.ID = PersistentID(aux.ByID, name)

	if existing, ok := topo[name]; ok {
		fillUnknown(existing, obj)
		return
	}

	topo[name] = obj
	hostObj.AddChild(name)
	aux.Boot.Apply(ctx, obj, "lsblk", rep)
}

// fillUnknown copies fields from src into dst where dst still holds the
// unknown sentinel. Capacity moves as a pair.
func fillUnknown(dst, src *device.StorageObject) {
	fill := func(d *string, s string) {
		if *d == device.Unknown && device.Known(s) {
			*d = s
		}
	}
	fill(&dst.Vendor, src.Vendor)
	fill(&dst.Product, src.Product)
	fill(&dst.Description, src.Description)
	fill(&dst.FileSystem, src.FileSystem)
	fill(&dst.Partitioning, src.Partitioning)
	fill(&dst.UUID, src.UUID)
	fill(&dst.ID, src.ID)

	if dst.RawCapacity == device.Unknown && device.Known(src.RawCapacity) {
		dst.RawCapacity, dst.HumanCapacity = src.RawCapacity, src.HumanCapacity
	}
}

func firstKnown(values ...string) string {
	for _, v := range values {
		if device.Known(v) {
			return v
		}
	}
	return device.Unknown
}
