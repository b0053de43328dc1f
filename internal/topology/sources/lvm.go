package sources

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sigreer/disktopo/internal/collector"
	"github.com/sigreer/disktopo/internal/device"
)

// lvBlockMarker starts each volume in `lvdisplay --maps` output
const lvBlockMarker = "--- Logical volume ---"

var errNoVolumePath = errors.New("no usable volume path")

// LVMSource adds logical volumes from `lvdisplay --maps`. It must run after
// the sources that discover partitions, because volumes are linked to the
// partitions backing them.
type LVMSource struct {
	Linux *Linux
}

// lvRecord holds the labelled values of one block
type lvRecord struct {
	path   string
	uuid   string
	size   string
	pv     string
	vgName string
	lvName string
}

// Name returns the source name
func (s *LVMSource) Name() string {
	return "lvm"
}

// Collect runs lvdisplay and adds its volumes to topo
func (s *LVMSource) Collect(ctx context.Context, run collector.Runner, topo device.Topology, rep *device.Report) error {
	out, err := run.Run(ctx, "lvdisplay", "--maps")
	if err != nil {
		return err
	}
	ParseLVDisplay(ctx, out, topo, s.Linux.Aux(ctx, run, rep), rep)
	return nil
}

// ParseLVDisplay adds one partition object per logical volume block.
// A block without a usable path is reported and dropped.
func ParseLVDisplay(ctx context.Context, data []byte, topo device.Topology, aux *LinuxAux, rep *device.Report) {
	if aux == nil {
		aux = &LinuxAux{Attributes: Attributes{}}
	}

	for i, block := range splitLVBlocks(data) {
		rec := scanLVBlock(block)
		if name := addLogicalVolume(ctx, rec, topo, aux, rep); name == device.Unknown {
			rep.Add("lvm", "", fmt.Errorf("logical volume block %d: %w", i+1, errNoVolumePath))
		}
	}
	topo.Purge()
}

// splitLVBlocks returns the lines of every block, excluding the markers.
func splitLVBlocks(data []byte) [][]string {
	var blocks [][]string
	var cur []string
	inBlock := false

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, lvBlockMarker) {
			if inBlock {
				blocks = append(blocks, cur)
			}
			cur = nil
			inBlock = true
			continue
		}
		if inBlock {
			cur = append(cur, line)
		}
	}
	if inBlock {
		blocks = append(blocks, cur)
	}
	return blocks
}

// scanLVBlock collects the labelled values of a block regardless of the
// order in which they appear.
func scanLVBlock(lines []string) lvRecord {
	var rec lvRecord
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		fields := strings.Fields(trimmed)
		if len(fields) == 0 {
			continue
		}
		last := fields[len(fields)-1]

		switch {
		case strings.HasPrefix(trimmed, "LV Path"):
			rec.path = last
		case strings.HasPrefix(trimmed, "LV Name"):
			// Older LVM2 prints the full path under LV Name
			if strings.HasPrefix(last, "/dev/") {
				if rec.path == "" {
					rec.path = last
				}
			} else {
				rec.lvName = last
			}
		case strings.HasPrefix(trimmed, "VG Name"):
			rec.vgName = last
		case strings.HasPrefix(trimmed, "LV UUID"):
			rec.uuid = last
		case strings.HasPrefix(trimmed, "LV Size") && len(fields) >= 4:
			rec.size = strings.Join(fields[len(fields)-2:], " ")
		case strings.HasPrefix(trimmed, "Physical volume"):
			if rec.pv == "" {
				rec.pv = last
			}
		}
	}
	return rec
}

func addLogicalVolume(ctx context.Context, rec lvRecord, topo device.Topology, aux *LinuxAux, rep *device.Report) string {
	// path
	vg, lv := rec.vgName, rec.lvName
	if pvg, plv, ok := splitLVPath(rec.path); ok {
		if vg == "" {
			vg = pvg
		}
		if lv == "" {
			lv = plv
		}
	}
	aliases := lvAliases(rec.path, vg, lv, aux.PathExists)
	name := device.Unknown
	if len(aliases) > 0 {
		name = aliases[0]
	}

	obj := device.New(name, device.KindPartition)
	obj.Aliases = aliases
	obj.VolumeGroup = orUnknown(vg)
	obj.LogicalVolume = orUnknown(lv)
	obj.Vendor = "Linux"
	obj.Product = "LVM Partition"
	obj.Description = fmt.Sprintf("LVM partition %s in volume group %s", obj.LogicalVolume, obj.VolumeGroup)
	obj.Partitioning = device.NotApplicable
	obj.ID = "dm-name-" + obj.VolumeGroup + "-" + obj.LogicalVolume
	for _, a := range aliases {
		if fs := aux.Attributes.FileSystem(a); fs != device.Unknown {
			obj.FileSystem = fs
			break
		}
	}

	// uuid
	if rec.uuid != "" {
		obj.UUID = rec.uuid
	}

	// size; lvdisplay gives no byte count
	if rec.size != "" {
		obj.HumanCapacity = rec.size
	}

	// backing physical volume
	if rec.pv != "" {
		obj.HostPartition = rec.pv
		if pv, ok := topo[rec.pv]; ok {
			if pv.Kind == device.KindDevice {
				obj.HostDevice = pv.Name
			} else {
				obj.HostDevice = pv.HostDevice
			}
		}
	}

	topo[name] = obj
	if name != device.Unknown {
		aux.Boot.Apply(ctx, obj, "lvm", rep)
	}
	return name
}

// splitLVPath splits /dev/<vg>/<lv>.
func splitLVPath(p string) (string, string, bool) {
	parts := strings.Split(p, "/")
	if len(parts) != 4 || parts[0] != "" || parts[1] != "dev" || parts[2] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[2], parts[3], true
}

// lvAliases lists the paths a volume is reachable under, mapper name
// first. exists filters candidates; nil keeps all of them.
func lvAliases(p, vg, lv string, exists func(string) bool) []string {
	if p == "" {
		return nil
	}

	var candidates []string
	if _, _, ok := splitLVPath(p); ok {
		candidates = append(candidates, "/dev/mapper/"+strings.Join(strings.Split(p, "/")[2:], "-"))
	}
	candidates = append(candidates, p)
	if strings.Contains(vg, "-") || strings.Contains(lv, "-") {
		candidates = append(candidates, "/dev/mapper/"+strings.ReplaceAll(vg, "-", "--")+"-"+strings.ReplaceAll(lv, "-", "--"))
	}

	var aliases []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		if exists != nil && !exists(c) {
			continue
		}
		aliases = append(aliases, c)
	}
	return aliases
}

func orUnknown(s string) string {
	if s == "" {
		return device.Unknown
	}
	return s
}
