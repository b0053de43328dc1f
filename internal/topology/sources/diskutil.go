package sources

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"howett.net/plist"

	"github.com/sigreer/disktopo/internal/collector"
	"github.com/sigreer/disktopo/internal/device"
)

// sliceSuffix matches the partition suffix of a BSD disk name (disk0s2)
var sliceSuffix = regexp.MustCompile(`s\d+$`)

// integerEntry matches one key with an integer value in an XML plist
var integerEntry = regexp.MustCompile(`<key>[^<]*</key>\s*<integer>\s*(-?\d+)\s*</integer>`)

// DiskutilSource enumerates disks and partitions from diskutil property
// lists on macOS
type DiskutilSource struct{}

// diskutilList mirrors `diskutil list -plist`
type diskutilList struct {
	AllDisks   []string `plist:"AllDisks"`
	WholeDisks []string `plist:"WholeDisks"`
}

// diskutilInfo mirrors the fields used from `diskutil info -plist <disk>`
type diskutilInfo struct {
	MediaName       *string `plist:"MediaName"`
	TotalSize       *uint64 `plist:"TotalSize"`
	Internal        *bool   `plist:"Internal"`
	SolidState      *bool   `plist:"SolidState"`
	RemovableMedia  *bool   `plist:"RemovableMedia"`
	BusProtocol     *string `plist:"BusProtocol"`
	ParentWholeDisk string  `plist:"ParentWholeDisk"`
	DeviceBlockSize *int64  `plist:"DeviceBlockSize"`
	VolumeBlockSize *int64  `plist:"VolumeBlockSize"`
}

// diskutilUnsupported are the fields diskutil output is not mined for
var diskutilUnsupported = []string{
	device.FieldFlags,
	device.FieldPartitioning,
	device.FieldFileSystem,
	device.FieldUUID,
	device.FieldID,
	device.FieldBootRecord,
}

// Name returns the source name
func (s *DiskutilSource) Name() string {
	return "diskutil"
}

// Collect lists all disks and adds whole disks before their partitions
func (s *DiskutilSource) Collect(ctx context.Context, run collector.Runner, topo device.Topology, rep *device.Report) error {
	out, err := run.Run(ctx, "diskutil", "list", "-plist")
	if err != nil {
		return err
	}
	disks, err := ParseDiskutilList(out)
	if err != nil {
		return err
	}

	var partitions []string
	for _, disk := range disks {
		if IsDiskutilPartition(disk) {
			partitions = append(partitions, disk)
			continue
		}
		name := "/dev/" + disk
		if _, exists := topo[name]; exists {
			continue
		}
		info, runErr := run.Run(ctx, "diskutil", "info", "-plist", disk)
		obj, err := ParseDiskutilDevice(info, name)
		if runErr != nil {
			err = runErr
		}
		rep.Add("diskutil", name, err)
		topo[name] = obj
	}

	for _, disk := range partitions {
		name := "/dev/" + disk
		if _, exists := topo[name]; exists {
			continue
		}
		info, runErr := run.Run(ctx, "diskutil", "info", "-plist", disk)
		obj, err := ParseDiskutilPartition(info, name, topo)
		if runErr != nil {
			err = runErr
		}
		rep.Add("diskutil", name, err)
		topo[name] = obj
		if host, ok := topo[obj.HostDevice]; ok {
			host.AddChild(name)
		}
	}
	return nil
}

// ParseDiskutilList returns AllDisks from `diskutil list -plist`.
func ParseDiskutilList(data []byte) ([]string, error) {
	var list diskutilList
	if _, err := plist.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse diskutil list: %w", err)
	}
	if len(list.AllDisks) == 0 {
		return list.WholeDisks, nil
	}
	return list.AllDisks, nil
}

// IsDiskutilPartition reports whether a BSD name such as disk0s1 names a
// partition rather than a whole disk.
func IsDiskutilPartition(disk string) bool {
	_, rest, ok := strings.Cut(disk, "disk")
	return ok && strings.Contains(rest, "s")
}

func decodeDiskutilInfo(data []byte) (diskutilInfo, error) {
	var info diskutilInfo
	if _, err := plist.Unmarshal(data, &info); err != nil {
		// the plist decoder rejects the whole document over one integer
		// wider than 64 bits; drop such entries and leave them unset
		trimmed, dropped := dropOversizedIntegers(data)
		if !dropped {
			return diskutilInfo{}, fmt.Errorf("failed to parse diskutil info: %w", err)
		}
		info = diskutilInfo{}
		if _, err := plist.Unmarshal(trimmed, &info); err != nil {
			return diskutilInfo{}, fmt.Errorf("failed to parse diskutil info: %w", err)
		}
	}
	return info, nil
}

// dropOversizedIntegers removes key/integer pairs whose value does not fit
// in 64 bits.
func dropOversizedIntegers(data []byte) ([]byte, bool) {
	dropped := false
	out := integerEntry.ReplaceAllFunc(data, func(entry []byte) []byte {
		digits := string(integerEntry.FindSubmatch(entry)[1])
		var err error
		if strings.HasPrefix(digits, "-") {
			_, err = strconv.ParseInt(digits, 10, 64)
		} else {
			_, err = strconv.ParseUint(digits, 10, 64)
		}
		if errors.Is(err, strconv.ErrRange) {
			dropped = true
			return nil
		}
		return entry
	})
	return out, dropped
}

// ParseDiskutilDevice builds a whole-disk object from `diskutil info -plist`.
func ParseDiskutilDevice(data []byte, name string) (*device.StorageObject, error) {
	obj := device.New(name, device.KindDevice)
	obj.MarkUnsupported(diskutilUnsupported...)

	info, err := decodeDiskutilInfo(data)
	if err != nil {
		return obj, err
	}

	if info.MediaName != nil {
		obj.Vendor, obj.Product = splitModel(*info.MediaName)
	}
	applyDiskutilCommon(obj, info)
	return obj, nil
}

// ParseDiskutilPartition builds a partition object. Vendor and product come
// from the host disk, which must already be in topo to be used.
func ParseDiskutilPartition(data []byte, name string, topo device.Topology) (*device.StorageObject, error) {
	obj := device.New(name, device.KindPartition)
	obj.MarkUnsupported(diskutilUnsupported...)
	obj.Partitioning = device.NotApplicable

	info, err := decodeDiskutilInfo(data)

	host := "/dev/" + sliceSuffix.ReplaceAllString(strings.TrimPrefix(name, "/dev/"), "")
	if info.ParentWholeDisk != "" {
		host = "/dev/" + info.ParentWholeDisk
	}
	obj.HostDevice = host
	if h, ok := topo[host]; ok {
		obj.Vendor = h.Vendor
		obj.Product = "Host Device: " + h.Product
	}

	if err != nil {
		return obj, err
	}
	applyDiskutilCommon(obj, info)
	return obj, nil
}

func applyDiskutilCommon(obj *device.StorageObject, info diskutilInfo) {
	if info.TotalSize != nil {
		obj.SetCapacity(strconv.FormatUint(*info.TotalSize, 10))
	}

	facts := driveFacts{
		Internal:   info.Internal,
		SolidState: info.SolidState,
		Removable:  info.RemovableMedia,
	}
	if info.BusProtocol != nil {
		facts.Protocol = *info.BusProtocol
	}
	obj.Description = describeDrive(facts)
}

// ParseDiskutilBlockSize reads DeviceBlockSize from a `diskutil info -plist`
// document, falling back to VolumeBlockSize.
func ParseDiskutilBlockSize(data []byte) (int, error) {
	info, err := decodeDiskutilInfo(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoBlockSize, err)
	}
	switch {
	case info.DeviceBlockSize != nil:
		return int(*info.DeviceBlockSize), nil
	case info.VolumeBlockSize != nil:
		return int(*info.VolumeBlockSize), nil
	default:
		return 0, ErrNoBlockSize
	}
}
