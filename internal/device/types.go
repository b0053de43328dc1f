package device

import (
	"strings"

	"github.com/sigreer/disktopo/internal/units"
)

// Sentinel values used when a fact cannot be determined.
const (
	Unknown       = units.Unknown
	NotApplicable = "N/A"
	// NoHost is the HostDevice of a top-level device.
	NoHost = "none"
)

// Kind categorizes a storage object
type Kind string

const (
	KindDevice    Kind = "Device"
	KindPartition Kind = "Partition"
)

// Field names reported in StorageObject.Unsupported
const (
	FieldFlags        = "flags"
	FieldPartitioning = "partitioning"
	FieldFileSystem   = "filesystem"
	FieldUUID         = "uuid"
	FieldID           = "id"
	FieldBootRecord   = "boot_record"
)

// StorageObject is one node of the topology: a device, a partition or a
// logical volume (a partition carrying volume group fields).
type StorageObject struct {
	Name       string   `json:"name" yaml:"name"`
	Kind       Kind     `json:"kind" yaml:"kind"`
	HostDevice string   `json:"host_device" yaml:"host_device"`
	ChildNames []string `json:"children" yaml:"children"`

	Vendor        string `json:"vendor" yaml:"vendor"`
	Product       string `json:"product" yaml:"product"`
	RawCapacity   string `json:"raw_capacity" yaml:"raw_capacity"`
	HumanCapacity string `json:"capacity" yaml:"capacity"`
	Description   string `json:"description" yaml:"description"`

	Flags        []string `json:"flags" yaml:"flags"`
	FileSystem   string   `json:"filesystem" yaml:"filesystem"`
	Partitioning string   `json:"partitioning" yaml:"partitioning"`
	UUID         string   `json:"uuid" yaml:"uuid"`
	ID           string   `json:"id" yaml:"id"`

	BootRecord        []byte   `json:"boot_record,omitempty" yaml:"-"`
	BootRecordStrings []string `json:"boot_record_strings" yaml:"boot_record_strings"`

	// Logical volume fields
	HostPartition string   `json:"host_partition,omitempty" yaml:"host_partition,omitempty"`
	VolumeGroup   string   `json:"volume_group,omitempty" yaml:"volume_group,omitempty"`
	LogicalVolume string   `json:"logical_volume,omitempty" yaml:"logical_volume,omitempty"`
	Aliases       []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`

	// Fields the producing source cannot supply on this platform
	Unsupported []string `json:"unsupported,omitempty" yaml:"unsupported,omitempty"`
}

// New returns an object with every field at its sentinel default.
func New(name string, kind Kind) *StorageObject {
	host := Unknown
	if kind == KindDevice {
		host = NoHost
	}
	return &StorageObject{
		Name:              name,
		Kind:              kind,
		HostDevice:        host,
		ChildNames:        []string{},
		Vendor:            Unknown,
		Product:           Unknown,
		RawCapacity:       Unknown,
		HumanCapacity:     Unknown,
		Description:       Unknown,
		Flags:             []string{},
		FileSystem:        Unknown,
		Partitioning:      Unknown,
		UUID:              Unknown,
		ID:                Unknown,
		BootRecord:        []byte(Unknown),
		BootRecordStrings: []string{Unknown},
	}
}

// SetCapacity formats raw through the unit normalizer so both halves always
// derive from the same value.
func (o *StorageObject) SetCapacity(raw string) {
	o.RawCapacity, o.HumanCapacity = units.Normalize(raw)
}

// SetCapacityNA marks capacity as not applicable (optical media).
func (o *StorageObject) SetCapacityNA() {
	o.RawCapacity, o.HumanCapacity = NotApplicable, NotApplicable
}

// SetBootRecordNA marks the boot record as not applicable.
func (o *StorageObject) SetBootRecordNA() {
	o.BootRecord = []byte(NotApplicable)
	o.BootRecordStrings = []string{NotApplicable}
}

// MarkUnsupported records that the source cannot supply the named fields.
func (o *StorageObject) MarkUnsupported(fields ...string) {
	for _, f := range fields {
		if !contains(o.Unsupported, f) {
			o.Unsupported = append(o.Unsupported, f)
		}
	}
}

// IsLogicalVolume reports whether the object came from the volume manager.
func (o *StorageObject) IsLogicalVolume() bool {
	return o.VolumeGroup != "" || o.LogicalVolume != ""
}

// AddChild appends name to ChildNames unless already present.
func (o *StorageObject) AddChild(name string) {
	if !contains(o.ChildNames, name) {
		o.ChildNames = append(o.ChildNames, name)
	}
}

// Known reports whether v holds a real value rather than a sentinel.
func Known(v string) bool {
	return v != "" && v != Unknown && v != NotApplicable
}

// opticalPrefixes identify optical media
var opticalPrefixes = []string{"/dev/cdrom", "/dev/sr", "/dev/dvd"}

// skipPrefixes identify loop, ramdisk and network block devices
var skipPrefixes = []string{"/dev/loop", "/dev/ram", "/dev/nbd"}

// IsOptical reports whether name is an optical drive.
func IsOptical(name string) bool {
	return hasAnyPrefix(name, opticalPrefixes)
}

// IsSkipped reports whether name is a loop, ramdisk or network block device.
func IsSkipped(name string) bool {
	return hasAnyPrefix(name, skipPrefixes)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
