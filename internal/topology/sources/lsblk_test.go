package sources

import (
	"context"
	"reflect"
	"testing"

	"github.com/sigreer/disktopo/internal/device"
)

func TestParseLsblk_Fresh(t *testing.T) {
	topo := device.Topology{}
	rep := &device.Report{}
	if err := ParseLsblk(context.Background(), loadTestData(t, "lsblk.json"), topo, linuxFixtures(t), rep); err != nil {
		t.Fatalf("ParseLsblk failed: %v", err)
	}

	want := []string{"/dev/sda", "/dev/sda1", "/dev/sdc", "/dev/sdc1", "/dev/sr0"}
	if !reflect.DeepEqual(topo.Names(), want) {
		t.Fatalf("expected %v, got %v", want, topo.Names())
	}

	sda := topo["/dev/sda"]
	if sda.Partitioning != "gpt" {
		t.Errorf("expected gpt, got %s", sda.Partitioning)
	}
	if sda.RawCapacity != "200000000000" || sda.HumanCapacity != "200 GB" {
		t.Errorf("unexpected capacity %s/%s", sda.RawCapacity, sda.HumanCapacity)
	}
	if sda.Description != "Unknown Hard Disk Drive (Connected through SATA)" {
		t.Errorf("unexpected description %q", sda.Description)
	}
	if sda.FileSystem != device.NotApplicable {
		t.Errorf("expected N/A filesystem, got %s", sda.FileSystem)
	}
	if !reflect.DeepEqual(sda.ChildNames, []string{"/dev/sda1"}) {
		t.Errorf("unexpected children %v", sda.ChildNames)
	}

	sdc := topo["/dev/sdc"]
	if sdc.Vendor != "SanDisk" || sdc.Product != "SanDisk Ultra Fit" {
		t.Errorf("unexpected vendor/product %s/%s", sdc.Vendor, sdc.Product)
	}
	if sdc.Description != "External Solid State Drive (Connected through USB)" {
		t.Errorf("unexpected description %q", sdc.Description)
	}
	if sdc.Partitioning != "mbr" {
		t.Errorf("expected mbr, got %s", sdc.Partitioning)
	}

	sdc1 := topo["/dev/sdc1"]
	if sdc1.FileSystem != "vfat" || sdc1.UUID != "1C2D-3E4F" {
		t.Errorf("unexpected filesystem/uuid %s/%s", sdc1.FileSystem, sdc1.UUID)
	}
	if sdc1.Product != "Host Device: SanDisk Ultra Fit" {
		t.Errorf("unexpected product %s", sdc1.Product)
	}
	if sdc1.HostDevice != "/dev/sdc" {
		t.Errorf("expected host /dev/sdc, got %s", sdc1.HostDevice)
	}

	sr0 := topo["/dev/sr0"]
	if sr0.RawCapacity != device.NotApplicable || sr0.HumanCapacity != device.NotApplicable {
		t.Errorf("expected N/A capacity for optical drive, got %s/%s", sr0.RawCapacity, sr0.HumanCapacity)
	}
	if sr0.Description != "Unknown Removable Drive (Connected through SATA)" {
		t.Errorf("unexpected description %q", sr0.Description)
	}
}

func TestParseLsblk_FillsOnlyUnknown(t *testing.T) {
	aux := linuxFixtures(t)
	topo := device.Topology{}
	if err := ParseLshw(context.Background(), loadTestData(t, "lshw-disks.xml"), topo, aux, nil); err != nil {
		t.Fatalf("ParseLshw failed: %v", err)
	}
	topo["/dev/sda1"].UUID = device.Unknown

	if err := ParseLsblk(context.Background(), loadTestData(t, "lsblk.json"), topo, aux, nil); err != nil {
		t.Fatalf("ParseLsblk failed: %v", err)
	}

	sda := topo["/dev/sda"]
	if sda.Vendor != "ThereIsNone" {
		t.Errorf("existing vendor overwritten: %s", sda.Vendor)
	}
	if sda.Description != "ATA Disk" {
		t.Errorf("existing description overwritten: %s", sda.Description)
	}
	if got := topo["/dev/sda1"].UUID; got != "5f2a3c64-2d8b-4f0c-9d55-2a4e0f1b7c11" {
		t.Errorf("expected unknown uuid to be filled, got %s", got)
	}
	want := []string{"/dev/sda1", "/dev/sda2", "/dev/sda3", "/dev/sda5"}
	if !reflect.DeepEqual(sda.ChildNames, want) {
		t.Errorf("expected children %v, got %v", want, sda.ChildNames)
	}
	if _, ok := topo["/dev/sdc1"]; !ok {
		t.Error("expected device missed by lshw to be added")
	}
}

func TestParseLsblk_Malformed(t *testing.T) {
	if err := ParseLsblk(context.Background(), []byte("{"), device.Topology{}, nil, nil); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestLsblkValueFlag(t *testing.T) {
	tests := []struct {
		v    lsblkValue
		want *bool
	}{
		{"1", boolPtr(true)},
		{"true", boolPtr(true)},
		{"0", boolPtr(false)},
		{"false", boolPtr(false)},
		{"", nil},
	}
	for _, tt := range tests {
		got := tt.v.flag()
		if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
			t.Errorf("flag(%q): unexpected result", tt.v)
		}
	}
}

func boolPtr(b bool) *bool {
	return &b
}
