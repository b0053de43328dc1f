package sources

import (
	"context"
	"reflect"
	"testing"

	"github.com/sigreer/disktopo/internal/device"
)

func linuxFixtures(t *testing.T) *LinuxAux {
	t.Helper()
	return &LinuxAux{
		Attributes: ParseAttributes(loadTestData(t, "blkid-export.txt")),
		ByID:       loadTestData(t, "ls-by-id.txt"),
	}
}

func TestParseLshw_Devices(t *testing.T) {
	topo := device.Topology{}
	rep := &device.Report{}
	if err := ParseLshw(context.Background(), loadTestData(t, "lshw-disks.xml"), topo, linuxFixtures(t), rep); err != nil {
		t.Fatalf("ParseLshw failed: %v", err)
	}

	if _, ok := topo["/dev/loop0"]; ok {
		t.Error("loop device should be skipped")
	}

	sda, ok := topo["/dev/sda"]
	if !ok {
		t.Fatal("expected /dev/sda in topology")
	}
	if sda.Kind != device.KindDevice {
		t.Errorf("expected Device, got %s", sda.Kind)
	}
	if sda.HostDevice != device.NoHost {
		t.Errorf("expected host %s, got %s", device.NoHost, sda.HostDevice)
	}
	if sda.Vendor != "ThereIsNone" || sda.Product != "FakeDisk" {
		t.Errorf("unexpected vendor/product %s/%s", sda.Vendor, sda.Product)
	}
	if sda.RawCapacity != "200000000000" || sda.HumanCapacity != "200 GB" {
		t.Errorf("unexpected capacity %s/%s", sda.RawCapacity, sda.HumanCapacity)
	}
	if sda.Description != "ATA Disk" {
		t.Errorf("expected description ATA Disk, got %s", sda.Description)
	}
	if sda.Partitioning != "gpt" {
		t.Errorf("expected gpt, got %s", sda.Partitioning)
	}
	if sda.FileSystem != device.NotApplicable || sda.UUID != device.NotApplicable {
		t.Errorf("expected N/A filesystem and uuid on a partitioned disk, got %s/%s", sda.FileSystem, sda.UUID)
	}
	if sda.ID != "ata-FakeDisk_FD0001" {
		t.Errorf("expected ata-FakeDisk_FD0001, got %s", sda.ID)
	}
	wantFlags := []string{"gpt-1.00", "partitioned", "partitioned:gpt"}
	if !reflect.DeepEqual(sda.Flags, wantFlags) {
		t.Errorf("expected flags %v, got %v", wantFlags, sda.Flags)
	}
	wantChildren := []string{"/dev/sda1", "/dev/sda2", "/dev/sda3", "/dev/sda5"}
	if !reflect.DeepEqual(sda.ChildNames, wantChildren) {
		t.Errorf("expected children %v, got %v", wantChildren, sda.ChildNames)
	}
	if string(sda.BootRecord) != device.Unknown {
		t.Errorf("expected unknown boot record without a reader, got %q", sda.BootRecord)
	}
}

func TestParseLshw_Partitions(t *testing.T) {
	topo := device.Topology{}
	if err := ParseLshw(context.Background(), loadTestData(t, "lshw-disks.xml"), topo, linuxFixtures(t), nil); err != nil {
		t.Fatalf("ParseLshw failed: %v", err)
	}

	tests := []struct {
		name  string
		fs    string
		uuid  string
		human string
		host  string
	}{
		{"/dev/sda1", "ext4", "5f2a3c64-2d8b-4f0c-9d55-2a4e0f1b7c11", "20 GB", "/dev/sda"},
		{"/dev/sda2", "ext3", "8d1f0b7e-6a57-4b3e-9c8e-1b2f3a4c5d66", "2 GB", "/dev/sda"},
		{"/dev/sda3", device.NotApplicable, device.Unknown, "100 GB", "/dev/sda"},
		{"/dev/sda5", "vfat", "3A1F-9C2B", "1 GB", "/dev/sda"},
		{"/dev/nvme0n1p1", "ext4", device.Unknown, "500 GB", "/dev/nvme0n1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := topo[tt.name]
			if !ok {
				t.Fatalf("expected %s in topology", tt.name)
			}
			if p.Kind != device.KindPartition {
				t.Errorf("expected Partition, got %s", p.Kind)
			}
			if p.FileSystem != tt.fs {
				t.Errorf("expected filesystem %s, got %s", tt.fs, p.FileSystem)
			}
			if p.UUID != tt.uuid {
				t.Errorf("expected uuid %s, got %s", tt.uuid, p.UUID)
			}
			if p.HumanCapacity != tt.human {
				t.Errorf("expected capacity %s, got %s", tt.human, p.HumanCapacity)
			}
			if p.HostDevice != tt.host {
				t.Errorf("expected host %s, got %s", tt.host, p.HostDevice)
			}
			if p.Partitioning != device.NotApplicable {
				t.Errorf("expected N/A partitioning, got %s", p.Partitioning)
			}
		})
	}

	if got := topo["/dev/sda1"].Product; got != "Host Device: FakeDisk" {
		t.Errorf("expected product derived from host, got %s", got)
	}
	if got := topo["/dev/sda1"].ID; got != "ata-FakeDisk_FD0001-part1" {
		t.Errorf("expected by-id name, got %s", got)
	}
	if got := topo["/dev/nvme0n1"].Partitioning; got != "mbr" {
		t.Errorf("expected mbr from partitioned:dos, got %s", got)
	}
}

func TestParseLshw_Optical(t *testing.T) {
	topo := device.Topology{}
	if err := ParseLshw(context.Background(), loadTestData(t, "lshw-disks.xml"), topo, nil, nil); err != nil {
		t.Fatalf("ParseLshw failed: %v", err)
	}

	cd, ok := topo["/dev/cdrom"]
	if !ok {
		t.Fatal("expected /dev/cdrom in topology")
	}
	if cd.RawCapacity != device.NotApplicable || cd.HumanCapacity != device.NotApplicable {
		t.Errorf("expected N/A capacity pair, got %s/%s", cd.RawCapacity, cd.HumanCapacity)
	}
	if string(cd.BootRecord) != device.NotApplicable {
		t.Errorf("expected N/A boot record, got %q", cd.BootRecord)
	}
	if !reflect.DeepEqual(cd.BootRecordStrings, []string{device.NotApplicable}) {
		t.Errorf("expected N/A boot record strings, got %v", cd.BootRecordStrings)
	}
	if _, ok := topo["/dev/sr0"]; ok {
		t.Error("only the first logical name should be used as identity")
	}
}

func TestParseLshw_SingleNodeRoot(t *testing.T) {
	topo := device.Topology{}
	if err := ParseLshw(context.Background(), loadTestData(t, "lshw-single-node.xml"), topo, nil, nil); err != nil {
		t.Fatalf("ParseLshw failed: %v", err)
	}
	if len(topo) != 2 {
		t.Fatalf("expected 2 objects, got %d: %v", len(topo), topo.Names())
	}
	if got := topo["/dev/sdb"].HumanCapacity; got != "42 GB" {
		t.Errorf("expected 42 GB, got %s", got)
	}
	if got := topo["/dev/sdb1"].HostDevice; got != "/dev/sdb" {
		t.Errorf("expected host /dev/sdb, got %s", got)
	}
}

func TestParseLshw_Idempotent(t *testing.T) {
	data := loadTestData(t, "lshw-disks.xml")
	topo := device.Topology{}
	aux := linuxFixtures(t)
	if err := ParseLshw(context.Background(), data, topo, aux, nil); err != nil {
		t.Fatalf("first parse failed: %v", err)
	}
	before := len(topo)
	children := append([]string(nil), topo["/dev/sda"].ChildNames...)

	if err := ParseLshw(context.Background(), data, topo, aux, nil); err != nil {
		t.Fatalf("second parse failed: %v", err)
	}
	if len(topo) != before {
		t.Errorf("expected %d objects after reparse, got %d", before, len(topo))
	}
	if !reflect.DeepEqual(topo["/dev/sda"].ChildNames, children) {
		t.Errorf("children changed on reparse: %v", topo["/dev/sda"].ChildNames)
	}
}

func TestParseLshw_Malformed(t *testing.T) {
	topo := device.Topology{}
	err := ParseLshw(context.Background(), []byte("<list><node id=\"disk\""), topo, nil, nil)
	if err == nil {
		t.Fatal("expected error for truncated document")
	}
	if len(topo) != 0 {
		t.Errorf("expected empty topology, got %v", topo.Names())
	}
}

func TestParseLshw_MissingLogicalName(t *testing.T) {
	data := []byte(`<list><node id="disk" class="disk"><product>Ghost</product></node></list>`)
	topo := device.Topology{}
	rep := &device.Report{}
	if err := ParseLshw(context.Background(), data, topo, nil, rep); err != nil {
		t.Fatalf("ParseLshw failed: %v", err)
	}
	if len(rep.Errors) != 1 {
		t.Errorf("expected 1 non-fatal error, got %d", len(rep.Errors))
	}
	topo.Purge()
	if len(topo) != 0 {
		t.Errorf("expected placeholder to be purged, got %v", topo.Names())
	}
}

func TestParseLshw_RepeatedVolumeNode(t *testing.T) {
	data := []byte(`<list>
<node id="disk" class="disk"><product>FakeDisk</product><logicalname>/dev/sda</logicalname><size units="bytes">200000000000</size>
  <node id="volume" class="volume"><logicalname>/dev/sda1</logicalname><size units="bytes">20000000000</size></node>
</node>
<node id="volume" class="volume"><logicalname>/dev/sda1</logicalname>
  <node id="logicalvolume" class="volume"><logicalname>/dev/sda5</logicalname><size units="bytes">1000000000</size></node>
</node>
</list>`)
	topo := device.Topology{}
	if err := ParseLshw(context.Background(), data, topo, nil, nil); err != nil {
		t.Fatalf("ParseLshw failed: %v", err)
	}

	if _, ok := topo["/dev/sda5"]; ok {
		t.Error("partition under a repeated volume node should be skipped")
	}
	sda1 := topo["/dev/sda1"]
	if sda1 == nil || sda1.Kind != device.KindPartition || sda1.HostDevice != "/dev/sda" {
		t.Fatalf("expected /dev/sda1 to stay a partition of /dev/sda, got %+v", sda1)
	}
	for _, obj := range topo {
		if host, ok := topo[obj.HostDevice]; ok && host.Kind != device.KindDevice {
			t.Errorf("%s has host %s of kind %s", obj.Name, host.Name, host.Kind)
		}
	}
}

func TestLshwDescendants_DepthBound(t *testing.T) {
	root := &lshwNode{}
	cur := root
	for i := 0; i < maxTreeDepth+10; i++ {
		cur.Children = []lshwNode{{PhysID: "x"}}
		cur = &cur.Children[0]
	}
	if got := len(lshwDescendants(root)); got != maxTreeDepth {
		t.Errorf("expected walk to stop at %d nodes, got %d", maxTreeDepth, got)
	}
}
