package topology

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/sigreer/disktopo/internal/collector"
	"github.com/sigreer/disktopo/internal/device"
)

func loadTestData(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("failed to load test data %s: %v", name, err)
	}
	return string(data)
}

func lshwArgs() []string {
	return []string{"-sanitize", "-class", "disk", "-class", "volume", "-xml"}
}

func TestAggregate_EndToEnd(t *testing.T) {
	run := collector.Static{}
	run.Set(loadTestData(t, "lshw-sda.xml"), "lshw", lshwArgs()...)

	topo, errs, err := Aggregate(context.Background(), run, Options{Platform: PlatformLinux, Offline: true})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if len(topo) != 3 {
		t.Fatalf("expected 3 objects, got %d: %v", len(topo), topo.Names())
	}
	sda := topo["/dev/sda"]
	if !reflect.DeepEqual(sda.ChildNames, []string{"/dev/sda1", "/dev/sda2"}) {
		t.Errorf("unexpected children %v", sda.ChildNames)
	}
	for _, name := range []string{"/dev/sda1", "/dev/sda2"} {
		if got := topo[name].HostDevice; got != "/dev/sda" {
			t.Errorf("%s: expected host /dev/sda, got %s", name, got)
		}
	}
	if got := topo["/dev/sda2"].FileSystem; got != "ext3" {
		t.Errorf("expected ext3, got %s", got)
	}
	if got := sda.HumanCapacity; got != "200 GB" {
		t.Errorf("expected 200 GB, got %s", got)
	}

	// blkid, by-id, lsblk and lvdisplay have no captures
	if len(errs) != 4 {
		t.Errorf("expected 4 non-fatal errors, got %d: %v", len(errs), errs)
	}
	for _, e := range errs {
		if !errors.Is(e, collector.ErrCaptureMissing) {
			t.Errorf("expected ErrCaptureMissing, got %v", e)
		}
	}
}

func TestAggregate_LogicalVolumes(t *testing.T) {
	run := collector.Static{}
	run.Set(loadTestData(t, "lshw-lvm.xml"), "lshw", lshwArgs()...)
	run.Set(loadTestData(t, "lvdisplay-maps.txt"), "lvdisplay", "--maps")
	run.Set(loadTestData(t, "blkid-export.txt"), "blkid", "-o", "export")
	run.Set(loadTestData(t, "ls-by-id.txt"), "ls", "-l", "/dev/disk/by-id/")

	topo, _, err := Aggregate(context.Background(), run, Options{Platform: PlatformLinux, Offline: true})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	for _, lv := range []string{"swap", "root"} {
		name := "/dev/mapper/fakefedora-" + lv
		obj, ok := topo[name]
		if !ok {
			t.Fatalf("expected %s, have %v", name, topo.Names())
		}
		if obj.HostDevice != topo["/dev/sda3"].HostDevice {
			t.Errorf("%s: expected host %s, got %s", lv, topo["/dev/sda3"].HostDevice, obj.HostDevice)
		}
		if obj.VolumeGroup != "fakefedora" {
			t.Errorf("%s: expected volume group fakefedora, got %s", lv, obj.VolumeGroup)
		}
		hasMapper := false
		for _, a := range obj.Aliases {
			if strings.HasPrefix(a, "/dev/mapper/") {
				hasMapper = true
			}
		}
		if !hasMapper {
			t.Errorf("%s: expected a mapper alias, got %v", lv, obj.Aliases)
		}
	}

	want := []string{"/dev/sda1", "/dev/sda3", "/dev/mapper/fakefedora-root", "/dev/mapper/fakefedora-swap"}
	if !reflect.DeepEqual(topo["/dev/sda"].ChildNames, want) {
		t.Errorf("expected children %v, got %v", want, topo["/dev/sda"].ChildNames)
	}
}

func TestAggregate_NothingFound(t *testing.T) {
	topo, errs, err := Aggregate(context.Background(), collector.Static{}, Options{Platform: PlatformLinux})
	if !errors.Is(err, ErrNoStorageObjects) {
		t.Fatalf("expected ErrNoStorageObjects, got %v", err)
	}
	if topo != nil {
		t.Errorf("expected nil topology, got %v", topo.Names())
	}
	if len(errs) == 0 {
		t.Error("expected the source failures to be reported")
	}
}

// fixedSource adds prebuilt objects
type fixedSource struct {
	objects []*device.StorageObject
	err     error
}

func (s *fixedSource) Name() string { return "fixed" }

func (s *fixedSource) Collect(ctx context.Context, run collector.Runner, topo device.Topology, rep *device.Report) error {
	for _, o := range s.objects {
		topo[o.Name] = o
	}
	return s.err
}

func TestAggregate_PurgeAndValidate(t *testing.T) {
	sda := device.New("/dev/sda", device.KindDevice)
	sda1 := device.New("/dev/sda1", device.KindPartition)
	sda1.HostDevice = "/dev/sda"
	orphan := device.New("/dev/sdz1", device.KindPartition)
	orphan.HostDevice = "/dev/sdz"
	placeholder := device.New(device.Unknown, device.KindDevice)

	a := &Assembler{
		Runner: collector.Static{},
		Sources: []Source{
			&fixedSource{objects: []*device.StorageObject{sda, sda1, orphan, placeholder}},
			&fixedSource{err: errors.New("boom")},
		},
	}
	topo, errs, err := a.Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if _, ok := topo[device.Unknown]; ok {
		t.Error("unknown placeholder must be purged")
	}
	if _, ok := topo["/dev/sdz1"]; ok {
		t.Error("object with a dangling host must be removed")
	}
	if !reflect.DeepEqual(sda.ChildNames, []string{"/dev/sda1"}) {
		t.Errorf("expected link to add /dev/sda1, got %v", sda.ChildNames)
	}

	var dangling, failed bool
	for _, e := range errs {
		if errors.Is(e, device.ErrDanglingHost) && e.Object == "/dev/sdz1" {
			dangling = true
		}
		if e.Source == "fixed" && strings.Contains(e.Error(), "boom") {
			failed = true
		}
	}
	if !dangling || !failed {
		t.Errorf("expected dangling host and source failure errors, got %v", errs)
	}
}

func TestAggregate_Darwin(t *testing.T) {
	run := collector.Static{}
	run.Set(loadTestData(t, "diskutil-list.plist"), "diskutil", "list", "-plist")
	run.Set(loadTestData(t, "diskutil-info-disk0.plist"), "diskutil", "info", "-plist", "disk0")
	run.Set(loadTestData(t, "diskutil-info-disk0s1.plist"), "diskutil", "info", "-plist", "disk0s1")

	topo, errs, err := Aggregate(context.Background(), run, Options{Platform: PlatformDarwin})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(topo) != 3 {
		t.Errorf("expected 3 objects, got %v", topo.Names())
	}
	if len(errs) != 1 {
		t.Errorf("expected 1 error for the missing disk0s2 capture, got %v", errs)
	}
	if got := topo["/dev/disk0"].Description; got != "Internal Hard Disk Drive (Connected through SATA)" {
		t.Errorf("unexpected description %q", got)
	}
}

func TestAggregate_Cygwin(t *testing.T) {
	run := collector.Static{}
	run.Set(loadTestData(t, "smartctl-scan.json"), "smartctl", "--scan", "-j")
	run.Set(loadTestData(t, "smartctl-info-sda.json"), "smartctl", "-i", "-j", "/dev/sda")

	topo, _, err := Aggregate(context.Background(), run, Options{Platform: PlatformCygwin})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if got := topo["/dev/sda"].HumanCapacity; got != "500 GB" {
		t.Errorf("expected 500 GB, got %s", got)
	}
	if _, ok := topo["/dev/sdb"]; !ok {
		t.Error("expected /dev/sdb with sentinel fields")
	}
}

func TestStrategy(t *testing.T) {
	tests := []struct {
		platform Platform
		want     []string
	}{
		{PlatformLinux, []string{"lshw", "lsblk", "lvm"}},
		{PlatformDarwin, []string{"diskutil"}},
		{PlatformCygwin, []string{"smartctl"}},
	}
	for _, tt := range tests {
		var names []string
		for _, s := range Strategy(Options{Platform: tt.platform}) {
			names = append(names, s.Name())
		}
		if !reflect.DeepEqual(names, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.platform, tt.want, names)
		}
	}
}

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in      string
		want    Platform
		wantErr bool
	}{
		{"linux", PlatformLinux, false},
		{"macos", PlatformDarwin, false},
		{"windows", PlatformCygwin, false},
		{"auto", DetectPlatform(), false},
		{"", DetectPlatform(), false},
		{"plan9", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePlatform(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePlatform(%q): unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParsePlatform(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestBlockSize(t *testing.T) {
	run := collector.Static{}
	run.Set("4096\n", "blockdev", "--getpbsz", "/dev/sda")
	run.Set(loadTestData(t, "diskutil-info-disk0s1.plist"), "diskutil", "info", "-plist", "/dev/disk0s1")
	run.Set(loadTestData(t, "smartctl-info-sda.json"), "smartctl", "-i", "-j", "/dev/sda")

	tests := []struct {
		platform Platform
		name     string
		want     int
	}{
		{PlatformLinux, "/dev/sda", 4096},
		{PlatformDarwin, "/dev/disk0s1", 1024},
		{PlatformCygwin, "/dev/sda", 512},
	}
	for _, tt := range tests {
		n, err := BlockSize(context.Background(), run, tt.platform, tt.name)
		if err != nil {
			t.Errorf("%s: %v", tt.platform, err)
			continue
		}
		if n != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.platform, tt.want, n)
		}
	}

	if _, err := BlockSize(context.Background(), run, PlatformLinux, "/dev/sdq"); !errors.Is(err, collector.ErrCaptureMissing) {
		t.Errorf("expected ErrCaptureMissing, got %v", err)
	}
}
