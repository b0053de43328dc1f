package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sigreer/disktopo/internal/collector"
	"github.com/sigreer/disktopo/internal/device"
)

// SmartSource enumerates devices through smartctl's JSON output. It is the
// source used on Windows and Cygwin hosts, where neither lshw nor lsblk
// exist.
type SmartSource struct {
	BootRecords bool
}

// smartScan represents `smartctl --scan -j`
type smartScan struct {
	Devices []struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Protocol string `json:"protocol"`
	} `json:"devices"`
}

// smartInfo represents the fields used from `smartctl -i -j <dev>`
type smartInfo struct {
	ModelName string `json:"model_name"`
	Device    struct {
		Name     string `json:"name"`
		Protocol string `json:"protocol"`
	} `json:"device"`
	UserCapacity *struct {
		Bytes json.Number `json:"bytes"`
	} `json:"user_capacity"`
	LogicalBlockSize json.Number `json:"logical_block_size"`
}

// Name returns the source name
func (s *SmartSource) Name() string {
	return "smartctl"
}

// Collect scans for devices and adds one object per device
func (s *SmartSource) Collect(ctx context.Context, run collector.Runner, topo device.Topology, rep *device.Report) error {
	out, err := run.Run(ctx, "smartctl", "--scan", "-j")
	if err != nil && len(out) == 0 {
		return err
	}
	names, err := ParseSmartScan(out)
	if err != nil {
		return err
	}

	boot := &BootRecords{Run: run, Enabled: s.BootRecords}
	for _, name := range names {
		if device.IsSkipped(name) {
			continue
		}
		if _, exists := topo[name]; exists {
			continue
		}

		// smartctl sets bits in its exit status for warnings while still
		// printing a full document
		info, runErr := run.Run(ctx, "smartctl", "-i", "-j", name)

		letter := ""
		if lout, err := run.Run(ctx, "cygpath", "-w", name); err == nil {
			letter = driveLetter(lout)
		}

		attrs := Attributes{}
		if bout, err := run.Run(ctx, "blkid", "-o", "export", name); err != nil {
			rep.Add("blkid", name, err)
		} else {
			attrs = ParseAttributes(bout)
		}

		obj, err := ParseSmart(info, name, letter, attrs)
		if runErr != nil && len(info) == 0 {
			err = runErr
		}
		rep.Add("smartctl", name, err)
		topo[name] = obj
		boot.Apply(ctx, obj, "smartctl", rep)
	}
	return nil
}

// ParseSmartScan returns the device names listed by `smartctl --scan -j`.
func ParseSmartScan(data []byte) ([]string, error) {
	var scan smartScan
	if err := json.Unmarshal(data, &scan); err != nil {
		return nil, fmt.Errorf("failed to parse smartctl scan: %w", err)
	}
	names := make([]string, 0, len(scan.Devices))
	for _, d := range scan.Devices {
		if d.Name != "" {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

// ParseSmart builds the device object for name from a smartctl -i -j
// document. A malformed document yields an object at its sentinel defaults
// together with the parse error.
func ParseSmart(data []byte, name, letter string, attrs Attributes) (*device.StorageObject, error) {
	obj := device.New(name, device.KindDevice)
	obj.MarkUnsupported(device.FieldFlags, device.FieldID)
	if attrs == nil {
		attrs = Attributes{}
	}
	obj.Partitioning = attrs.Partitioning(name)
	obj.FileSystem = attrs.FileSystem(name)
	obj.UUID = attrs.UUID(name)

	var info smartInfo
	if err := json.Unmarshal(data, &info); err != nil {
		obj.Description = describeLetter(letter, "")
		return obj, fmt.Errorf("failed to parse smartctl output: %w", err)
	}

	obj.Vendor, obj.Product = splitModel(info.ModelName)

	switch {
	case device.IsOptical(name), info.UserCapacity == nil:
		obj.SetCapacityNA()
	default:
		obj.SetCapacity(info.UserCapacity.Bytes.String())
	}

	obj.Description = describeLetter(letter, info.Device.Protocol)
	return obj, nil
}

// driveLetter extracts the Windows name from `cygpath -w` output; only
// device namespace paths (\\.\X) count.
func driveLetter(out []byte) string {
	s := strings.TrimSpace(string(out))
	if !strings.Contains(s, `\\.\`) {
		return ""
	}
	return strings.ReplaceAll(s, `\\.\`, "")
}
