package sources

import (
	"strings"

	"github.com/sigreer/disktopo/internal/device"
)

// driveFacts are the optional facts a drive description is built from.
// A nil pointer or empty string means the source did not report it.
type driveFacts struct {
	Internal   *bool
	SolidState *bool
	Removable  *bool
	Protocol   string
}

// describeDrive builds e.g. "Internal Solid State Drive (Connected through SATA)".
func describeDrive(f driveFacts) string {
	if f.Internal == nil && f.SolidState == nil && f.Removable == nil && f.Protocol == "" {
		return device.NotApplicable
	}

	var b strings.Builder
	switch {
	case f.Internal == nil:
		b.WriteString("Unknown ")
	case *f.Internal:
		b.WriteString("Internal ")
	default:
		b.WriteString("External ")
	}

	switch {
	case f.SolidState != nil && *f.SolidState:
		b.WriteString("Solid State Drive ")
	case f.Removable != nil && *f.Removable:
		b.WriteString("Removable Drive ")
	case f.SolidState != nil || f.Removable != nil:
		b.WriteString("Hard Disk Drive ")
	default:
		b.WriteString("Drive ")
	}

	if f.Protocol != "" {
		b.WriteString("(Connected through " + f.Protocol + ")")
	}
	return strings.TrimSpace(b.String())
}

// describeLetter builds e.g. "Drive C:, (Connected through ATA)" from a
// Windows drive letter and a bus protocol.
func describeLetter(letter, protocol string) string {
	switch {
	case protocol != "":
		if letter == "" {
			letter = "<unknown>"
		}
		return "Drive " + letter + ", (Connected through " + protocol + ")"
	case letter != "":
		return "Drive " + letter
	default:
		return device.NotApplicable
	}
}

// splitModel splits a model string into vendor and product on the first
// space.
func splitModel(model string) (string, string) {
	fields := strings.Fields(model)
	switch len(fields) {
	case 0:
		return device.Unknown, device.Unknown
	case 1:
		return fields[0], device.Unknown
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}

// protocolName maps lsblk transport names to the names the other sources
// report.
func protocolName(tran string) string {
	switch strings.ToLower(tran) {
	case "":
		return ""
	case "sata", "ata":
		return "SATA"
	case "nvme":
		return "NVMe"
	case "usb":
		return "USB"
	case "sas":
		return "SAS"
	case "iscsi":
		return "iSCSI"
	case "fc":
		return "Fibre Channel"
	default:
		return strings.ToUpper(tran)
	}
}
