package sources

import (
	"context"
	"os"

	"github.com/sigreer/disktopo/internal/collector"
	"github.com/sigreer/disktopo/internal/device"
)

// LinuxAux holds the captures shared by the linux sources
type LinuxAux struct {
	// Attributes from `blkid -o export`
	Attributes Attributes
	// ByID is the `ls -l /dev/disk/by-id/` listing
	ByID []byte
	// Boot reads first sectors; nil leaves the unknown sentinel
	Boot *BootRecords
	// PathExists filters logical volume aliases; nil accepts every alias
	PathExists func(string) bool
}

// Linux captures the auxiliary data once and hands it to every linux
// source in the run.
type Linux struct {
	BootRecords bool
	// Offline accepts every logical volume alias instead of probing /dev
	Offline bool

	aux *LinuxAux
}

// Aux returns the shared captures, running the tools on first use. Failures
// are reported and leave the corresponding capture empty.
func (l *Linux) Aux(ctx context.Context, run collector.Runner, rep *device.Report) *LinuxAux {
	if l.aux != nil {
		return l.aux
	}

	aux := &LinuxAux{
		Attributes: Attributes{},
		Boot:       &BootRecords{Run: run, Enabled: l.BootRecords},
	}
	if !l.Offline {
		aux.PathExists = pathExists
	}

	if out, err := run.Run(ctx, "blkid", "-o", "export"); err != nil {
		rep.Add("blkid", "", err)
	} else {
		aux.Attributes = ParseAttributes(out)
	}

	if out, err := run.Run(ctx, "ls", "-l", "/dev/disk/by-id/"); err != nil {
		rep.Add("by-id", "", err)
	} else {
		aux.ByID = out
	}

	l.aux = aux
	return aux
}

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
