package topology

import (
	"context"

	"github.com/sigreer/disktopo/internal/collector"
	"github.com/sigreer/disktopo/internal/topology/sources"
)

// BlockSize returns the block size of the named device using the platform's
// tool.
func BlockSize(ctx context.Context, run collector.Runner, p Platform, name string) (int, error) {
	switch p {
	case PlatformDarwin:
		out, err := run.Run(ctx, "diskutil", "info", "-plist", name)
		if err != nil {
			return 0, err
		}
		return sources.ParseDiskutilBlockSize(out)
	case PlatformCygwin:
		// warning bits in the exit status still come with a full document
		out, err := run.Run(ctx, "smartctl", "-i", "-j", name)
		if err != nil && len(out) == 0 {
			return 0, err
		}
		return sources.ParseSmartBlockSize(out)
	default:
		out, err := run.Run(ctx, "blockdev", "--getpbsz", name)
		if err != nil {
			return 0, err
		}
		return sources.ParseBlockdevSize(out)
	}
}
