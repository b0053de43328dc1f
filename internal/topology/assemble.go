// Package topology runs the platform sources and assembles their output
// into one identity-keyed map of storage objects.
package topology

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sigreer/disktopo/internal/collector"
	"github.com/sigreer/disktopo/internal/device"
	"github.com/sigreer/disktopo/internal/topology/sources"
)

// Source contributes storage objects to a topology
type Source interface {
	Name() string
	Collect(ctx context.Context, run collector.Runner, topo device.Topology, rep *device.Report) error
}

// Options controls source selection and behaviour
type Options struct {
	Platform    Platform
	BootRecords bool
	// Offline keeps every logical volume alias instead of checking /dev,
	// for replayed captures from another host
	Offline bool
}

// Strategy returns the ordered sources for a platform. Later sources depend
// on names discovered by earlier ones.
func Strategy(opts Options) []Source {
	switch opts.Platform {
	case PlatformDarwin:
		return []Source{&sources.DiskutilSource{}}
	case PlatformCygwin:
		return []Source{&sources.SmartSource{BootRecords: opts.BootRecords}}
	default:
		linux := &sources.Linux{BootRecords: opts.BootRecords, Offline: opts.Offline}
		return []Source{
			&sources.LshwSource{Linux: linux},
			&sources.LsblkSource{Linux: linux},
			&sources.LVMSource{Linux: linux},
		}
	}
}

// Assembler runs sources in order against one runner
type Assembler struct {
	Runner  collector.Runner
	Sources []Source
}

// NewAssembler creates an assembler with the platform strategy from opts
func NewAssembler(run collector.Runner, opts Options) *Assembler {
	return &Assembler{Runner: run, Sources: Strategy(opts)}
}

// Aggregate runs every source and returns the linked topology with the
// non-fatal errors collected along the way. It fails only when no object
// was assembled.
func (a *Assembler) Aggregate(ctx context.Context) (device.Topology, []device.NonFatalError, error) {
	topo := device.Topology{}
	rep := &device.Report{}

	for _, src := range a.Sources {
		start := time.Now()
		before := len(topo)
		if err := src.Collect(ctx, a.Runner, topo, rep); err != nil {
			rep.Add(src.Name(), "", fmt.Errorf("source failed: %w", err))
		}
		slog.Debug("source collected", "source", src.Name(), "added", len(topo)-before, "took", time.Since(start))
	}

	topo.Purge()
	topo.Link()
	topo.Validate(rep)

	if len(topo) == 0 {
		return nil, rep.Errors, ErrNoStorageObjects
	}
	return topo, rep.Errors, nil
}

// Aggregate builds the topology for opts using run
func Aggregate(ctx context.Context, run collector.Runner, opts Options) (device.Topology, []device.NonFatalError, error) {
	return NewAssembler(run, opts).Aggregate(ctx)
}
