package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/sigreer/disktopo/internal/collector"
	"github.com/sigreer/disktopo/internal/device"
)

// sectorSize is the number of bytes read as the boot record
const sectorSize = 512

// minStringLen matches the default of strings(1)
const minStringLen = 4

// BootRecords reads first sectors through dd. A nil or disabled reader
// leaves objects at the unknown sentinel.
type BootRecords struct {
	Run     collector.Runner
	Enabled bool
}

// ReadBootRecord captures the first sector of dev.
func ReadBootRecord(ctx context.Context, run collector.Runner, dev string) ([]byte, error) {
	out, err := run.Run(ctx, "dd", "if="+dev, fmt.Sprintf("bs=%d", sectorSize), "count=1", "status=none")
	if err != nil {
		return nil, err
	}
	if len(out) > sectorSize {
		out = out[:sectorSize]
	}
	return out, nil
}

// ExtractStrings returns the printable ASCII runs of at least four bytes,
// with spaces removed.
func ExtractStrings(b []byte) []string {
	var out []string
	var cur strings.Builder
	runLen := 0

	emit := func() {
		if runLen >= minStringLen {
			if s := strings.ReplaceAll(cur.String(), " ", ""); s != "" {
				out = append(out, s)
			}
		}
		cur.Reset()
		runLen = 0
	}

	for _, c := range b {
		if c == '\t' || (c >= 0x20 && c < 0x7f) {
			cur.WriteByte(c)
			runLen++
			continue
		}
		emit()
	}
	emit()

	if out == nil {
		out = []string{}
	}
	return out
}

// Apply fills the boot record of obj. Optical media get the N/A pair;
// read failures leave the unknown pair and are reported.
func (b *BootRecords) Apply(ctx context.Context, obj *device.StorageObject, source string, rep *device.Report) {
	if device.IsOptical(obj.Name) {
		obj.SetBootRecordNA()
		return
	}
	if b == nil || !b.Enabled || b.Run == nil {
		return
	}

	raw, err := ReadBootRecord(ctx, b.Run, obj.Name)
	if err != nil {
		rep.Add(source, obj.Name, fmt.Errorf("failed to read boot record: %w", err))
		return
	}
	obj.BootRecord = raw
	obj.BootRecordStrings = ExtractStrings(raw)
}
