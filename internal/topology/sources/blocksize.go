package sources

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ErrNoBlockSize is returned when a tool's output carries no usable block size
var ErrNoBlockSize = errors.New("no block size in output")

// ParseBlockdevSize parses `blockdev --getpbsz` output.
func ParseBlockdevSize(out []byte) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil || n <= 0 {
		return 0, ErrNoBlockSize
	}
	return n, nil
}

// ParseSmartBlockSize reads logical_block_size from `smartctl -i -j` output.
func ParseSmartBlockSize(out []byte) (int, error) {
	var info smartInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return 0, ErrNoBlockSize
	}
	n, err := strconv.Atoi(info.LogicalBlockSize.String())
	if err != nil || n <= 0 {
		return 0, ErrNoBlockSize
	}
	return n, nil
}
