package sources

import (
	"bufio"
	"bytes"
	"path"
	"strings"

	"github.com/sigreer/disktopo/internal/device"
)

// Attributes holds blkid attribute records keyed by device path. Only the
// first record seen for a device is kept.
type Attributes map[string]map[string]string

// ParseAttributes reads blkid output in any of its three layouts:
//
//	export:  DEVNAME=/dev/sda1 / UUID=... / TYPE=... groups split by blank lines
//	default: /dev/sda1: UUID="..." TYPE="vfat" PARTUUID="..."
//	list:    /dev/sda1  vfat  EFI  /boot/efi  8243-0631
func ParseAttributes(data []byte) Attributes {
	attrs := make(Attributes)

	var dev string
	var group map[string]string
	flush := func() {
		if dev != "" && group != nil {
			attrs.add(dev, group)
		}
		dev, group = "", nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}

		// Default layout: one device per line.
		if strings.HasPrefix(line, "/") {
			if name, rest, ok := strings.Cut(line, ": "); ok && strings.Contains(rest, "=") {
				flush()
				attrs.add(name, splitPairs(rest))
				continue
			}
			if !strings.Contains(line, "=") {
				flush()
				attrs.addListLine(line)
				continue
			}
		}

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if key == "DEVNAME" {
			flush()
			dev = val
			group = map[string]string{}
			continue
		}
		if group == nil {
			group = map[string]string{}
		}
		group[key] = unquote(val)
	}
	flush()

	return attrs
}

func (a Attributes) add(dev string, kv map[string]string) {
	if _, ok := a[dev]; ok {
		return
	}
	a[dev] = kv
}

// addListLine handles `blkid -o list`, where the UUID is the last column
// and an unmounted filesystem without a UUID ends in "(not mounted)".
func (a Attributes) addListLine(line string) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return
	}
	kv := map[string]string{"TYPE": fields[1]}
	if len(fields) > 2 {
		kv["UUID"] = fields[len(fields)-1]
	}
	a.add(fields[0], kv)
}

// Lookup returns the value of key for dev, or device.Unknown.
func (a Attributes) Lookup(dev, key string) string {
	kv, ok := a[dev]
	if !ok {
		return device.Unknown
	}
	v, ok := kv[key]
	if !ok || v == "" {
		return device.Unknown
	}
	return v
}

// UUID returns the filesystem UUID of dev.
func (a Attributes) UUID(dev string) string {
	v := a.Lookup(dev, "UUID")
	if v == "(not mounted)" || strings.HasSuffix(v, "mounted)") {
		return device.Unknown
	}
	return v
}

// FileSystem returns the filesystem type of dev, using vfat for FAT.
func (a Attributes) FileSystem(dev string) string {
	return normalizeFileSystem(a.Lookup(dev, "TYPE"))
}

// Partitioning returns mbr or gpt from the partition table type of dev.
func (a Attributes) Partitioning(dev string) string {
	return normalizeTableType(a.Lookup(dev, "PTTYPE"))
}

func normalizeFileSystem(fs string) string {
	if fs == "fat" {
		return "vfat"
	}
	return fs
}

func normalizeTableType(t string) string {
	switch t {
	case "dos":
		return "mbr"
	case "gpt":
		return "gpt"
	default:
		return device.Unknown
	}
}

// splitPairs splits KEY="value" KEY2="value two" into a map, honouring
// quotes and backslash escapes.
func splitPairs(s string) map[string]string {
	kv := make(map[string]string)
	for len(s) > 0 {
		s = strings.TrimLeft(s, " \t")
		eq := strings.IndexByte(s, '=')
		if eq <= 0 {
			break
		}
		key := s[:eq]
		s = s[eq+1:]

		var val strings.Builder
		if strings.HasPrefix(s, `"`) {
			s = s[1:]
			i := 0
			for ; i < len(s); i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
					val.WriteByte(s[i])
					continue
				}
				if s[i] == '"' {
					break
				}
				val.WriteByte(s[i])
			}
			if i < len(s) {
				i++
			}
			s = s[i:]
		} else {
			end := strings.IndexAny(s, " \t")
			if end < 0 {
				end = len(s)
			}
			val.WriteString(s[:end])
			s = s[end:]
		}
		kv[key] = val.String()
	}
	return kv
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// PersistentID finds the by-id symlink name pointing at dev in an
// `ls -l /dev/disk/by-id/` listing, or device.Unknown.
func PersistentID(listing []byte, dev string) string {
	target := "../../" + path.Base(dev)

	scanner := bufio.NewScanner(bytes.NewReader(listing))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		if fields[len(fields)-1] == target {
			return fields[len(fields)-3]
		}
	}
	return device.Unknown
}
