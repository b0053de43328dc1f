// Package device holds the storage object model shared by every parser
// and the assembler.
package device

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDanglingHost is wrapped when an object names a host that is not in the
// topology.
var ErrDanglingHost = errors.New("host device not found")

// ErrHostNotDevice is wrapped when an object's host is a partition or
// volume rather than a whole device.
var ErrHostNotDevice = errors.New("host is not a device")

// Topology maps an object's canonical name to the object.
type Topology map[string]*StorageObject

// NonFatalError records a problem that degraded the result without failing
// the run.
type NonFatalError struct {
	Source string
	Object string
	Err    error
}

func (e NonFatalError) Error() string {
	if e.Object != "" {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Object, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e NonFatalError) Unwrap() error {
	return e.Err
}

// Report accumulates non-fatal errors for one aggregation run.
type Report struct {
	Errors []NonFatalError
}

// Add appends an error. A nil err is ignored.
func (r *Report) Add(source, object string, err error) {
	if r == nil || err == nil {
		return
	}
	r.Errors = append(r.Errors, NonFatalError{Source: source, Object: object, Err: err})
}

// Names returns the object names in sorted order.
func (t Topology) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Devices returns the top-level devices in sorted order.
func (t Topology) Devices() []*StorageObject {
	var out []*StorageObject
	for _, name := range t.Names() {
		if obj := t[name]; obj.Kind == KindDevice {
			out = append(out, obj)
		}
	}
	return out
}

// Purge removes the placeholder entry created when an identity could not be
// determined.
func (t Topology) Purge() {
	delete(t, Unknown)
}

// Link makes every object hosted by a known device appear in that device's
// ChildNames. Existing order is kept; missing children are appended in name
// order.
func (t Topology) Link() {
	for _, name := range t.Names() {
		obj := t[name]
		if obj.Kind == KindDevice {
			continue
		}
		host, ok := t[obj.HostDevice]
		if !ok || host.Kind != KindDevice {
			continue
		}
		host.AddChild(name)
	}
}

// Validate enforces the reference invariants. Objects whose host is missing
// or is not a Device are removed and reported, repeating until no object
// depends on a removed one. Child names that do not point back at their
// parent are dropped.
func (t Topology) Validate(rep *Report) {
	for removed := true; removed; {
		removed = false
		for _, name := range t.Names() {
			obj := t[name]
			if obj.HostDevice == NoHost || obj.HostDevice == Unknown || obj.HostDevice == NotApplicable {
				continue
			}
			host, ok := t[obj.HostDevice]
			switch {
			case !ok:
				rep.Add("topology", name, fmt.Errorf("%w: %s", ErrDanglingHost, obj.HostDevice))
			case host.Kind != KindDevice:
				rep.Add("topology", name, fmt.Errorf("%w: %s is a %s", ErrHostNotDevice, obj.HostDevice, host.Kind))
			default:
				continue
			}
			delete(t, name)
			removed = true
		}
	}

	for _, obj := range t {
		kept := obj.ChildNames[:0]
		for _, child := range obj.ChildNames {
			if c, ok := t[child]; ok && c.HostDevice == obj.Name {
				kept = append(kept, child)
			}
		}
		obj.ChildNames = kept
	}
}
