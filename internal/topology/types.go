package topology

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/sigreer/disktopo/internal/device"
)

var (
	// ErrNoStorageObjects is returned when a run assembles nothing
	ErrNoStorageObjects = errors.New("no storage objects found")

	// ErrNotFound is returned when a query doesn't match any object
	ErrNotFound = errors.New("storage object not found")
)

// Platform selects the set of sources used for a run
type Platform string

const (
	PlatformLinux  Platform = "linux"
	PlatformDarwin Platform = "darwin"
	PlatformCygwin Platform = "cygwin"
)

// DetectPlatform maps the running OS to a platform
func DetectPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformDarwin
	case "windows":
		return PlatformCygwin
	default:
		return PlatformLinux
	}
}

// ParsePlatform accepts a configured platform name; "" and "auto" detect it.
func ParsePlatform(s string) (Platform, error) {
	switch s {
	case "", "auto":
		return DetectPlatform(), nil
	case "linux":
		return PlatformLinux, nil
	case "darwin", "macos":
		return PlatformDarwin, nil
	case "cygwin", "windows":
		return PlatformCygwin, nil
	default:
		return "", fmt.Errorf("unsupported platform: %s (supported: auto, linux, darwin, cygwin)", s)
	}
}

// IdentifierType describes what a lookup query matched
type IdentifierType string

const (
	IDName       IdentifierType = "name"
	IDKernelName IdentifierType = "kernel_name"
	IDAlias      IdentifierType = "alias"
	IDUUID       IdentifierType = "uuid"
	IDPersistent IdentifierType = "persistent_id"
	IDByID       IdentifierType = "by_id"
	IDSymlink    IdentifierType = "symlink"
	IDUnknown    IdentifierType = "unknown"
)

// LookupResult contains the matched object and metadata about the match
type LookupResult struct {
	Query     string                `json:"query" yaml:"query"`
	MatchedAs IdentifierType        `json:"matched_as" yaml:"matched_as"`
	Object    *device.StorageObject `json:"object" yaml:"object"`
}

// Result is the outcome of one aggregation run
type Result struct {
	Platform Platform        `json:"platform" yaml:"platform"`
	Objects  device.Topology `json:"objects" yaml:"objects"`
	Errors   []string        `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// NewResult bundles a topology with its non-fatal errors for output
func NewResult(p Platform, topo device.Topology, errs []device.NonFatalError) *Result {
	r := &Result{Platform: p, Objects: topo}
	for _, e := range errs {
		r.Errors = append(r.Errors, e.Error())
	}
	return r
}
