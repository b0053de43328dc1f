package topology

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/sigreer/disktopo/internal/device"
)

// byIDDir is where persistent ID symlinks live
const byIDDir = "/dev/disk/by-id/"

// Index holds a topology with reverse lookup indexes
type Index struct {
	// Primary storage: canonical name -> object
	Objects device.Topology

	// Reverse lookup indexes: identifier value -> canonical name
	ByKernelName map[string]string
	ByAlias      map[string]string
	ByUUID       map[string]string
	ByID         map[string]string
	ByIDPath     map[string]string

	// resolve follows symlinks; filepath.EvalSymlinks unless replaced
	resolve func(string) (string, error)
}

// NewIndex builds the reverse indexes for topo
func NewIndex(topo device.Topology) *Index {
	idx := &Index{
		Objects:      topo,
		ByKernelName: make(map[string]string),
		ByAlias:      make(map[string]string),
		ByUUID:       make(map[string]string),
		ByID:         make(map[string]string),
		ByIDPath:     make(map[string]string),
		resolve:      filepath.EvalSymlinks,
	}

	// sorted so that a value shared by two objects always maps to the same one
	for _, name := range topo.Names() {
		obj := topo[name]

		if strings.HasPrefix(name, "/dev/") {
			setOnce(idx.ByKernelName, path.Base(name), name)
		}
		for _, alias := range obj.Aliases {
			if alias != name {
				setOnce(idx.ByAlias, alias, name)
			}
		}
		if device.Known(obj.UUID) {
			setOnce(idx.ByUUID, obj.UUID, name)
		}
		if device.Known(obj.ID) {
			setOnce(idx.ByID, obj.ID, name)
			setOnce(idx.ByIDPath, byIDDir+obj.ID, name)
		}
	}

	return idx
}

func setOnce(m map[string]string, key, name string) {
	if _, ok := m[key]; !ok {
		m[key] = name
	}
}

// Lookup finds an object by name, alias, UUID or persistent ID
func (idx *Index) Lookup(query string) (*device.StorageObject, IdentifierType, error) {
	query = strings.TrimSpace(query)

	// 1. Canonical name
	if obj, ok := idx.Objects[query]; ok && query != device.Unknown {
		return obj, IDName, nil
	}

	// 2. Reverse indexes in order of specificity
	lookups := []struct {
		index  map[string]string
		idType IdentifierType
	}{
		{idx.ByAlias, IDAlias},
		{idx.ByIDPath, IDByID},
		{idx.ByID, IDPersistent},
		{idx.ByUUID, IDUUID},
		{idx.ByKernelName, IDKernelName},
	}
	for _, lookup := range lookups {
		if name, ok := lookup.index[query]; ok {
			if obj, ok := idx.Objects[name]; ok {
				return obj, lookup.idType, nil
			}
		}
	}

	// 3. Any other symlink that resolves to a known name
	if idx.resolve != nil && strings.HasPrefix(query, "/") {
		if resolved, err := idx.resolve(query); err == nil && resolved != query {
			if obj, _, err := idx.Lookup(resolved); err == nil {
				return obj, IDSymlink, nil
			}
		}
	}

	return nil, IDUnknown, ErrNotFound
}
