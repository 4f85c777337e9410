package policy

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// zonePath pairs a canonical, symlink-resolved zone root with its Zone.
type zonePath struct {
	path string
	zone Zone
}

// zoneResolver maps filesystem paths to Zones. Paths are pre-sorted
// longest-first so a more specific zone root (e.g. /app/subdir) matches
// before a shorter parent (e.g. /app).
type zoneResolver struct {
	mu    sync.RWMutex
	zones []zonePath
}

func newZoneResolver() *zoneResolver {
	return &zoneResolver{}
}

// setZones replaces the configured zone roots. Called at load and on every
// successful hot reload.
func (r *zoneResolver) setZones(sandbox, identity, system string) error {
	var zones []zonePath
	for path, zone := range map[string]Zone{
		sandbox:  ZoneSandbox,
		identity: ZoneIdentity,
		system:   ZoneSystem,
	} {
		if strings.TrimSpace(path) == "" {
			continue
		}
		real, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if resolved, err := filepath.EvalSymlinks(real); err == nil {
			real = resolved
		}
		zones = append(zones, zonePath{path: real, zone: zone})
	}
	sort.Slice(zones, func(i, j int) bool {
		return len(zones[i].path) > len(zones[j].path)
	})

	r.mu.Lock()
	r.zones = zones
	r.mu.Unlock()
	return nil
}

// resolve maps path to its Zone, resolving symlinks first so a symlink
// inside an allowed zone that points outside every zone cannot be used to
// escape the sandbox. A path that exists but cannot be resolved (dangling
// symlink, permission error) is treated as ZoneUnknown rather than
// propagated — the caller denies unknown zones anyway.
func (r *zoneResolver) resolve(path string) Zone {
	real, err := filepath.Abs(path)
	if err != nil {
		return ZoneUnknown
	}
	if resolved, err := filepath.EvalSymlinks(real); err == nil {
		real = resolved
	} else if _, lerr := os.Lstat(real); !os.IsNotExist(lerr) {
		return ZoneUnknown
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, zp := range r.zones {
		if real == zp.path || strings.HasPrefix(real, zp.path+string(filepath.Separator)) {
			return zp.zone
		}
	}
	return ZoneUnknown
}
