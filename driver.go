package vector

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
)

// Driver opens sessions against one dataset format.
type Driver interface {
	// Name is the driver's canonical name, e.g. "GeoJSON".
	Name() string

	// Probe reports whether the dataset at path looks like this driver's format.
	Probe(path string) bool

	// Start opens a session for h. Read mode requires the dataset to exist;
	// write mode creates or truncates it.
	Start(h *Handle) (Session, error)
}

// LayerLister is implemented by drivers whose datasets may hold several layers.
type LayerLister interface {
	Layers(path string) ([]string, error)
}

// Session is an open dataset and layer pair. Metadata methods are only
// valid until Stop.
type Session interface {
	Driver() string
	Schema() (*Schema, error)
	CRS() (string, error)
	CRSWKT() (string, error)
	FileEncoding() string

	// Len returns the number of features, or -1 if the layer cannot count.
	Len() (int, error)
	Extent() (orb.Bound, error)

	HasFeature(fid int64) (bool, error)
	Get(fid int64) (*geojson.Feature, error)
	Iterate(q Query) (Cursor, error)

	WriteRecords(recs []*geojson.Feature) error
	Sync() error
	Stop() error
}

// Cursor is a forward-only sequence produced by Session.Iterate.
type Cursor interface {
	Next() bool
	FID() int64
	Feature() *geojson.Feature
	Err() error
	Close() error
}

// Handle carries everything a driver needs to start a session.
type Handle struct {
	Path       string // resolved, possibly virtual
	Mode       Mode
	Driver     string
	Layer      string
	LayerIndex int
	Schema     *Schema
	CRS        string
	CRSWKT     string
	Encoding   string
	Options    map[string]string
	Env        *Env
	Log        logrus.FieldLogger
}

// Option returns a layer option, falling back to the runtime context.
func (h *Handle) Option(key string) string {
	if v, ok := h.Options[key]; ok {
		return v
	}
	if h.Env != nil {
		return h.Env.Option(key)
	}
	return ""
}

// DefaultLayerName is the layer name of a single-layer dataset at path.
func DefaultLayerName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available by name. It panics if Register is called
// twice with the same name or if d is nil.
func Register(d Driver) {
	if d == nil {
		panic("vector: Register driver is nil")
	}
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[d.Name()]; dup {
		panic("vector: Register called twice for driver " + d.Name())
	}
	drivers[d.Name()] = d
}

// Drivers returns the names of the registered drivers, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupDriver(name string) (Driver, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	return d, ok
}

func unregisterDriver(name string) {
	driversMu.Lock()
	defer driversMu.Unlock()
	delete(drivers, name)
}

// resolveDriver picks the driver for an existing dataset. An explicitly
// requested driver is used as-is; otherwise enabled drivers are probed in
// name order.
func resolveDriver(h *Handle, enabled []string) (Driver, error) {
	if h.Driver != "" {
		d, ok := lookupDriver(canonicalDriver(h.Driver))
		if !ok {
			return nil, fmt.Errorf("%w: driver not available: %q", ErrDriver, h.Driver)
		}
		return d, nil
	}

	names := enabled
	if len(names) == 0 {
		names = Drivers()
	}
	for _, name := range names {
		d, ok := lookupDriver(name)
		if !ok {
			continue
		}
		if d.Probe(h.Path) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: failed to open dataset (mode=%s): %s", ErrDriver, h.Mode, h.Path)
}

// ListLayers returns the layer names of the dataset at path.
func ListLayers(path string, opts *Options) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: invalid path: %q", ErrInvalidArgument, path)
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.VSI != "" && !ValidVSI(opts.VSI) {
		return nil, fmt.Errorf("%w: invalid vsi: %q", ErrInvalidArgument, opts.VSI)
	}

	h := &Handle{Path: resolveArchiveRoot(VSIPath(path, opts.VSI, opts.Archive)), Mode: ModeRead, Driver: opts.Driver}
	d, err := resolveDriver(h, opts.EnabledDrivers)
	if err != nil {
		return nil, err
	}
	if lister, ok := d.(LayerLister); ok {
		return lister.Layers(h.Path)
	}
	return []string{DefaultLayerName(h.Path)}, nil
}
