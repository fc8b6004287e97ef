package vector

import (
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"
)

// MemoryDriver is the name of the in-process driver.
const MemoryDriver = "Memory"

// memoryStore holds the layers written by Memory sessions, keyed by path.
// A dataset lives until DropMemoryDataset or process exit.
type memoryStore struct {
	mu       sync.Mutex
	datasets map[string]*memoryDataset
}

type memoryDataset struct {
	name     string
	schema   *Schema
	crs      string
	crsWKT   string
	features []*geojson.Feature
}

var memStore = &memoryStore{datasets: map[string]*memoryDataset{}}

func (s *memoryStore) get(path string) (*memoryDataset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[path]
	return ds, ok
}

func (s *memoryStore) put(path string, ds *memoryDataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[path] = ds
}

func (s *memoryStore) drop(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.datasets[path]
	delete(s.datasets, path)
	return ok
}

// DropMemoryDataset discards the Memory dataset at path.
func DropMemoryDataset(path string) error {
	if !memStore.drop(path) {
		return fmt.Errorf("%w: no such memory dataset: %s", ErrDriver, path)
	}
	return nil
}

type memoryDriver struct{}

func (memoryDriver) Name() string { return MemoryDriver }

func (memoryDriver) Probe(path string) bool {
	_, ok := memStore.get(path)
	return ok
}

func (memoryDriver) Start(h *Handle) (Session, error) {
	if h.Mode == ModeWrite {
		layer := NewMemLayer(MemoryDriver, h.Layer, h.Schema, h.CRS, h.CRSWKT)
		sess := &memorySession{MemLayer: layer, path: h.Path, mode: h.Mode}
		// A created dataset is visible to readers even before the first sync.
		if err := sess.Sync(); err != nil {
			return nil, err
		}
		return sess, nil
	}

	ds, ok := memStore.get(h.Path)
	if !ok {
		return nil, fmt.Errorf("%w: no such memory dataset: %s", ErrDriver, h.Path)
	}
	if h.Layer != "" && h.Layer != ds.name {
		return nil, fmt.Errorf("%w: no such layer: %q", ErrDriver, h.Layer)
	}
	if h.Layer == "" && h.LayerIndex != 0 {
		return nil, fmt.Errorf("%w: no such layer index: %d", ErrDriver, h.LayerIndex)
	}
	layer := NewMemLayer(MemoryDriver, ds.name, ds.schema, ds.crs, ds.crsWKT)
	for _, f := range ds.features {
		layer.Load(f)
	}
	return &memorySession{MemLayer: layer, path: h.Path, mode: h.Mode}, nil
}

type memorySession struct {
	*MemLayer
	path string
	mode Mode
}

func (s *memorySession) Sync() error {
	if !s.mode.Writable() {
		return nil
	}
	features := make([]*geojson.Feature, len(s.Features()))
	copy(features, s.Features())
	memStore.put(s.path, &memoryDataset{
		name:     s.LayerName(),
		schema:   s.SchemaRef().Clone(),
		crs:      s.crs,
		crsWKT:   s.crsWKT,
		features: features,
	})
	s.MarkClean()
	return nil
}

func (s *memorySession) Stop() error {
	return s.Sync()
}

func init() {
	Register(memoryDriver{})
}
