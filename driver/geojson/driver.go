// Package geojson implements the "GeoJSON" vector driver on top of
// github.com/paulmach/orb/geojson.
//
// A dataset holds a single layer. Numeric properties are typed on read:
// integral numbers become "int" columns of int64 values and all other
// numbers "float" columns of float64 values.
package geojson

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	vector "github.com/tingold/orb-vector"
)

// DriverName is the name the driver registers under.
const DriverName = "GeoJSON"

// ErrInvalidData is returned for documents that are not valid GeoJSON.
var ErrInvalidData = errors.New("geojson: invalid data")

func init() {
	vector.Register(Driver{})
}

// Driver opens GeoJSON datasets.
type Driver struct{}

func (Driver) Name() string { return DriverName }

// Probe matches the .geojson and .json extensions, or a document that
// starts like a GeoJSON object.
func (Driver) Probe(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return true
	}
	head := bytes.TrimLeft(vector.ReadHeader(path, 512), " \t\r\n\ufeff")
	if !bytes.HasPrefix(head, []byte("{")) {
		return false
	}
	return bytes.Contains(head, []byte(`"type"`)) &&
		(bytes.Contains(head, []byte(`"Feature`)) || bytes.Contains(head, []byte(`"features"`)))
}

func (Driver) Start(h *vector.Handle) (vector.Session, error) {
	log := h.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if h.Mode == vector.ModeWrite {
		crs, wkt := h.CRS, h.CRSWKT
		if crs == "" && wkt == "" {
			crs = vector.FromEPSG(4326)
		}
		layer := vector.NewMemLayer(DriverName, h.Layer, h.Schema, crs, wkt)
		return &session{MemLayer: layer, path: h.Path, mode: h.Mode, create: true, log: log}, nil
	}

	if h.LayerIndex != 0 {
		return nil, fmt.Errorf("%w: no such layer index: %d", vector.ErrDriver, h.LayerIndex)
	}
	data, err := vector.ReadFile(h.Path)
	if err != nil {
		return nil, err
	}
	doc, err := decode(data)
	if err != nil {
		return nil, err
	}
	name := doc.name
	if name == "" {
		name = vector.DefaultLayerName(h.Path)
	}
	if h.Layer != "" && h.Layer != name && h.Layer != "OgrGeoJSON" {
		return nil, fmt.Errorf("%w: no such layer: %q", vector.ErrDriver, h.Layer)
	}

	layer := vector.NewMemLayer(DriverName, name, doc.schema, doc.crs, "")
	for _, f := range doc.features {
		layer.Load(f)
	}
	log.WithField("features", len(doc.features)).Debug("loaded geojson layer")
	return &session{MemLayer: layer, path: h.Path, mode: h.Mode, log: log}, nil
}

type session struct {
	*vector.MemLayer
	path   string
	mode   vector.Mode
	create bool
	log    logrus.FieldLogger
}

func (s *session) Sync() error {
	if !s.mode.Writable() || (!s.Dirty() && !s.create) {
		return nil
	}
	crs, _ := s.CRS()
	data, err := encode(s.LayerName(), crs, s.SchemaRef(), s.Features())
	if err != nil {
		return err
	}
	if err := vector.WriteFile(s.path, data); err != nil {
		return err
	}
	s.create = false
	s.MarkClean()
	s.log.WithField("features", len(s.Features())).Debug("wrote geojson layer")
	return nil
}

func (s *session) Stop() error {
	return s.Sync()
}
