package shapefile

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	vector "github.com/tingold/orb-vector"
)

func init() {
	vector.Register(Driver{})
}

// Driver opens shapefile datasets.
type Driver struct{}

func (Driver) Name() string { return DriverName }

// Probe matches the .shp extension or the file code.
func (Driver) Probe(path string) bool {
	if strings.EqualFold(filepath.Ext(path), extSHP) {
		return true
	}
	return bytes.HasPrefix(vector.ReadHeader(path, len(magic)), magic)
}

func (Driver) Start(h *vector.Handle) (vector.Session, error) {
	log := h.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	tempDir := ""
	if h.Env != nil {
		tempDir = h.Env.TempDir()
	}

	if h.Mode == vector.ModeWrite {
		if _, err := shapeType(h.Schema.Geometry); err != nil {
			return nil, fmt.Errorf("%w: %w", vector.ErrSchema, err)
		}
		for _, p := range h.Schema.Properties {
			if _, err := dbfField(p); err != nil {
				return nil, fmt.Errorf("%w: %w", vector.ErrSchema, err)
			}
			if len(p.Name) > maxFieldName {
				log.WithField("property", p.Name).Warn("field name truncated to 10 characters")
			}
		}
		enc := h.Encoding
		if enc == "" {
			enc = "utf-8"
		}
		_, label, err := lookupEncoding(enc)
		if err != nil {
			return nil, err
		}
		layer := vector.NewMemLayer(DriverName, h.Layer, h.Schema, h.CRS, h.CRSWKT)
		layer.SetEncoding(label)
		return &session{MemLayer: layer, path: h.Path, mode: h.Mode, create: true, tempDir: tempDir, log: log}, nil
	}

	name := vector.DefaultLayerName(h.Path)
	if h.LayerIndex != 0 {
		return nil, fmt.Errorf("%w: no such layer index: %d", vector.ErrDriver, h.LayerIndex)
	}
	if h.Layer != "" && h.Layer != name {
		return nil, fmt.Errorf("%w: no such layer: %q", vector.ErrDriver, h.Layer)
	}

	l, err := Read(h.Path, h.Encoding)
	if err != nil {
		return nil, err
	}
	layer := vector.NewMemLayer(DriverName, name, l.Schema, "", l.WKT)
	layer.SetEncoding(l.Encoding)
	for _, f := range l.Features {
		layer.Load(f)
	}
	log.WithField("features", len(l.Features)).Debug("loaded shapefile layer")
	return &session{MemLayer: layer, path: h.Path, mode: h.Mode, tempDir: tempDir, log: log}, nil
}

type session struct {
	*vector.MemLayer
	path    string
	mode    vector.Mode
	create  bool
	tempDir string
	log     logrus.FieldLogger
}

// WriteRecords rejects records without geometry before staging them.
func (s *session) WriteRecords(recs []*geojson.Feature) error {
	for _, rec := range recs {
		if rec != nil && rec.Geometry == nil {
			return fmt.Errorf("%w: %w", vector.ErrSchema, ErrNullGeometry)
		}
	}
	return s.MemLayer.WriteRecords(recs)
}

func (s *session) Sync() error {
	if !s.mode.Writable() || (!s.Dirty() && !s.create) {
		return nil
	}
	wkt, _ := s.CRSWKT()
	if err := Write(s.path, s.tempDir, s.SchemaRef(), s.Features(), s.FileEncoding(), wkt); err != nil {
		return err
	}
	s.create = false
	s.MarkClean()
	s.log.WithField("features", len(s.Features())).Debug("wrote shapefile layer")
	return nil
}

func (s *session) Stop() error {
	return s.Sync()
}
