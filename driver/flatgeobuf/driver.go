package flatgeobuf

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

// Driver opens FlatGeobuf datasets.
type Driver struct{}

func (Driver) Name() string { return DriverName }

// Probe matches the .fgb extension or the file signature.
func (Driver) Probe(path string) bool {
	if strings.EqualFold(filepath.Ext(path), ".fgb") {
		return true
	}
	return bytes.HasPrefix(vector.ReadHeader(path, len(magic)), magic)
}

func (Driver) Start(h *vector.Handle) (vector.Session, error) {
	log := h.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if h.Mode == vector.ModeWrite {
		layer := vector.NewMemLayer(DriverName, h.Layer, h.Schema, h.CRS, h.CRSWKT)
		if _, err := schemaColumns(layer.SchemaRef()); err != nil {
			return nil, fmt.Errorf("%w: %w", vector.ErrSchema, err)
		}
		return &session{MemLayer: layer, path: h.Path, mode: h.Mode, create: true, log: log}, nil
	}

	r, err := NewReader(h.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	hdr := r.Header()
	if hdr == nil {
		return nil, fmt.Errorf("%w: missing header", ErrInvalidData)
	}
	name := vector.DefaultLayerName(h.Path)
	if h.LayerIndex != 0 {
		return nil, fmt.Errorf("%w: no such layer index: %d", vector.ErrDriver, h.LayerIndex)
	}
	if h.Layer != "" && h.Layer != name && h.Layer != hdr.Name {
		return nil, fmt.Errorf("%w: no such layer: %q", vector.ErrDriver, h.Layer)
	}

	features, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	crs, wkt := r.CRS()
	layer := vector.NewMemLayer(DriverName, name, r.Schema(), crs, wkt)
	for _, f := range features {
		layer.Load(f)
	}
	log.WithField("features", len(features)).Debug("loaded flatgeobuf layer")
	return &session{MemLayer: layer, path: h.Path, mode: h.Mode, log: log}, nil
}

type session struct {
	*vector.MemLayer
	path   string
	mode   vector.Mode
	create bool
	log    logrus.FieldLogger
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

	crs, _ := s.CRS()
	wkt, _ := s.CRSWKT()
	opts := DefaultOptions()
	opts.Name = s.LayerName()
	opts.CRS = headerCRS(crs, wkt)

	var buf bytes.Buffer
	if err := Write(&buf, s.Features(), s.SchemaRef(), opts); err != nil {
		return err
	}
	if err := vector.WriteFile(s.path, buf.Bytes()); err != nil {
		return err
	}
	s.create = false
	s.MarkClean()
	s.log.WithField("features", len(s.Features())).Debug("wrote flatgeobuf layer")
	return nil
}

func (s *session) Stop() error {
	return s.Sync()
}

// headerCRS builds the header CRS from either form, or nil if neither
// identifies one.
func headerCRS(crs, wkt string) *CRS {
	code, ok := vector.EPSGCode(crs)
	if !ok {
		code, ok = vector.EPSGFromWKT(wkt)
	}
	if !ok && wkt == "" {
		return nil
	}
	return &CRS{Code: code, Description: wkt}
}
