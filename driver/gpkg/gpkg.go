// Package gpkg implements the "GPKG" GeoPackage vector driver on top of the
// pure Go modernc.org/sqlite database driver.
//
// Each feature table is a layer. Geometries are stored as GeoPackage binary
// blobs: a "GP" header with an XY envelope followed by little-endian WKB.
// Virtual paths are copied to a scratch file under the runtime context's
// temporary directory, since SQLite needs a real file.
package gpkg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	vector "github.com/tingold/orb-vector"
)

// DriverName is the name the driver registers under.
const DriverName = "GPKG"

// Errors returned by the driver.
var (
	ErrInvalidData     = errors.New("gpkg: invalid data")
	ErrUnsupportedType = errors.New("gpkg: unsupported type")
	ErrVersion         = errors.New("gpkg: sqlite 3.8 or newer required")
)

var sqliteMagic = []byte("SQLite format 3\x00")

func init() {
	vector.Register(Driver{})
}

// Driver opens GeoPackage datasets.
type Driver struct{}

func (Driver) Name() string { return DriverName }

// Probe matches the .gpkg extension or the SQLite file header.
func (Driver) Probe(path string) bool {
	if strings.EqualFold(filepath.Ext(path), ".gpkg") {
		return true
	}
	return bytes.HasPrefix(vector.ReadHeader(path, len(sqliteMagic)), sqliteMagic)
}

// Layers lists the feature tables of the dataset at path.
func (Driver) Layers(path string) ([]string, error) {
	f, err := localize(path, "", false)
	if err != nil {
		return nil, err
	}
	defer f.release()

	s, err := openStore(f.local, false)
	if err != nil {
		return nil, versionError(err)
	}
	defer s.Close()
	return s.layers()
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
		for _, p := range h.Schema.Properties {
			if _, err := sqlType(p.Type); err != nil {
				return nil, fmt.Errorf("%w: %w", vector.ErrSchema, err)
			}
		}
		layer := vector.NewMemLayer(DriverName, h.Layer, h.Schema, h.CRS, h.CRSWKT)
		sess := &session{MemLayer: layer, path: h.Path, mode: h.Mode, create: true, tempDir: tempDir, log: log}
		return sess, nil
	}

	f, err := localize(h.Path, tempDir, false)
	if err != nil {
		return nil, err
	}
	defer f.release()

	s, err := openStore(f.local, false)
	if err != nil {
		return nil, versionError(err)
	}
	defer s.Close()

	names, err := s.layers()
	if err != nil {
		return nil, err
	}
	name := h.Layer
	switch {
	case name != "":
		if !slices.Contains(names, name) {
			return nil, fmt.Errorf("%w: no such layer: %q", vector.ErrDriver, name)
		}
	case h.LayerIndex < len(names):
		name = names[h.LayerIndex]
	default:
		return nil, fmt.Errorf("%w: no such layer index: %d", vector.ErrDriver, h.LayerIndex)
	}

	l, err := s.readLayer(name)
	if err != nil {
		return nil, err
	}
	layer := vector.NewMemLayer(DriverName, name, l.schema, l.crs, l.wkt)
	for _, f := range l.features {
		layer.Load(f)
	}
	log.WithField("layer", name).WithField("features", len(l.features)).Debug("loaded geopackage layer")
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

func (s *session) Sync() error {
	if !s.mode.Writable() || (!s.Dirty() && !s.create) {
		return nil
	}

	f, err := localize(s.path, s.tempDir, true)
	if err != nil {
		return err
	}
	defer f.release()

	st, err := openStore(f.local, true)
	if err != nil {
		return versionError(err)
	}
	crs, _ := s.CRS()
	wkt, _ := s.CRSWKT()
	if err := st.writeLayer(s.LayerName(), s.SchemaRef(), crs, wkt, s.Features()); err != nil {
		st.Close()
		return err
	}
	if err := st.Close(); err != nil {
		return err
	}
	if err := f.commit(); err != nil {
		return err
	}

	s.create = false
	s.MarkClean()
	s.log.WithField("features", len(s.Features())).Debug("wrote geopackage layer")
	return nil
}

func (s *session) Stop() error {
	return s.Sync()
}

// localFile is a database file on the OS filesystem standing in for a
// possibly virtual dataset path.
type localFile struct {
	path    string // dataset path
	local   string // file SQLite opens
	scratch bool
}

// localize returns the file SQLite should open for path. OS paths are used
// directly. Virtual paths are copied to a scratch file; with create set a
// missing virtual dataset starts out empty.
func localize(path, tempDir string, create bool) (*localFile, error) {
	if !vector.IsVirtual(path) {
		if !create {
			if _, err := os.Stat(path); err != nil {
				return nil, err
			}
		}
		return &localFile{path: path, local: path}, nil
	}

	data, err := vector.ReadFile(path)
	if err != nil && !(create && !vector.Exists(path)) {
		return nil, err
	}
	tmp, err := os.CreateTemp(tempDir, "gpkg-*.gpkg")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	return &localFile{path: path, local: tmp.Name(), scratch: true}, nil
}

// commit copies a scratch file back to its virtual path.
func (f *localFile) commit() error {
	if !f.scratch {
		return nil
	}
	data, err := os.ReadFile(f.local)
	if err != nil {
		return err
	}
	return vector.WriteFile(f.path, data)
}

func (f *localFile) release() {
	if f.scratch {
		os.Remove(f.local)
	}
}

// versionError reports an unusable SQLite library as a driver error.
func versionError(err error) error {
	if errors.Is(err, ErrVersion) {
		return fmt.Errorf("%w: %w", vector.ErrDriver, err)
	}
	return err
}

var _ vector.LayerLister = Driver{}
