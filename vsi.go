package vector

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

// Virtual path prefixes.
const (
	vsiMemPrefix  = "/vsimem/"
	vsiZipPrefix  = "/vsizip/"
	vsiTarPrefix  = "/vsitar/"
	vsiGzipPrefix = "/vsigzip/"
)

var validVSI = map[string]bool{
	"zip":  true,
	"tar":  true,
	"gzip": true,
}

// datasetExts are the member extensions considered when an archive is opened
// without naming a member.
var datasetExts = []string{".shp", ".geojson", ".json", ".fgb", ".gpkg"}

var (
	vfsMu sync.RWMutex
	vfs   = make(map[string][]byte)
)

// ValidVSI reports whether vsi names a supported virtual filesystem.
func ValidVSI(vsi string) bool {
	return validVSI[vsi]
}

// VSIPath converts path into a virtual path for the given scheme. With an
// archive, path names a member inside it.
func VSIPath(path, vsi, archive string) string {
	switch {
	case vsi != "" && archive != "":
		return "/vsi" + vsi + "/" + archive + path
	case vsi != "":
		return "/vsi" + vsi + "/" + path
	default:
		return path
	}
}

// IsVirtual reports whether path is resolved by this package rather than the
// OS filesystem.
func IsVirtual(path string) bool {
	return strings.HasPrefix(path, "/vsi")
}

// BufferToVirtualFile maps buf to a new /vsimem path ending in ext. The
// mapping refers to buf directly: the caller must not modify buf until
// RemoveVirtualFile is called.
func BufferToVirtualFile(buf []byte, ext string) string {
	name := vsiMemPrefix + ulid.Make().String() + ext

	vfsMu.Lock()
	vfs[name] = buf
	n := len(vfs)
	vfsMu.Unlock()

	virtualFiles.Set(float64(n))
	logger().WithField("path", name).WithField("size", len(buf)).Debug("mapped virtual file")
	return name
}

// RemoveVirtualFile releases the mapping at path.
func RemoveVirtualFile(path string) error {
	vfsMu.Lock()
	_, ok := vfs[path]
	delete(vfs, path)
	n := len(vfs)
	vfsMu.Unlock()

	if !ok {
		return fmt.Errorf("%w: no such virtual file: %s", ErrVirtualFile, path)
	}
	virtualFiles.Set(float64(n))
	logger().WithField("path", path).Debug("removed virtual file")
	return nil
}

// ReadFile returns the contents of path, resolving /vsimem, /vsizip, /vsitar
// and /vsigzip paths.
func ReadFile(path string) ([]byte, error) {
	switch {
	case strings.HasPrefix(path, vsiMemPrefix):
		vfsMu.RLock()
		data, ok := vfs[path]
		vfsMu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: no such virtual file: %s", ErrVirtualFile, path)
		}
		return data, nil

	case strings.HasPrefix(path, vsiZipPrefix):
		archive, member := splitArchive(strings.TrimPrefix(path, vsiZipPrefix), ".zip")
		return readZipMember(archive, member)

	case strings.HasPrefix(path, vsiTarPrefix):
		archive, member := splitArchive(strings.TrimPrefix(path, vsiTarPrefix), ".tar")
		return readTarMember(archive, member)

	case strings.HasPrefix(path, vsiGzipPrefix):
		data, err := ReadFile(strings.TrimPrefix(path, vsiGzipPrefix))
		if err != nil {
			return nil, err
		}
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrVirtualFile, path, err)
		}
		defer zr.Close()
		return io.ReadAll(zr)

	default:
		return os.ReadFile(path)
	}
}

// ReadHeader returns up to n leading bytes of path.
func ReadHeader(path string, n int) []byte {
	if !IsVirtual(path) {
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()
		buf := make([]byte, n)
		m, _ := io.ReadFull(f, buf)
		return buf[:m]
	}
	data, err := ReadFile(path)
	if err != nil {
		return nil
	}
	if len(data) > n {
		data = data[:n]
	}
	return data
}

// WriteFile replaces the contents of path. OS files are replaced atomically;
// archive paths are read-only.
func WriteFile(path string, data []byte) error {
	switch {
	case strings.HasPrefix(path, vsiMemPrefix):
		vfsMu.Lock()
		vfs[path] = data
		n := len(vfs)
		vfsMu.Unlock()
		virtualFiles.Set(float64(n))
		return nil

	case IsVirtual(path):
		return fmt.Errorf("%w: read-only virtual path: %s", ErrVirtualFile, path)

	default:
		return atomic.WriteFile(path, bytes.NewReader(data))
	}
}

// Exists reports whether path can be read.
func Exists(path string) bool {
	switch {
	case strings.HasPrefix(path, vsiMemPrefix):
		vfsMu.RLock()
		_, ok := vfs[path]
		vfsMu.RUnlock()
		return ok
	case IsVirtual(path):
		_, err := ReadFile(path)
		return err == nil
	default:
		_, err := os.Stat(path)
		return err == nil
	}
}

// SiblingPath returns path with its extension replaced by ext, preserving
// the case of the original extension's first letter.
func SiblingPath(p, ext string) string {
	old := path.Ext(p)
	base := strings.TrimSuffix(p, old)
	if old != "" && old != strings.ToLower(old) {
		ext = strings.ToUpper(ext)
	}
	return base + ext
}

// ListArchive returns the member names of a /vsizip or /vsitar archive.
func ListArchive(p string) ([]string, error) {
	switch {
	case strings.HasPrefix(p, vsiZipPrefix):
		archive, _ := splitArchive(strings.TrimPrefix(p, vsiZipPrefix), ".zip")
		zr, err := openZip(archive)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(zr.File))
		for _, f := range zr.File {
			if !f.FileInfo().IsDir() {
				names = append(names, f.Name)
			}
		}
		sort.Strings(names)
		return names, nil

	case strings.HasPrefix(p, vsiTarPrefix):
		archive, _ := splitArchive(strings.TrimPrefix(p, vsiTarPrefix), ".tar")
		data, err := ReadFile(archive)
		if err != nil {
			return nil, err
		}
		var names []string
		tr := tar.NewReader(bytes.NewReader(data))
		for {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrVirtualFile, archive, err)
			}
			if hdr.Typeflag == tar.TypeReg {
				names = append(names, hdr.Name)
			}
		}
		sort.Strings(names)
		return names, nil

	default:
		return nil, fmt.Errorf("%w: not an archive path: %s", ErrVirtualFile, p)
	}
}

// resolveArchiveRoot maps an archive path without a member to its first
// member that looks like a dataset. Other paths are returned unchanged.
func resolveArchiveRoot(p string) string {
	var archive, member string
	switch {
	case strings.HasPrefix(p, vsiZipPrefix):
		archive, member = splitArchive(strings.TrimPrefix(p, vsiZipPrefix), ".zip")
	case strings.HasPrefix(p, vsiTarPrefix):
		archive, member = splitArchive(strings.TrimPrefix(p, vsiTarPrefix), ".tar")
	default:
		return p
	}
	if member != "" || archive == "" {
		return p
	}

	names, err := ListArchive(p)
	if err != nil {
		return p
	}
	for _, ext := range datasetExts {
		for _, name := range names {
			if strings.EqualFold(filepath.Ext(name), ext) {
				return strings.TrimSuffix(p, "/") + "/" + name
			}
		}
	}
	return p
}

// splitArchive splits "<archive><ext>[/member]" into its archive and member.
func splitArchive(rest, ext string) (archive, member string) {
	lower := strings.ToLower(rest)
	from := 0
	for {
		i := strings.Index(lower[from:], ext)
		if i < 0 {
			return rest, ""
		}
		end := from + i + len(ext)
		if end == len(rest) || rest[end] == '/' {
			return rest[:end], strings.TrimPrefix(rest[end:], "/")
		}
		from = end
	}
}

func openZip(archive string) (*zip.Reader, error) {
	data, err := ReadFile(archive)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrVirtualFile, archive, err)
	}
	return zr, nil
}

func readZipMember(archive, member string) ([]byte, error) {
	if member == "" {
		return nil, fmt.Errorf("%w: archive member required: %s", ErrVirtualFile, archive)
	}
	zr, err := openZip(archive)
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if f.Name != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %w", ErrVirtualFile, archive, member, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%w: no such archive member: %s/%s: %w", ErrVirtualFile, archive, member, os.ErrNotExist)
}

func readTarMember(archive, member string) ([]byte, error) {
	if member == "" {
		return nil, fmt.Errorf("%w: archive member required: %s", ErrVirtualFile, archive)
	}
	data, err := ReadFile(archive)
	if err != nil {
		return nil, err
	}
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrVirtualFile, archive, err)
		}
		if hdr.Name == member {
			return io.ReadAll(tr)
		}
	}
	return nil, fmt.Errorf("%w: no such archive member: %s/%s: %w", ErrVirtualFile, archive, member, os.ErrNotExist)
}
