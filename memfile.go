package vector

import (
	"fmt"
	"path"
	"strings"
)

// MemoryFile is a dataset held in a /vsimem virtual file. It can be read
// from an existing buffer or written to and then retrieved with Bytes.
type MemoryFile struct {
	name   string
	closed bool
}

// NewMemoryFile maps data, which may be empty, to a new virtual file with
// extension ext (e.g. ".geojson", ".shp").
func NewMemoryFile(data []byte, ext string) *MemoryFile {
	if data == nil {
		data = []byte{}
	}
	return &MemoryFile{name: BufferToVirtualFile(data, ext)}
}

// Name returns the virtual path of the file.
func (m *MemoryFile) Name() string { return m.name }

// Open opens the file's dataset. Reading requires non-empty contents.
func (m *MemoryFile) Open(mode Mode, opts *Options) (*Collection, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if mode == ModeRead || mode == ModeAppend {
		data, err := ReadFile(m.name)
		if err != nil || len(data) == 0 {
			return nil, fmt.Errorf("%w: memory file is empty: %s", ErrVirtualFile, m.name)
		}
	}
	return Open(m.name, mode, opts)
}

// Bytes returns the current contents of the file.
func (m *MemoryFile) Bytes() ([]byte, error) {
	if m.closed {
		return nil, ErrClosed
	}
	return ReadFile(m.name)
}

// Close removes the virtual file and any sidecar files written next to it.
func (m *MemoryFile) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	removeVirtualSiblings(m.name)
	return RemoveVirtualFile(m.name)
}

// ZipMemoryFile is a zip archive held in memory whose members can be opened
// as datasets.
type ZipMemoryFile struct {
	MemoryFile
}

// NewZipMemoryFile maps a zip archive.
func NewZipMemoryFile(data []byte) (*ZipMemoryFile, error) {
	if FileType(data) != "zip" {
		return nil, fmt.Errorf("%w: not a zip archive", ErrInvalidArgument)
	}
	return &ZipMemoryFile{MemoryFile: MemoryFile{name: BufferToVirtualFile(data, ".zip")}}, nil
}

// Open opens the dataset stored at member inside the archive, read only.
func (z *ZipMemoryFile) Open(member string, opts *Options) (*Collection, error) {
	if z.closed {
		return nil, ErrClosed
	}
	var o Options
	if opts != nil {
		o = *opts
	}
	o.VSI, o.Archive = "", ""
	return Open(VSIPath("/"+strings.TrimPrefix(member, "/"), "zip", z.name), ModeRead, &o)
}

// Members returns the names of the files in the archive.
func (z *ZipMemoryFile) Members() ([]string, error) {
	if z.closed {
		return nil, ErrClosed
	}
	return ListArchive(VSIPath("", "zip", z.name))
}

// removeVirtualSiblings removes /vsimem files that share p's base name with
// a different extension, e.g. the .dbf and .shx of a .shp.
func removeVirtualSiblings(p string) {
	base := strings.TrimSuffix(p, path.Ext(p)) + "."
	vfsMu.Lock()
	for name := range vfs {
		if name != p && strings.HasPrefix(name, base) {
			delete(vfs, name)
		}
	}
	n := len(vfs)
	vfsMu.Unlock()
	virtualFiles.Set(float64(n))
}
