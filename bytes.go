package vector

import (
	"bytes"
	"fmt"
)

var zipMagic = []byte("PK\x03\x04")

// FileType detects the container format of buf. Only zip is recognized; any
// other buffer yields "".
func FileType(buf []byte) string {
	if bytes.HasPrefix(buf, zipMagic) {
		return "zip"
	}
	return ""
}

// BytesCollection is a read-only Collection over an in-memory buffer.
//
// The buffer is mapped as a virtual file without being copied, so it must not
// be modified until Close returns.
type BytesCollection struct {
	*Collection

	buf         []byte
	virtualFile string
}

// NewBytesCollection maps buf to a virtual file and opens it. A zip buffer is
// opened through the zip virtual filesystem; a GeoJSON buffer is given a
// .json name so it is recognized by extension.
func NewBytesCollection(buf []byte, opts *Options) (*BytesCollection, error) {
	if buf == nil {
		return nil, fmt.Errorf("%w: input buffer must be bytes", ErrInvalidArgument)
	}
	var o Options
	if opts != nil {
		o = *opts
	}

	filetype := FileType(buf)
	ext := ""
	switch {
	case filetype == "zip":
		ext = ".zip"
	case o.Driver == "GeoJSON":
		ext = ".json"
	}

	bc := &BytesCollection{buf: buf}
	bc.virtualFile = BufferToVirtualFile(bc.buf, ext)

	o.VSI = filetype
	o.Archive = ""
	o.Encoding = "utf-8"
	c, err := Open(bc.virtualFile, ModeRead, &o)
	if err != nil {
		_ = RemoveVirtualFile(bc.virtualFile)
		return nil, err
	}
	bc.Collection = c
	return bc, nil
}

// VirtualFile returns the path buf is mapped at, or "" after Close.
func (bc *BytesCollection) VirtualFile() string { return bc.virtualFile }

// Close closes the collection, then removes the virtual file and drops the
// buffer.
func (bc *BytesCollection) Close() error {
	err := bc.Collection.Close()
	if bc.virtualFile != "" {
		if rmErr := RemoveVirtualFile(bc.virtualFile); rmErr != nil && err == nil {
			err = rmErr
		}
		bc.virtualFile = ""
		bc.buf = nil
	}
	return err
}

func (bc *BytesCollection) String() string {
	state := "open"
	if bc.Closed() {
		state = "closed"
	}
	return fmt.Sprintf("<%s BytesCollection '%s:%s', mode '%s'>", state, bc.Path(), bc.Name(), bc.Mode())
}
