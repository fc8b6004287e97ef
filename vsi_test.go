package vector

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func tarBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

func TestMemoryVirtualFile(t *testing.T) {
	data := []byte("hello")
	name := BufferToVirtualFile(data, ".txt")
	if !IsVirtual(name) || filepath.Ext(name) != ".txt" {
		t.Fatalf("unexpected virtual name %q", name)
	}
	if !Exists(name) {
		t.Error("expected the virtual file to exist")
	}
	got, err := ReadFile(name)
	if err != nil || string(got) != "hello" {
		t.Errorf("ReadFile = %q, %v", got, err)
	}
	if hdr := ReadHeader(name, 2); string(hdr) != "he" {
		t.Errorf("ReadHeader = %q", hdr)
	}

	if err := WriteFile(name, []byte("bye")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if got, _ := ReadFile(name); string(got) != "bye" {
		t.Errorf("expected rewritten contents, got %q", got)
	}

	if err := RemoveVirtualFile(name); err != nil {
		t.Fatalf("RemoveVirtualFile failed: %v", err)
	}
	if Exists(name) {
		t.Error("expected the virtual file to be gone")
	}
	if err := RemoveVirtualFile(name); !errors.Is(err, ErrVirtualFile) {
		t.Errorf("expected ErrVirtualFile on second remove, got %v", err)
	}
	if _, err := ReadFile(name); !errors.Is(err, ErrVirtualFile) {
		t.Errorf("expected ErrVirtualFile, got %v", err)
	}
}

func TestZipArchive(t *testing.T) {
	archive := BufferToVirtualFile(zipBytes(t, map[string]string{
		"README.txt":     "notes",
		"data/roads.shp": "shp",
		"data/roads.dbf": "dbf",
	}), ".zip")
	defer RemoveVirtualFile(archive)

	root := VSIPath("", "zip", archive)
	names, err := ListArchive(root)
	if err != nil {
		t.Fatalf("ListArchive failed: %v", err)
	}
	if diff := cmp.Diff([]string{"README.txt", "data/roads.dbf", "data/roads.shp"}, names); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}

	if got, want := resolveArchiveRoot(root), "/vsizip/"+archive+"/data/roads.shp"; got != want {
		t.Errorf("resolveArchiveRoot = %q, want %q", got, want)
	}

	member := VSIPath("/data/roads.dbf", "zip", archive)
	if got, err := ReadFile(member); err != nil || string(got) != "dbf" {
		t.Errorf("ReadFile(%s) = %q, %v", member, got, err)
	}
	if _, err := ReadFile(VSIPath("/missing.shp", "zip", archive)); !errors.Is(err, ErrVirtualFile) {
		t.Errorf("expected ErrVirtualFile, got %v", err)
	}
	if err := WriteFile(member, nil); !errors.Is(err, ErrVirtualFile) {
		t.Errorf("expected archive paths to be read-only, got %v", err)
	}
}

func TestTarArchive(t *testing.T) {
	archive := BufferToVirtualFile(tarBytes(t, map[string]string{
		"a.txt":         "a",
		"lakes.geojson": "{}",
	}), ".tar")
	defer RemoveVirtualFile(archive)

	root := VSIPath("", "tar", archive)
	if got, want := resolveArchiveRoot(root), "/vsitar/"+archive+"/lakes.geojson"; got != want {
		t.Errorf("resolveArchiveRoot = %q, want %q", got, want)
	}
	if got, err := ReadFile(VSIPath("/a.txt", "tar", archive)); err != nil || string(got) != "a" {
		t.Errorf("ReadFile = %q, %v", got, err)
	}
}

func TestGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	zw.Close()
	name := BufferToVirtualFile(buf.Bytes(), ".geojson.gz")
	defer RemoveVirtualFile(name)

	got, err := ReadFile(VSIPath(name, "gzip", ""))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != `{"type":"FeatureCollection","features":[]}` {
		t.Errorf("unexpected contents %q", got)
	}
}

func TestOSFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	if Exists(path) {
		t.Fatal("expected no file yet")
	}
	if err := WriteFile(path, []byte("payload")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if got, err := ReadFile(path); err != nil || string(got) != "payload" {
		t.Errorf("ReadFile = %q, %v", got, err)
	}
	if hdr := ReadHeader(path, 100); string(hdr) != "payload" {
		t.Errorf("ReadHeader = %q", hdr)
	}
	if hdr := ReadHeader(filepath.Join(t.TempDir(), "missing"), 4); hdr != nil {
		t.Errorf("expected nil header, got %q", hdr)
	}
}

func TestSiblingPath(t *testing.T) {
	tests := []struct{ path, ext, want string }{
		{"roads.shp", ".dbf", "roads.dbf"},
		{"dir/ROADS.SHP", ".dbf", "dir/ROADS.DBF"},
		{"/vsimem/x/roads.shp", ".prj", "/vsimem/x/roads.prj"},
		{"noext", ".cpg", "noext.cpg"},
	}
	for _, tt := range tests {
		if got := SiblingPath(tt.path, tt.ext); got != tt.want {
			t.Errorf("SiblingPath(%q, %q) = %q, want %q", tt.path, tt.ext, got, tt.want)
		}
	}
}

func TestSplitArchive(t *testing.T) {
	tests := []struct{ rest, archive, member string }{
		{"/data/a.zip", "/data/a.zip", ""},
		{"/data/a.zip/b.shp", "/data/a.zip", "b.shp"},
		{"/data/a.zipper/c.zip/d.shp", "/data/a.zipper/c.zip", "d.shp"},
		{"/data/a", "/data/a", ""},
	}
	for _, tt := range tests {
		archive, member := splitArchive(tt.rest, ".zip")
		if archive != tt.archive || member != tt.member {
			t.Errorf("splitArchive(%q) = %q, %q, want %q, %q", tt.rest, archive, member, tt.archive, tt.member)
		}
	}
}

func TestVSIPath(t *testing.T) {
	if got := VSIPath("/a.shp", "zip", "/tmp/x.zip"); got != "/vsizip//tmp/x.zip/a.shp" {
		t.Errorf("unexpected path %q", got)
	}
	if got := VSIPath("/tmp/x.gz", "gzip", ""); got != "/vsigzip//tmp/x.gz" {
		t.Errorf("unexpected path %q", got)
	}
	if got := VSIPath("/tmp/a.shp", "", ""); got != "/tmp/a.shp" {
		t.Errorf("unexpected path %q", got)
	}
	if ValidVSI("rar") || !ValidVSI("tar") {
		t.Error("unexpected ValidVSI result")
	}
}
