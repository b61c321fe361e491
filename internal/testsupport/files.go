package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// mediaHeader opens every fake media file with an MP4 ftyp box.
var mediaHeader = []byte("\x00\x00\x00\x18ftypisom")

// WriteMedia creates name under dir holding size bytes (at least the header)
// and returns its path. Parent directories are created as needed.
func WriteMedia(t testing.TB, dir, name string, size int64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	body := bytes.Repeat([]byte{0x42}, int(max(size-int64(len(mediaHeader)), 0)))
	if err := os.WriteFile(path, append(bytes.Clone(mediaHeader), body...), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
