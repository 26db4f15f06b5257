// Package archivetest builds in-memory package tarballs for tests.
package archivetest

import (
	"archive/tar"
	"bytes"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// Tarball returns a gzip-compressed tarball holding files under a single
// top-level "package/" directory, the way registries publish them.
func Tarball(t testing.TB, files map[string]string) []byte {
	t.Helper()
	return TarballWithPrefix(t, "package/", files)
}

// TarballWithPrefix is Tarball with a caller-chosen top-level directory,
// e.g. "owner-repo-abc123/" for git host archives.
func TarballWithPrefix(t testing.TB, prefix string, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)

	if err := tw.WriteHeader(&tar.Header{Name: prefix, Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		t.Fatalf("writing directory header: %v", err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		body := files[name]
		hdr := &tar.Header{
			Name:     prefix + name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(body)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing header for %s: %v", name, err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}
	return buf.Bytes()
}
