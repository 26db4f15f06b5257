// Package archive downloads package tarballs and unpacks them into the
// packages root.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/livepkg/livepkg/pkg/transport"
)

const dirPerm = 0o755

// Fetcher downloads archives through a transport.Client.
type Fetcher struct {
	Client *transport.Client
	// TempDir holds downloaded archives. Empty means os.TempDir().
	TempDir string

	now func() time.Time
}

func New(client *transport.Client) *Fetcher {
	return &Fetcher{Client: client, now: time.Now}
}

// DownloadTarball writes the archive at url to a time-named file in the
// temp directory and returns its path. A stale file with the same name is
// removed first. The caller owns the returned file.
func (f *Fetcher) DownloadTarball(ctx context.Context, url string, headers http.Header) (path string, err error) {
	dir := f.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	now := time.Now
	if f.now != nil {
		now = f.now
	}
	tmp := filepath.Join(dir, fmt.Sprintf("livepkg-%d-%d.tgz", os.Getpid(), now().UnixNano()))

	if err := os.RemoveAll(tmp); err != nil {
		return "", fmt.Errorf("removing stale archive %s: %w", tmp, err)
	}

	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", tmp, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", tmp, cerr)
		}
		if err != nil {
			_ = os.Remove(tmp)
			path = ""
		}
	}()

	if err := f.Client.DownloadTo(ctx, url, headers, out); err != nil {
		return "", err
	}
	return tmp, nil
}

// FetchAndExtract downloads url and extracts it into dest. Extraction goes
// to a staging directory next to dest which replaces dest only once the
// whole archive has been unpacked, so a failed install leaves no partial
// package behind. The downloaded archive is always removed.
func (f *Fetcher) FetchAndExtract(ctx context.Context, url string, headers http.Header, dest string) error {
	tmp, err := f.DownloadTarball(ctx, url, headers)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp) }()

	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, dirPerm); err != nil {
		return fmt.Errorf("creating %s: %w", parent, err)
	}
	staging, err := os.MkdirTemp(parent, ".staging-")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}

	if err := Extract(tmp, staging); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}

	if err := os.RemoveAll(dest); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("clearing %s: %w", dest, err)
	}
	if err := os.Rename(staging, dest); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("moving package into %s: %w", dest, err)
	}
	return nil
}

// Extract unpacks the gzip-compressed tarball at archivePath into dest,
// stripping the first path component of every entry.
func Extract(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	if err := os.MkdirAll(dest, dirPerm); err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	if err := extract(f, dest); err != nil {
		return fmt.Errorf("extracting %s: %w", archivePath, err)
	}
	return nil
}

func extract(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()

	dest = filepath.Clean(dest)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		name, ok := stripComponent(hdr.Name)
		if !ok {
			continue
		}
		target := filepath.Join(dest, name)
		if target != dest && !strings.HasPrefix(target, dest+string(filepath.Separator)) {
			return fmt.Errorf("invalid archive path: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirPerm); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm()|0o600); err != nil {
				return err
			}
		}
	}
}

// stripComponent drops the leading directory of an archive entry name.
// Entries that are the top directory itself report ok == false.
func stripComponent(name string) (string, bool) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	_, rest, found := strings.Cut(name, "/")
	rest = strings.Trim(rest, "/")
	if !found || rest == "" {
		return "", false
	}
	return filepath.FromSlash(rest), true
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
