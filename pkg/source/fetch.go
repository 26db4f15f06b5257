package source

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/livepkg/livepkg/pkg/archive"
)

// fetchInto is the FetchAndExtract shared by every registry: download the
// archive with the source's headers and extract it into destRoot/name.
func fetchInto(ctx context.Context, fetcher *archive.Fetcher, headers http.Header, destRoot string, meta *Metadata) (string, error) {
	if meta.ArchiveURL == "" {
		return "", &MissingArchiveError{Name: meta.Name, Version: meta.Version}
	}
	dir := filepath.Join(destRoot, filepath.FromSlash(meta.Name))
	if err := fetcher.FetchAndExtract(ctx, meta.ArchiveURL, headers, dir); err != nil {
		return "", err
	}
	return dir, nil
}
