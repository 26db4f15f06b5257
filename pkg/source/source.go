package source

import (
	"context"
)

// Registry resolves specifiers to published package metadata and installs
// the matching archive. Every remote source implements it.
type Registry interface {
	// Resolve turns a specifier into concrete package metadata. It never
	// writes to disk.
	Resolve(ctx context.Context, spec Specifier) (*Metadata, error)
	// FetchAndExtract downloads the archive for meta and extracts it into
	// <destRoot>/<meta.Name>, returning that directory.
	FetchAndExtract(ctx context.Context, destRoot string, meta *Metadata) (string, error)
}

// Metadata describes one published version of a package.
type Metadata struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	ArchiveURL string `json:"archiveUrl,omitempty"`
	Kind       Kind   `json:"kind"`
	// Dependencies is only populated by sources that read a full manifest.
	Dependencies map[string]string `json:"dependencies,omitempty"`
}
