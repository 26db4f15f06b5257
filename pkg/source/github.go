package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/livepkg/livepkg/pkg/archive"
	"github.com/livepkg/livepkg/pkg/manifest"
	"github.com/livepkg/livepkg/pkg/transport"
)

const (
	defaultGitHubRawURL = "https://raw.githubusercontent.com"
	defaultGitHubAPIURL = "https://api.github.com"
	// DefaultGitRef is used when a repository specifier names no ref.
	DefaultGitRef = "master"
)

// GitHubRegistry installs packages straight from GitHub repositories.
type GitHubRegistry struct {
	RawURL string
	APIURL string

	client  *transport.Client
	fetcher *archive.Fetcher
	headers http.Header
}

var _ Registry = &GitHubRegistry{}

// NewGitHubRegistry accepts "token" and "basic" auth.
func NewGitHubRegistry(auth transport.Auth, client *transport.Client, fetcher *archive.Fetcher) (*GitHubRegistry, error) {
	headers := http.Header{}
	switch auth.Type {
	case transport.AuthNone:
	case transport.AuthToken:
		headers.Set("Authorization", transport.TokenHeader(auth.Token))
	case transport.AuthBasic:
		headers.Set("Authorization", transport.BasicHeader(auth.Username, auth.Password))
	default:
		return nil, &transport.UnsupportedAuthError{Type: auth.Type, Source: "github"}
	}

	return &GitHubRegistry{
		RawURL:  defaultGitHubRawURL,
		APIURL:  defaultGitHubAPIURL,
		client:  client,
		fetcher: fetcher,
		headers: headers,
	}, nil
}

// Resolve reads package.json at the requested ref and points the archive
// location at the ref's tarball.
func (r *GitHubRegistry) Resolve(ctx context.Context, spec Specifier) (*Metadata, error) {
	repo, err := ParseRepository(spec.Version, DefaultGitRef)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s/%s/%s/%s", strings.TrimRight(r.RawURL, "/"), repo.Owner, repo.Repo, repo.Ref, manifest.FileName)
	headers := r.headers.Clone()
	headers.Set("Accept", "application/vnd.github.v3+json")

	meta, err := resolveRemoteManifest(ctx, r.client, url, headers, spec.Version)
	if err != nil {
		return nil, err
	}
	meta.Kind = KindGitHub
	meta.ArchiveURL = fmt.Sprintf("%s/repos/%s/%s/tarball/%s", strings.TrimRight(r.APIURL, "/"), repo.Owner, repo.Repo, repo.Ref)
	return meta, nil
}

func (r *GitHubRegistry) FetchAndExtract(ctx context.Context, destRoot string, meta *Metadata) (string, error) {
	return fetchInto(ctx, r.fetcher, r.headers, destRoot, meta)
}

// resolveRemoteManifest fetches a raw package.json and checks it names a
// package and a version.
func resolveRemoteManifest(ctx context.Context, client *transport.Client, url string, headers http.Header, repository string) (*Metadata, error) {
	var m manifest.Manifest
	if err := client.GetJSON(ctx, url, headers, &m); err != nil {
		return nil, fmt.Errorf("getting manifest of %s: %w", repository, err)
	}
	if err := m.Validate(repository); err != nil {
		return nil, err
	}
	return &Metadata{
		Name:         m.Name,
		Version:      m.Version,
		Dependencies: m.Dependencies.Map(),
	}, nil
}
