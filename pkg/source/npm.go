package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/livepkg/livepkg/pkg/archive"
	"github.com/livepkg/livepkg/pkg/semver"
	"github.com/livepkg/livepkg/pkg/transport"
	"golang.org/x/sync/singleflight"
)

// DefaultNPMRegistryURL is the public npm registry.
const DefaultNPMRegistryURL = "https://registry.npmjs.org"

const npmAccept = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8, */*"

// NPMRegistry resolves packages against an npm-compatible registry.
type NPMRegistry struct {
	URL     string
	client  *transport.Client
	fetcher *archive.Fetcher
	headers http.Header
	group   singleflight.Group
}

var _ Registry = &NPMRegistry{}

// NewNPMRegistry builds a client for registryURL. Token auth is sent as a
// bearer token.
func NewNPMRegistry(registryURL string, auth transport.Auth, client *transport.Client, fetcher *archive.Fetcher) (*NPMRegistry, error) {
	if registryURL == "" {
		registryURL = DefaultNPMRegistryURL
	}
	headers := transport.Headers(
		"Accept-Encoding", "gzip",
		"Accept", npmAccept,
	)

	switch {
	case auth.Type == transport.AuthBasic || (auth.Type == transport.AuthNone && auth.Username != ""):
		headers.Set("Authorization", transport.BasicHeader(auth.Username, auth.Password))
	case auth.Type == transport.AuthToken || auth.Type == transport.AuthBearer || (auth.Type == transport.AuthNone && auth.Token != ""):
		headers.Set("Authorization", transport.BearerHeader(auth.Token))
	case auth.Type != transport.AuthNone:
		return nil, &transport.UnsupportedAuthError{Type: auth.Type, Source: "npm registry"}
	}

	return &NPMRegistry{
		URL:     strings.TrimRight(registryURL, "/"),
		client:  client,
		fetcher: fetcher,
		headers: headers,
	}, nil
}

type npmDocument struct {
	Name     string                `json:"name"`
	DistTags map[string]string     `json:"dist-tags"`
	Versions map[string]npmVersion `json:"versions"`
}

type npmVersion struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
	Dist         struct {
		Tarball string `json:"tarball"`
	} `json:"dist"`
}

// Resolve picks a version from the package document: a dist-tag first,
// then an exact version, then the greatest version satisfying the request
// as a range.
func (r *NPMRegistry) Resolve(ctx context.Context, spec Specifier) (*Metadata, error) {
	doc, err := r.document(ctx, spec.Name)
	if err != nil {
		return nil, err
	}

	requested := strings.TrimSpace(spec.Version)
	version, v, ok := pickVersion(doc, requested)
	if !ok {
		return nil, &VersionNotFoundError{Name: spec.Name, Version: requested}
	}

	// registries may leave the per-version fields out
	name := v.Name
	if name == "" {
		name = doc.Name
	}
	if name == "" {
		name = spec.Name
	}
	if v.Version != "" {
		version = v.Version
	}
	return &Metadata{
		Name:         name,
		Version:      version,
		ArchiveURL:   v.Dist.Tarball,
		Kind:         KindPrimary,
		Dependencies: v.Dependencies,
	}, nil
}

// pickVersion returns the key of the chosen entry in doc.Versions along
// with the entry.
func pickVersion(doc *npmDocument, requested string) (string, npmVersion, bool) {
	version := doc.DistTags[requested]
	if version == "" {
		version = semver.Clean(requested)
	}
	if v, ok := doc.Versions[version]; ok {
		return version, v, true
	}

	candidates := make([]string, 0, len(doc.Versions))
	for key := range doc.Versions {
		candidates = append(candidates, key)
	}
	best, ok := semver.GreatestSatisfying(candidates, version)
	if !ok {
		return "", npmVersion{}, false
	}
	return best, doc.Versions[best], true
}

// document fetches the registry document for name. Concurrent lookups of
// the same name share one request.
func (r *NPMRegistry) document(ctx context.Context, name string) (*npmDocument, error) {
	v, err, _ := r.group.Do(name, func() (any, error) {
		url := r.URL + "/" + strings.Replace(name, "/", "%2F", 1)

		doc := &npmDocument{}
		if err := r.client.GetJSON(ctx, url, r.headers, doc); err != nil {
			return nil, fmt.Errorf("getting package %q: %w", name, err)
		}
		if doc.Name == "" || doc.Versions == nil {
			return nil, &transport.FetchError{
				URL:        url,
				StatusCode: http.StatusOK,
				Err:        fmt.Errorf("package %q: document has no name or versions", name),
			}
		}
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*npmDocument), nil
}

func (r *NPMRegistry) FetchAndExtract(ctx context.Context, destRoot string, meta *Metadata) (string, error) {
	return fetchInto(ctx, r.fetcher, r.headers, destRoot, meta)
}
