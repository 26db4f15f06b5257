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
	defaultBitbucketAPIURL = "https://api.bitbucket.org/2.0"
	defaultBitbucketWebURL = "https://bitbucket.org"
)

// BitbucketRegistry installs packages straight from Bitbucket repositories.
type BitbucketRegistry struct {
	APIURL string
	WebURL string

	client  *transport.Client
	fetcher *archive.Fetcher
	headers http.Header
}

var _ Registry = &BitbucketRegistry{}

// NewBitbucketRegistry accepts only "basic" auth.
func NewBitbucketRegistry(auth transport.Auth, client *transport.Client, fetcher *archive.Fetcher) (*BitbucketRegistry, error) {
	headers := http.Header{}
	switch auth.Type {
	case transport.AuthNone:
	case transport.AuthBasic:
		headers.Set("Authorization", transport.BasicHeader(auth.Username, auth.Password))
	default:
		return nil, &transport.UnsupportedAuthError{Type: auth.Type, Source: "bitbucket"}
	}

	return &BitbucketRegistry{
		APIURL:  defaultBitbucketAPIURL,
		WebURL:  defaultBitbucketWebURL,
		client:  client,
		fetcher: fetcher,
		headers: headers,
	}, nil
}

func (r *BitbucketRegistry) Resolve(ctx context.Context, spec Specifier) (*Metadata, error) {
	repo, err := ParseRepository(spec.Version, DefaultGitRef)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/repositories/%s/%s/src/%s/%s", strings.TrimRight(r.APIURL, "/"), repo.Owner, repo.Repo, repo.Ref, manifest.FileName)
	headers := r.headers.Clone()
	headers.Set("Accept", "application/json")

	meta, err := resolveRemoteManifest(ctx, r.client, url, headers, spec.Version)
	if err != nil {
		return nil, err
	}
	meta.Kind = KindBitbucket
	meta.ArchiveURL = fmt.Sprintf("%s/%s/%s/get/%s.tar.gz", strings.TrimRight(r.WebURL, "/"), repo.Owner, repo.Repo, repo.Ref)
	return meta, nil
}

func (r *BitbucketRegistry) FetchAndExtract(ctx context.Context, destRoot string, meta *Metadata) (string, error) {
	return fetchInto(ctx, r.fetcher, r.headers, destRoot, meta)
}
