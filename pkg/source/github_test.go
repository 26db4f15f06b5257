package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/livepkg/livepkg/pkg/archive"
	"github.com/livepkg/livepkg/pkg/archive/archivetest"
	"github.com/livepkg/livepkg/pkg/manifest"
	"github.com/livepkg/livepkg/pkg/transport"
)

// fakeGitHost serves manifests and tarballs for any owner/repo/ref and
// records the last request path and Authorization header per route.
type fakeGitHost struct {
	srv          *httptest.Server
	manifest     string
	tarball      []byte
	manifestPath string
	archivePath  string
	auth         string
}

func newFakeGitHost(t *testing.T, manifestJSON string) *fakeGitHost {
	t.Helper()
	f := &fakeGitHost{
		manifest: manifestJSON,
		tarball: archivetest.TarballWithPrefix(t, "owner-repo-abc123/", map[string]string{
			"package.json": manifestJSON,
			"index.js":     "module.exports = 'git'",
		}),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.auth = r.Header.Get("Authorization")
		if filepath.Base(r.URL.Path) == manifest.FileName {
			f.manifestPath = r.URL.Path
			w.Write([]byte(f.manifest))
			return
		}
		f.archivePath = r.URL.Path
		w.Write(f.tarball)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func testFetcher(t *testing.T) *archive.Fetcher {
	t.Helper()
	f := archive.New(transport.New())
	f.TempDir = t.TempDir()
	return f
}

func TestGitHubResolve(t *testing.T) {
	tests := map[string]struct {
		repository   string
		manifest     string
		wantManifest string
		wantArchive  string
		wantErr      error
	}{
		"explicit ref": {
			repository:   "owner/repo#v2",
			manifest:     `{"name":"my-plugin","version":"2.0.0"}`,
			wantManifest: "/raw/owner/repo/v2/package.json",
			wantArchive:  "/api/repos/owner/repo/tarball/v2",
		},
		"default branch": {
			repository:   "owner/repo",
			manifest:     `{"name":"my-plugin","version":"1.0.0"}`,
			wantManifest: "/raw/owner/repo/master/package.json",
			wantArchive:  "/api/repos/owner/repo/tarball/master",
		},
		"ambiguous specifier": {
			repository: "owner/repo/extra",
			manifest:   `{"name":"my-plugin","version":"1.0.0"}`,
			wantErr:    ErrInvalidSpecifier,
		},
		"manifest without version": {
			repository: "owner/repo",
			manifest:   `{"name":"my-plugin"}`,
			wantErr:    manifest.ErrMissingFields,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			host := newFakeGitHost(t, tc.manifest)
			r, err := NewGitHubRegistry(transport.Auth{}, transport.New(), testFetcher(t))
			if err != nil {
				t.Fatalf("NewGitHubRegistry() error = %v", err)
			}
			r.RawURL = host.srv.URL + "/raw"
			r.APIURL = host.srv.URL + "/api"

			meta, err := r.Resolve(context.Background(), Specifier{Kind: KindGitHub, Version: tc.repository})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Resolve(%q) error = %v, want %v", tc.repository, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tc.repository, err)
			}
			if host.manifestPath != tc.wantManifest {
				t.Errorf("manifest path = %q, want %q", host.manifestPath, tc.wantManifest)
			}
			if meta.ArchiveURL != host.srv.URL+tc.wantArchive {
				t.Errorf("ArchiveURL = %q, want %q", meta.ArchiveURL, host.srv.URL+tc.wantArchive)
			}
			if meta.Kind != KindGitHub {
				t.Errorf("Kind = %v, want %v", meta.Kind, KindGitHub)
			}
		})
	}
}

func TestGitHubFetchAndExtractSendsAuth(t *testing.T) {
	host := newFakeGitHost(t, `{"name":"my-plugin","version":"1.0.0"}`)
	r, err := NewGitHubRegistry(transport.Auth{Type: "token", Token: "s3cr3t"}, transport.New(), testFetcher(t))
	if err != nil {
		t.Fatalf("NewGitHubRegistry() error = %v", err)
	}
	r.RawURL = host.srv.URL + "/raw"
	r.APIURL = host.srv.URL + "/api"

	meta, err := r.Resolve(context.Background(), Specifier{Kind: KindGitHub, Version: "owner/repo#main"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	root := t.TempDir()
	dir, err := r.FetchAndExtract(context.Background(), root, meta)
	if err != nil {
		t.Fatalf("FetchAndExtract() error = %v", err)
	}
	if host.auth != "token s3cr3t" {
		t.Errorf("Authorization = %q, want %q", host.auth, "token s3cr3t")
	}
	if _, err := os.Stat(filepath.Join(dir, "index.js")); err != nil {
		t.Errorf("index.js not extracted: %v", err)
	}
}

func TestGitHostAuthSupport(t *testing.T) {
	tests := map[string]struct {
		newRegistry func(transport.Auth) error
		auth        transport.Auth
		wantErr     bool
	}{
		"github token": {
			newRegistry: githubCtor,
			auth:        transport.Auth{Type: "token", Token: "x"},
		},
		"github basic": {
			newRegistry: githubCtor,
			auth:        transport.Auth{Type: "basic", Username: "u", Password: "p"},
		},
		"github bearer unsupported": {
			newRegistry: githubCtor,
			auth:        transport.Auth{Type: "bearer", Token: "x"},
			wantErr:     true,
		},
		"bitbucket basic": {
			newRegistry: bitbucketCtor,
			auth:        transport.Auth{Type: "basic", Username: "u", Password: "p"},
		},
		"bitbucket token unsupported": {
			newRegistry: bitbucketCtor,
			auth:        transport.Auth{Type: "token", Token: "x"},
			wantErr:     true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.newRegistry(tc.auth)
			if tc.wantErr {
				if !errors.Is(err, transport.ErrUnsupportedAuth) {
					t.Errorf("error = %v, want ErrUnsupportedAuth", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func githubCtor(auth transport.Auth) error {
	_, err := NewGitHubRegistry(auth, transport.New(), archive.New(transport.New()))
	return err
}

func bitbucketCtor(auth transport.Auth) error {
	_, err := NewBitbucketRegistry(auth, transport.New(), archive.New(transport.New()))
	return err
}

func TestBitbucketResolveAndFetch(t *testing.T) {
	host := newFakeGitHost(t, `{"name":"bb-plugin","version":"3.1.0","dependencies":{"a":"^1.0.0"}}`)
	r, err := NewBitbucketRegistry(transport.Auth{Type: "basic", Username: "u", Password: "p"}, transport.New(), testFetcher(t))
	if err != nil {
		t.Fatalf("NewBitbucketRegistry() error = %v", err)
	}
	r.APIURL = host.srv.URL + "/api"
	r.WebURL = host.srv.URL + "/web"

	meta, err := r.Resolve(context.Background(), Specifier{Kind: KindBitbucket, Version: "team/plugin#release"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if host.manifestPath != "/api/repositories/team/plugin/src/release/package.json" {
		t.Errorf("manifest path = %q", host.manifestPath)
	}
	if meta.ArchiveURL != host.srv.URL+"/web/team/plugin/get/release.tar.gz" {
		t.Errorf("ArchiveURL = %q", meta.ArchiveURL)
	}
	if meta.Dependencies["a"] != "^1.0.0" {
		t.Errorf("Dependencies = %v", meta.Dependencies)
	}

	dir, err := r.FetchAndExtract(context.Background(), t.TempDir(), meta)
	if err != nil {
		t.Fatalf("FetchAndExtract() error = %v", err)
	}
	if host.archivePath != "/web/team/plugin/get/release.tar.gz" {
		t.Errorf("archive path = %q", host.archivePath)
	}
	if host.auth != transport.BasicHeader("u", "p") {
		t.Errorf("Authorization = %q", host.auth)
	}
	if filepath.Base(dir) != "bb-plugin" {
		t.Errorf("FetchAndExtract() = %q", dir)
	}
}
