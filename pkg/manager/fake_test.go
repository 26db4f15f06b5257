package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/livepkg/livepkg/pkg/sandbox"
	"github.com/livepkg/livepkg/pkg/semver"
	"github.com/livepkg/livepkg/pkg/source"
)

type release struct {
	manifest string
	files    map[string]string
}

// fakeRegistry serves published releases from memory and counts fetches.
type fakeRegistry struct {
	kind source.Kind

	mu       sync.Mutex
	releases map[string]map[string]release
	repos    map[string][2]string
	fetches  map[string]int
}

var _ source.Registry = &fakeRegistry{}

func newFakeRegistry(kind source.Kind) *fakeRegistry {
	return &fakeRegistry{
		kind:     kind,
		releases: map[string]map[string]release{},
		repos:    map[string][2]string{},
		fetches:  map[string]int{},
	}
}

// publish adds name@version. deps are name/range pairs in declaration order.
func (f *fakeRegistry) publish(name, version string, files map[string]string, deps ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releases[name] == nil {
		f.releases[name] = map[string]release{}
	}
	f.releases[name][version] = release{manifest: manifestJSON(name, version, deps...), files: files}
}

func (f *fakeRegistry) publishRepo(repository, name, version string, deps ...string) {
	f.publish(name, version, nil, deps...)
	f.mu.Lock()
	f.repos[repository] = [2]string{name, version}
	f.mu.Unlock()
}

func (f *fakeRegistry) fetchCount(name, version string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[name+"@"+version]
}

func (f *fakeRegistry) totalFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.fetches {
		n += c
	}
	return n
}

func (f *fakeRegistry) Resolve(_ context.Context, spec source.Specifier) (*source.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name, requested := spec.Name, spec.Version
	if spec.Kind == source.KindGitHub || spec.Kind == source.KindBitbucket {
		nv, ok := f.repos[spec.Version]
		if !ok {
			return nil, &source.VersionNotFoundError{Name: spec.Version, Version: spec.Version}
		}
		name, requested = nv[0], nv[1]
	}

	versions := make([]string, 0, len(f.releases[name]))
	for v := range f.releases[name] {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	var (
		version string
		ok      bool
	)
	switch {
	case requested == source.LatestTag:
		version, ok = semver.GreatestSatisfying(versions, "*")
	default:
		if _, exact := f.releases[name][requested]; exact {
			version, ok = requested, true
		} else {
			version, ok = semver.GreatestSatisfying(versions, requested)
		}
	}
	if !ok {
		return nil, &source.VersionNotFoundError{Name: name, Version: requested}
	}
	return &source.Metadata{
		Name:       name,
		Version:    version,
		ArchiveURL: fmt.Sprintf("fake://%s/%s", name, version),
		Kind:       f.kind,
	}, nil
}

func (f *fakeRegistry) FetchAndExtract(_ context.Context, destRoot string, meta *source.Metadata) (string, error) {
	f.mu.Lock()
	rel, ok := f.releases[meta.Name][meta.Version]
	f.fetches[meta.Name+"@"+meta.Version]++
	f.mu.Unlock()
	if !ok {
		return "", &source.MissingArchiveError{Name: meta.Name, Version: meta.Version}
	}

	dir := filepath.Join(destRoot, filepath.FromSlash(meta.Name))
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	files := map[string]string{"package.json": rel.manifest, "index.js": "module.exports = '" + meta.Version + "'"}
	for name, content := range rel.files {
		files[name] = content
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func manifestJSON(name, version string, deps ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `{"name":%q,"version":%q`, name, version)
	if len(deps) > 0 {
		b.WriteString(`,"dependencies":{`)
		for i := 0; i+1 < len(deps); i += 2 {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "%q:%q", deps[i], deps[i+1])
		}
		b.WriteString("}")
	}
	b.WriteString("}")
	return b.String()
}

type testEnv struct {
	m         *Manager
	npm       *fakeRegistry
	github    *fakeRegistry
	bitbucket *fakeRegistry
	loader    *sandbox.FileLoader
	root      string
}

// newTestEnv builds a manager over a temp root and fake registries.
// opts fields other than Root and the registries are passed through.
func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		npm:       newFakeRegistry(source.KindPrimary),
		github:    newFakeRegistry(source.KindGitHub),
		bitbucket: newFakeRegistry(source.KindBitbucket),
		loader:    sandbox.NewFileLoader(),
		root:      opts.Root,
	}
	if env.root == "" {
		env.root = t.TempDir()
	}

	opts.Root = env.root
	opts.NPM = env.npm
	opts.GitHub = env.github
	opts.Bitbucket = env.bitbucket
	if opts.Loader == nil {
		opts.Loader = env.loader
	}
	if opts.LockWait == 0 {
		opts.LockWait = 5 * time.Second
	}

	m, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.m = m
	return env
}

func writePackageDir(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}
