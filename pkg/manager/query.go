package manager

import (
	"context"
	"fmt"

	"github.com/livepkg/livepkg/pkg/source"
)

// QueryPackage resolves name at versionOrRange without installing it,
// routing repository specifiers to GitHub. It does not take the lock.
func (m *Manager) QueryPackage(ctx context.Context, name, versionOrRange string) (*source.Metadata, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	spec := source.Classify(name, versionOrRange)
	if spec.Kind == source.KindGitHub {
		return m.QueryPackageFromGitHub(ctx, spec.Version)
	}
	return m.QueryPackageFromPrimary(ctx, name, spec.Version)
}

func (m *Manager) QueryPackageFromPrimary(ctx context.Context, name, version string) (*source.Metadata, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if version == "" {
		version = source.LatestTag
	}
	return m.query(ctx, source.Specifier{Kind: source.KindPrimary, Name: name, Version: version})
}

func (m *Manager) QueryPackageFromGitHub(ctx context.Context, repository string) (*source.Metadata, error) {
	return m.query(ctx, source.Specifier{Kind: source.KindGitHub, Version: repository})
}

func (m *Manager) QueryPackageFromBitbucket(ctx context.Context, repository string) (*source.Metadata, error) {
	return m.query(ctx, source.Specifier{Kind: source.KindBitbucket, Version: repository})
}

func (m *Manager) query(ctx context.Context, spec source.Specifier) (*source.Metadata, error) {
	ctx, span := m.tracer.Start(ctx, "manager.Query")
	defer span.End()

	meta, err := m.registry(spec.Kind).Resolve(ctx, spec)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("querying %s: %w", spec, err)
	}
	return meta, nil
}
