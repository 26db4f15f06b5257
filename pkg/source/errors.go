package source

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSpecifier matches every InvalidSpecifierError.
	ErrInvalidSpecifier = errors.New("invalid repository specifier")
	// ErrVersionNotFound matches every VersionNotFoundError.
	ErrVersionNotFound = errors.New("version not found")
	// ErrMissingArchive matches every MissingArchiveError.
	ErrMissingArchive = errors.New("package metadata has no archive location")
)

type InvalidSpecifierError struct {
	Repository string
}

func (e *InvalidSpecifierError) Error() string {
	return fmt.Sprintf("invalid repository %q: want owner/repo or owner/repo#ref", e.Repository)
}

func (e *InvalidSpecifierError) Unwrap() error { return ErrInvalidSpecifier }

type VersionNotFoundError struct {
	Name    string
	Version string
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("version %q of %s not found", e.Version, e.Name)
}

func (e *VersionNotFoundError) Unwrap() error { return ErrVersionNotFound }

type MissingArchiveError struct {
	Name    string
	Version string
}

func (e *MissingArchiveError) Error() string {
	return fmt.Sprintf("%s@%s: no archive location", e.Name, e.Version)
}

func (e *MissingArchiveError) Unwrap() error { return ErrMissingArchive }
