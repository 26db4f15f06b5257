package manager

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidName     = errors.New("invalid package name")
	ErrInvalidVersion  = errors.New("invalid package version")
	ErrNotInstalled    = errors.New("package not installed")
	ErrDependencyCycle = errors.New("dependency cycle")
)

type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid package name %q", e.Name)
}

func (e *InvalidNameError) Unwrap() error { return ErrInvalidName }

type InvalidVersionError struct {
	Version string
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid package version %q", e.Version)
}

func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

type NotInstalledError struct {
	Name string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("%s not installed", e.Name)
}

func (e *NotInstalledError) Unwrap() error { return ErrNotInstalled }

// DependencyCycleError lists the packages being installed when a
// dependency pointed back into the chain. The last entry repeats an
// earlier one.
type DependencyCycleError struct {
	Chain []string
}

func (e *DependencyCycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Chain, " -> ")
}

func (e *DependencyCycleError) Unwrap() error { return ErrDependencyCycle }

// validateName rejects empty names, names starting with a dot, backslashes
// and any slash outside the "@scope/name" form.
func validateName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.Contains(name, `\`) {
		return &InvalidNameError{Name: name}
	}
	if !strings.Contains(name, "/") {
		return nil
	}

	parts := strings.Split(name, "/")
	if len(parts) != 2 || !strings.HasPrefix(parts[0], "@") || len(parts[0]) < 2 || parts[1] == "" {
		return &InvalidNameError{Name: name}
	}
	if strings.HasPrefix(parts[1], ".") {
		return &InvalidNameError{Name: name}
	}
	return nil
}
