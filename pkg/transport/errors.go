package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistryFetch matches every FetchError.
	ErrRegistryFetch = errors.New("registry fetch failed")

	// ErrUnsupportedAuth matches every UnsupportedAuthError.
	ErrUnsupportedAuth = errors.New("unsupported auth type")
)

// FetchError reports a non-2xx response, a transport failure or an
// unparseable body.
type FetchError struct {
	URL        string
	StatusCode int
	Status     string
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
	case e.Message != "":
		return fmt.Sprintf("fetching %s: %s: %s", e.URL, e.Status, e.Message)
	default:
		return fmt.Sprintf("fetching %s: %s", e.URL, e.Status)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrRegistryFetch }

// UnsupportedAuthError is returned when a source is configured with an
// auth type it cannot turn into headers.
type UnsupportedAuthError struct {
	Type   string
	Source string
}

func (e *UnsupportedAuthError) Error() string {
	return fmt.Sprintf("%s: auth type %q is not supported", e.Source, e.Type)
}

func (e *UnsupportedAuthError) Unwrap() error { return ErrUnsupportedAuth }
