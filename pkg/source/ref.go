package source

import (
	"fmt"
	"strings"
)

// Kind tags where a package comes from.
type Kind int

const (
	KindPrimary Kind = iota
	KindGitHub
	KindBitbucket
	KindLocalPath
	KindInlineCode
)

func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindGitHub:
		return "github"
	case KindBitbucket:
		return "bitbucket"
	case KindLocalPath:
		return "path"
	case KindInlineCode:
		return "code"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// LatestTag is the dist-tag used when no version is requested.
const LatestTag = "latest"

// Specifier is a classified install or query request. For git-host kinds
// Version holds the repository specifier "owner/repo[#ref]"; for
// KindLocalPath Name holds the directory.
type Specifier struct {
	Kind    Kind
	Name    string
	Version string
}

// Classify decides once, at the call boundary, which source serves
// name/versionOrRange. A version that looks like a repository routes to
// GitHub; anything else goes to the primary registry, defaulting to the
// latest tag.
func Classify(name, versionOrRange string) Specifier {
	versionOrRange = strings.TrimSpace(versionOrRange)
	if IsRepoSpecifier(versionOrRange) {
		return Specifier{Kind: KindGitHub, Name: name, Version: versionOrRange}
	}
	if versionOrRange == "" {
		versionOrRange = LatestTag
	}
	return Specifier{Kind: KindPrimary, Name: name, Version: versionOrRange}
}

// IsRepoSpecifier reports whether version is a repository specifier rather
// than a version, tag or range: it contains a path separator after at
// least one character.
func IsRepoSpecifier(version string) bool {
	return strings.Index(version, "/") > 0
}

func (s Specifier) String() string {
	switch s.Kind {
	case KindGitHub, KindBitbucket:
		return fmt.Sprintf("%s:%s", s.Kind, s.Version)
	case KindLocalPath:
		return fmt.Sprintf("%s:%s", s.Kind, s.Name)
	default:
		if s.Version == "" {
			return s.Name
		}
		return s.Name + "@" + s.Version
	}
}

// Repository is a parsed "owner/repo[#ref]" specifier.
type Repository struct {
	Owner string
	Repo  string
	Ref   string
}

// ParseRepository splits spec into owner, repo and ref. Exactly two path
// segments are required. defaultRef fills in a missing ref.
func ParseRepository(spec, defaultRef string) (Repository, error) {
	parts := strings.Split(spec, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Repository{}, &InvalidSpecifierError{Repository: spec}
	}

	repo, ref, _ := strings.Cut(parts[1], "#")
	if repo == "" {
		return Repository{}, &InvalidSpecifierError{Repository: spec}
	}
	if ref == "" {
		ref = defaultRef
	}
	return Repository{Owner: parts[0], Repo: repo, Ref: ref}, nil
}

func (r Repository) String() string {
	return fmt.Sprintf("%s/%s#%s", r.Owner, r.Repo, r.Ref)
}
