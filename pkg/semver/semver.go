// Package semver answers version questions for installed and published
// packages: range satisfaction, greatest-satisfying selection and
// normalization. Malformed input never errors, it simply does not match.
package semver

import (
	"strconv"
	"strings"

	mmsemver "github.com/Masterminds/semver/v3"
)

// Satisfies reports whether version falls inside rng. An empty range
// matches any release version.
func Satisfies(version, rng string) bool {
	v, ok := parse(version)
	if !ok {
		return false
	}
	c, ok := constraint(rng)
	if !ok {
		return false
	}
	return c.Check(v)
}

// GreatestSatisfying returns the highest entry of versions that satisfies rng.
func GreatestSatisfying(versions []string, rng string) (string, bool) {
	c, ok := constraint(rng)
	if !ok {
		return "", false
	}

	var (
		best    *mmsemver.Version
		bestRaw string
	)
	for _, raw := range versions {
		v, ok := parse(raw)
		if !ok || !c.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestRaw = v, raw
		}
	}
	return bestRaw, best != nil
}

// Clean normalizes input to a plain "major.minor.patch[-pre][+build]"
// string, dropping whitespace and leading "=" or "v". Input that is not a
// complete version is returned unchanged.
func Clean(input string) string {
	v, ok := parse(input)
	if !ok {
		return input
	}
	return v.String()
}

// Valid reports whether input is a complete semantic version.
func Valid(input string) bool {
	_, ok := parse(input)
	return ok
}

// GreaterThanRange reports whether version is higher than every version
// rng could match. Unbounded ranges (">1.0.0", "*") never qualify.
func GreaterThanRange(version, rng string) bool {
	v, ok := parse(version)
	if !ok {
		return false
	}
	if _, ok := constraint(rng); !ok {
		return false
	}

	for _, set := range strings.Split(rng, "||") {
		b, ok := setUpperBound(set)
		if !ok {
			return false
		}
		cmp := v.Compare(b.version)
		if cmp < 0 || (cmp == 0 && b.inclusive) {
			return false
		}
	}
	return true
}

func parse(input string) (*mmsemver.Version, bool) {
	s := strings.TrimLeft(strings.TrimSpace(input), "=v")
	v, err := mmsemver.StrictNewVersion(s)
	if err != nil {
		return nil, false
	}
	return v, true
}

func constraint(rng string) (*mmsemver.Constraints, bool) {
	rng = strings.TrimSpace(rng)
	if rng == "" {
		rng = "*"
	}
	c, err := mmsemver.NewConstraint(rng)
	if err != nil {
		return nil, false
	}
	return c, true
}

type bound struct {
	version   *mmsemver.Version
	inclusive bool
}

// setUpperBound computes the tightest upper bound of a whitespace or comma
// separated comparator set. ok is false when the set has no upper bound.
func setUpperBound(set string) (bound, bool) {
	set = strings.TrimSpace(set)
	if lo, hi, found := strings.Cut(set, " - "); found && strings.TrimSpace(lo) != "" {
		return comparatorUpperBound("<=" + strings.TrimSpace(hi))
	}

	var (
		best    bound
		bounded bool
	)
	for _, c := range comparators(set) {
		b, ok := comparatorUpperBound(c)
		if !ok {
			continue
		}
		if !bounded || tighter(b, best) {
			best, bounded = b, true
		}
	}
	return best, bounded
}

func tighter(a, b bound) bool {
	cmp := a.version.Compare(b.version)
	return cmp < 0 || (cmp == 0 && !a.inclusive && b.inclusive)
}

// comparators splits a set into tokens, rejoining operators that were
// separated from their version by a space (">= 1.2.3").
func comparators(set string) []string {
	fields := strings.FieldsFunc(set, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
	var out []string
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if strings.Trim(f, "<>=~^") == "" && i+1 < len(fields) {
			f += fields[i+1]
			i++
		}
		out = append(out, f)
	}
	return out
}

func comparatorUpperBound(c string) (bound, bool) {
	op, rest := splitOperator(c)
	p, ok := parsePartial(rest)
	if !ok {
		return bound{}, false
	}

	switch op {
	case ">", ">=":
		return bound{}, false
	case "<":
		return bound{version: p.floor()}, true
	case "<=", "", "=":
		if p.wild == 0 {
			return bound{}, false
		}
		if p.complete() {
			return bound{version: p.floor(), inclusive: true}, true
		}
		return bound{version: p.bump(p.wild - 1)}, true
	case "~", "~>":
		if p.wild == 0 {
			return bound{}, false
		}
		if p.wild == 1 {
			return bound{version: p.bump(0)}, true
		}
		return bound{version: p.bump(1)}, true
	case "^":
		if p.wild == 0 {
			return bound{}, false
		}
		// Bump the first non-zero component, or the last specified one.
		last := p.wild - 1
		if last > 2 {
			last = 2
		}
		for i := 0; i < last; i++ {
			if p.nums[i] != 0 {
				return bound{version: p.bump(i)}, true
			}
		}
		return bound{version: p.bump(last)}, true
	}
	return bound{}, false
}

func splitOperator(c string) (string, string) {
	for _, op := range []string{">=", "<=", "~>", ">", "<", "=", "~", "^"} {
		if strings.HasPrefix(c, op) {
			return op, strings.TrimSpace(c[len(op):])
		}
	}
	return "", c
}

// partial is a possibly incomplete version such as "1", "1.2" or "1.x".
// wild is the number of leading numeric components before the first
// missing or wildcard component (3 when complete).
type partial struct {
	nums [3]uint64
	wild int
	pre  string
}

func (p partial) complete() bool { return p.wild == 3 }

func (p partial) floor() *mmsemver.Version {
	pre := ""
	if p.complete() {
		pre = p.pre
	}
	return mmsemver.New(p.nums[0], p.nums[1], p.nums[2], pre, "")
}

// bump increments component i and zeroes everything after it.
func (p partial) bump(i int) *mmsemver.Version {
	n := p.nums
	n[i]++
	for j := i + 1; j < 3; j++ {
		n[j] = 0
	}
	return mmsemver.New(n[0], n[1], n[2], "", "")
}

func parsePartial(s string) (partial, bool) {
	s = strings.TrimLeft(s, "=v")
	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = s[:i]
	}
	var p partial
	main, pre, _ := strings.Cut(s, "-")
	p.pre = pre

	parts := strings.Split(main, ".")
	if len(parts) > 3 || main == "" {
		return partial{}, false
	}
	p.wild = len(parts)
	for i, part := range parts {
		if part == "x" || part == "X" || part == "*" {
			p.wild = i
			break
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return partial{}, false
		}
		p.nums[i] = n
	}
	return p, true
}
