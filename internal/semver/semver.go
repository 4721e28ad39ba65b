package semver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// ErrInvalid is returned for strings that are not major.minor.patch versions.
var ErrInvalid = errors.New("invalid semantic version")

// coreSegments is the number of numeric components a release version carries.
const coreSegments = 3

// Version is a parsed semantic version.
type Version struct {
	parsed *goversion.Version
}

// Parse parses s, stripping one optional leading "v".
func Parse(s string) (*Version, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if trimmed == "" || strings.HasPrefix(trimmed, "v") {
		return nil, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	core := trimmed
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}

	// go-version also accepts "1" and "1.2"; release tags must be complete.
	if strings.Count(core, ".") != coreSegments-1 {
		return nil, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	parsed, err := goversion.NewSemver(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalid, s, err)
	}

	return &Version{parsed: parsed}, nil
}

// String renders the version without the "v" prefix and without build metadata.
func (v *Version) String() string {
	segments := v.parsed.Segments64()
	out := fmt.Sprintf("%d.%d.%d", segments[0], segments[1], segments[2])

	if pre := v.parsed.Prerelease(); pre != "" {
		out += "-" + pre
	}

	return out
}

// Compare returns -1, 0 or 1 as v is lower than, equal to, or higher than o
// under semantic-version precedence. Build metadata is ignored.
func (v *Version) Compare(o *Version) int {
	self, other := v.parsed.Segments64(), o.parsed.Segments64()

	for i := range coreSegments {
		switch {
		case self[i] < other[i]:
			return -1
		case self[i] > other[i]:
			return 1
		}
	}

	return comparePrerelease(v.parsed.Prerelease(), o.parsed.Prerelease())
}

// Compare parses both strings and compares them.
func Compare(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}

	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}

	return va.Compare(vb), nil
}

// IsNewer reports whether candidate is strictly newer than current.
// It returns false if either side fails to parse.
func IsNewer(current, candidate string) bool {
	cmp, err := Compare(candidate, current)
	if err != nil {
		return false
	}

	return cmp > 0
}

// comparePrerelease implements semver precedence for prerelease tags.
// go-version orders "alpha" above "alpha.beta", so identifiers are compared here.
func comparePrerelease(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}

	left, right := strings.Split(a, "."), strings.Split(b, ".")

	for i := 0; i < len(left) && i < len(right); i++ {
		if cmp := compareIdentifier(left[i], right[i]); cmp != 0 {
			return cmp
		}
	}

	switch {
	case len(left) < len(right):
		return -1
	case len(left) > len(right):
		return 1
	default:
		return 0
	}
}

// compareIdentifier compares one dot-separated prerelease identifier.
// Numeric identifiers sort below alphanumeric ones.
func compareIdentifier(a, b string) int {
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)

	switch {
	case aErr == nil && bErr == nil:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
