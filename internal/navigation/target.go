// internal/navigation/target.go
package navigation

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// ErrInvalidTarget is returned for a target that is neither empty, a token, nor a URL.
var ErrInvalidTarget = errors.New("invalid flow target")

// TargetKind discriminates the FlowTarget union.
type TargetKind int

const (
	TargetEmpty TargetKind = iota
	TargetToken
	TargetURL
)

func (k TargetKind) String() string {
	switch k {
	case TargetEmpty:
		return "empty"
	case TargetToken:
		return "token"
	case TargetURL:
		return "url"
	default:
		return fmt.Sprintf("target(%d)", int(k))
	}
}

// Target is what the caller hands to StartFlow. The zero value is the empty target.
type Target struct {
	kind  TargetKind
	value string
}

// Empty is the target with no token and no URL.
func Empty() Target { return Target{} }

// Token wraps a bare checkout token.
func Token(t string) Target { return Target{kind: TargetToken, value: t} }

// URL wraps a full destination.
func URL(u string) Target { return Target{kind: TargetURL, value: u} }

func (t Target) Kind() TargetKind { return t.kind }
func (t Target) Value() string    { return t.value }

func (t Target) String() string {
	if t.kind == TargetEmpty {
		return "empty"
	}
	return t.kind.String() + ":" + t.value
}

// tokenPattern accepts checkout tokens such as "EC-8AB12345CD6789012" or "ABC123".
// A dot makes the input a page or host ("child.htm", "example.com"), never a token.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

var disallowedSchemes = map[string]bool{
	"javascript": true,
	"data":       true,
	"vbscript":   true,
}

// ParseTarget classifies a raw StartFlow argument. An empty string is the empty
// target; anything else must look like a token or a URL.
func ParseTarget(raw string) (Target, error) {
	if raw == "" {
		return Empty(), nil
	}
	if strings.IndexFunc(raw, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return Target{}, fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidTarget, raw)
	}
	if tokenPattern.MatchString(raw) {
		return Token(raw), nil
	}
	if !strings.ContainsAny(raw, "/#?:.") {
		return Target{}, fmt.Errorf("%w: %q is neither a token nor a URL", ErrInvalidTarget, raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if disallowedSchemes[strings.ToLower(u.Scheme)] {
		return Target{}, fmt.Errorf("%w: scheme %q is not navigable", ErrInvalidTarget, u.Scheme)
	}
	return URL(raw), nil
}
