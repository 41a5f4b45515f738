// internal/eligibility/classifier.go
package eligibility

import (
	"fmt"
	"regexp"
)

// Verdict is the popup-capability decision for one flow attempt.
type Verdict int

const (
	Eligible Verdict = iota
	Ineligible
)

func (v Verdict) String() string {
	switch v {
	case Eligible:
		return "eligible"
	case Ineligible:
		return "ineligible"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// DefaultDenylist matches user agents that cannot host the popup flow.
// Trident 4-6 covers IE8 through IE10, including compatibility-view strings.
var DefaultDenylist = []string{
	`MSIE [5-9]\.`,
	`MSIE 10\.`,
	`Trident/[4-6]\.`,
	`Opera Mini/`,
}

// Predicate reports whether a user agent is denied the popup transport.
type Predicate func(userAgent string) bool

// Classifier maps a user agent to a Verdict. It holds no mutable state after
// construction, so one instance may be shared freely.
type Classifier struct {
	deny         Predicate
	forceDenyAll bool
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithForceIneligible makes every client ineligible regardless of user agent.
func WithForceIneligible(force bool) Option {
	return func(c *Classifier) { c.forceDenyAll = force }
}

// WithPredicate replaces the denylist with an arbitrary predicate.
func WithPredicate(p Predicate) Option {
	return func(c *Classifier) {
		if p != nil {
			c.deny = p
		}
	}
}

// New compiles the denylist patterns into a Classifier. A malformed pattern is
// a configuration bug and is returned as an error.
func New(patterns []string, opts ...Option) (*Classifier, error) {
	pred, err := PatternPredicate(patterns)
	if err != nil {
		return nil, err
	}
	c := &Classifier{deny: pred}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MustNew is like New but panics on an invalid pattern.
func MustNew(patterns []string, opts ...Option) *Classifier {
	c, err := New(patterns, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// PatternPredicate builds a Predicate matching any of the given regular expressions.
func PatternPredicate(patterns []string) (Predicate, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("eligibility: invalid denylist pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return func(ua string) bool {
		for _, re := range compiled {
			if re.MatchString(ua) {
				return true
			}
		}
		return false
	}, nil
}

// Classify returns the verdict for userAgent.
func (c *Classifier) Classify(userAgent string) Verdict {
	if c.forceDenyAll || c.deny(userAgent) {
		return Ineligible
	}
	return Eligible
}
