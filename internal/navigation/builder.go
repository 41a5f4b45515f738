// internal/navigation/builder.go
package navigation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/xkilldash9x/xoflow/internal/eligibility"
)

// Transport selects how the remote checkout is reached.
type Transport int

const (
	Popup Transport = iota
	Redirect
)

func (t Transport) String() string {
	switch t {
	case Popup:
		return "popup"
	case Redirect:
		return "redirect"
	default:
		return fmt.Sprintf("transport(%d)", int(t))
	}
}

// MarshalText lets plans render as readable YAML/JSON.
func (t Transport) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Plan is the concrete navigation decided for one flow attempt.
type Plan struct {
	Transport Transport `json:"transport" yaml:"transport"`
	URL       string    `json:"url" yaml:"url"`
}

// Bases holds the statically configured checkout entry points.
type Bases struct {
	// PopupURL is loaded inside the popup for token and empty targets.
	PopupURL string
	// CheckoutURL is the full-page redirect base for ineligible clients.
	CheckoutURL string
}

// Builder turns (target, verdict) into a Plan. It is pure once constructed.
type Builder struct {
	bases Bases
}

// NewBuilder validates the configured bases. Either being empty or unparseable
// is a configuration error.
func NewBuilder(b Bases) (*Builder, error) {
	if b.PopupURL == "" {
		return nil, errors.New("navigation: popup base URL is required")
	}
	if b.CheckoutURL == "" {
		return nil, errors.New("navigation: checkout base URL is required")
	}
	if _, err := url.Parse(b.PopupURL); err != nil {
		return nil, fmt.Errorf("navigation: invalid popup base URL: %w", err)
	}
	if _, err := url.Parse(b.CheckoutURL); err != nil {
		return nil, fmt.Errorf("navigation: invalid checkout base URL: %w", err)
	}
	return &Builder{bases: b}, nil
}

// Bases returns the configured entry points.
func (b *Builder) Bases() Bases { return b.bases }

// Build applies the transport rules. Ineligible clients always redirect; a URL
// target is used verbatim, fragment included, under either transport.
func (b *Builder) Build(target Target, verdict eligibility.Verdict) Plan {
	transport, base := Popup, b.bases.PopupURL
	if verdict == eligibility.Ineligible {
		transport, base = Redirect, b.bases.CheckoutURL
	}

	switch target.Kind() {
	case TargetURL:
		return Plan{Transport: transport, URL: target.Value()}
	case TargetToken:
		return Plan{Transport: transport, URL: withToken(base, target.Value())}
	default:
		return Plan{Transport: transport, URL: base}
	}
}

// withToken appends token=<t> to base, keeping the base string intact so that
// fragment-style bases ("#checkout") stay byte-identical.
func withToken(base, token string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			sep = ""
		}
	}
	return base + sep + "token=" + url.QueryEscape(token)
}
