// internal/navigation/target_test.go
package navigation

import (
	"errors"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/xoflow/internal/eligibility"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		raw      string
		wantKind TargetKind
	}{
		{"", TargetEmpty},
		{"ABC123", TargetToken},
		{"EC-8AB12345CD6789012", TargetToken},
		{"/base/test/child.htm?token=EC-1#deadbeef", TargetURL},
		{"/base/test/childRedirect.htm", TargetURL},
		{"#fullpageRedirectUrl?token=EC-1", TargetURL},
		{"#fullpageRedirectUrl", TargetURL},
		{"https://pay.example.com/checkoutnow?token=EC-1", TargetURL},
		{"pay.example.com/checkout", TargetURL},
		{"child.htm", TargetURL},
		{"example.com", TargetURL},
		{"EC-1.2", TargetURL},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			target, err := ParseTarget(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, target.Kind())
			assert.Equal(t, tt.raw, target.Value())
		})
	}
}

func TestParseTarget_Invalid(t *testing.T) {
	invalid := []string{
		" ",
		"has space",
		"EC-1\n",
		"not*a*token",
		"javascript:alert(1)",
		"DATA:text/html,hi",
		"http://[::1",
	}
	for _, raw := range invalid {
		_, err := ParseTarget(raw)
		assert.ErrorIs(t, err, ErrInvalidTarget, "input %q", raw)
	}
}

func TestTarget_String(t *testing.T) {
	assert.Equal(t, "empty", Empty().String())
	assert.Equal(t, "token:ABC", Token("ABC").String())
	assert.Equal(t, "url:/x", URL("/x").String())
	assert.Equal(t, "target(5)", TargetKind(5).String())
}

// FuzzParseTarget checks that parsing never panics and that every accepted
// target produces a plan without losing the input.
func FuzzParseTarget(f *testing.F) {
	f.Add([]byte("EC-8AB12345CD6789012"))
	f.Add([]byte("/base/test/child.htm?token=EC-1#abc"))
	f.Add([]byte("#fullpageRedirectUrl"))

	b, err := NewBuilder(Bases{PopupURL: "/checkout", CheckoutURL: "/redirect"})
	require.NoError(f, err)

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		raw, err := consumer.GetString()
		if err != nil {
			return
		}
		target, err := ParseTarget(raw)
		if err != nil {
			if !errors.Is(err, ErrInvalidTarget) {
				t.Fatalf("unexpected error type for %q: %v", raw, err)
			}
			return
		}
		for _, verdict := range []eligibility.Verdict{eligibility.Eligible, eligibility.Ineligible} {
			plan := b.Build(target, verdict)
			if target.Kind() == TargetURL && plan.URL != raw {
				t.Fatalf("url target rewritten: %q -> %q", raw, plan.URL)
			}
			if verdict == eligibility.Ineligible && plan.Transport != Redirect {
				t.Fatalf("ineligible client planned %s", plan.Transport)
			}
		}
	})
}
