// internal/eligibility/classifier_test.go
package eligibility

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ie8UserAgent    = "Mozilla/4.0 (compatible; MSIE 8.0; Windows NT 6.0; Trident/4.0)"
	ie10UserAgent   = "Mozilla/5.0 (compatible; MSIE 10.0; Windows NT 6.2; Trident/6.0)"
	ie11UserAgent   = "Mozilla/5.0 (Windows NT 6.3; Trident/7.0; rv:11.0) like Gecko"
	chromeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
)

func TestClassify_DefaultDenylist(t *testing.T) {
	c := MustNew(DefaultDenylist)

	tests := []struct {
		name string
		ua   string
		want Verdict
	}{
		{"IE8", ie8UserAgent, Ineligible},
		{"IE10", ie10UserAgent, Ineligible},
		{"IE11 is allowed", ie11UserAgent, Eligible},
		{"Chrome", chromeUserAgent, Eligible},
		{"Opera Mini", "Opera/9.80 (J2ME/MIDP; Opera Mini/9.80/191.227; U; en) Presto/2.5.25", Ineligible},
		{"Empty user agent", "", Eligible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.ua))
		})
	}
}

func TestClassify_StableAcrossCalls(t *testing.T) {
	c := MustNew(DefaultDenylist)
	for i := 0; i < 50; i++ {
		require.Equal(t, Ineligible, c.Classify(ie8UserAgent))
		require.Equal(t, Eligible, c.Classify(chromeUserAgent))
	}
}

func TestClassify_ForceIneligible(t *testing.T) {
	c := MustNew(DefaultDenylist, WithForceIneligible(true))
	assert.Equal(t, Ineligible, c.Classify(chromeUserAgent))
}

func TestClassify_ExtendedDenylist(t *testing.T) {
	patterns := append([]string{}, DefaultDenylist...)
	patterns = append(patterns, `HeadlessChrome/`)
	c, err := New(patterns)
	require.NoError(t, err)

	assert.Equal(t, Ineligible, c.Classify("Mozilla/5.0 HeadlessChrome/126.0.0.0"))
	assert.Equal(t, Eligible, c.Classify(chromeUserAgent))
}

func TestClassify_CustomPredicate(t *testing.T) {
	c := MustNew(nil, WithPredicate(func(ua string) bool {
		return strings.Contains(ua, "blocked")
	}))
	assert.Equal(t, Ineligible, c.Classify("a blocked client"))
	assert.Equal(t, Eligible, c.Classify(ie8UserAgent))
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New([]string{`MSIE (`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid denylist pattern")

	assert.Panics(t, func() { MustNew([]string{`[`}) })
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "eligible", Eligible.String())
	assert.Equal(t, "ineligible", Ineligible.String())
	assert.Equal(t, "verdict(7)", Verdict(7).String())
}
