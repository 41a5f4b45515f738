package fakehost

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/xoflow/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T, mutate func(*config.HostConfig)) (*httptest.Server, *http.Client) {
	t.Helper()
	cfg := config.NewDefaultConfig().Host()
	if mutate != nil {
		mutate(&cfg)
	}
	ts := httptest.NewServer(New(cfg, zaptest.NewLogger(t)).Handler())
	t.Cleanup(ts.Close)

	client := ts.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return ts, client
}

func get(t *testing.T, client *http.Client, url string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestRoutes(t *testing.T) {
	ts, client := newTestServer(t, nil)

	tests := []struct {
		name         string
		path         string
		wantStatus   int
		wantLocation string
		wantBody     []string
	}{
		{
			name:       "hosting page",
			path:       "/",
			wantStatus: http.StatusOK,
			wantBody:   []string{"Merchant checkout"},
		},
		{
			name:       "popup base without token waits",
			path:       "/checkoutnow",
			wantStatus: http.StatusOK,
			wantBody:   []string{"Loading checkout"},
		},
		{
			name:         "popup base with token hands over to child",
			path:         "/checkoutnow?token=EC-ABC",
			wantStatus:   http.StatusFound,
			wantLocation: "/child.htm?token=EC-ABC",
		},
		{
			name:         "full page returns to hosting page",
			path:         "/checkout/fullpage?token=EC-ABC",
			wantStatus:   http.StatusFound,
			wantLocation: "/#return?token=EC-ABC&PayerID=YYYYYYYYYYYYY",
		},
		{
			name:         "full page without token cancels",
			path:         "/checkout/fullpage",
			wantStatus:   http.StatusFound,
			wantLocation: "/#cancel",
		},
		{
			name:       "child reports to opener",
			path:       "/child.htm?token=EC-ABC",
			wantStatus: http.StatusOK,
			wantBody:   []string{`"EC-ABC"`, `"YYYYYYYYYYYYY"`, "window.opener.location.hash", "window.close()"},
		},
		{
			name:       "child requires token",
			path:       "/child.htm",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:         "child redirect carries fixture token and hash",
			path:         "/childRedirect.htm",
			wantStatus:   http.StatusFound,
			wantLocation: "/child.htm?token=EC-XXXXXXXXXXXXXXXXX#redirectHash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, client, ts.URL+tt.path)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, resp.Header.Get("Location"))
			}
			for _, want := range tt.wantBody {
				assert.Contains(t, body, want)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, client := newTestServer(t, nil)

	get(t, client, ts.URL+"/checkoutnow")
	resp, body := get(t, client, ts.URL+"/metrics")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `xoflow_fakehost_requests_total{route="/checkoutnow"}`)
}

func TestRateLimit(t *testing.T) {
	ts, client := newTestServer(t, func(c *config.HostConfig) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	first, _ := get(t, client, ts.URL+"/")
	second, _ := get(t, client, ts.URL+"/")

	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(config.NewDefaultConfig().Host(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, _ := get(t, client, "http://"+ln.Addr().String()+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestGenerateECToken(t *testing.T) {
	pattern := regexp.MustCompile(`^EC-[A-Z0-9]{17}$`)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok := GenerateECToken()
		assert.Regexp(t, pattern, tok)
		assert.False(t, seen[tok], "tokens should not repeat")
		seen[tok] = true
	}
}

func TestReturnFragment(t *testing.T) {
	assert.Equal(t, "#return?token=EC-1&PayerID=P", ReturnFragment("EC-1", "P", ""))
	assert.Equal(t, "#return?token=EC-1&PayerID=P&hash=redirectHash", ReturnFragment("EC-1", "P", "redirectHash"))
}
