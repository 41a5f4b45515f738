// internal/browser/integration_test.go
package browser_test

import (
	"context"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/xoflow/internal/browser"
	"github.com/xkilldash9x/xoflow/internal/config"
	"github.com/xkilldash9x/xoflow/internal/fakehost"
	"github.com/xkilldash9x/xoflow/internal/flow"
)

// requireChrome skips unless a Chrome-family binary is on PATH.
func requireChrome(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("browser integration test skipped in short mode")
	}
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chrome binary found")
}

type fixture struct {
	cfg  *config.Config
	host *httptest.Server
	page *browser.Page
}

func setup(t *testing.T, userAgent string) *fixture {
	t.Helper()
	requireChrome(t)
	logger := zaptest.NewLogger(t)

	cfg := config.NewDefaultConfig()
	cfg.SetBrowserUserAgent(userAgent)

	host := httptest.NewServer(fakehost.New(cfg.Host(), logger).Handler())
	t.Cleanup(host.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	mgr, err := browser.NewManager(ctx, logger, cfg.Browser())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	page, err := mgr.NewPage(ctx, host.URL+fakehost.HostingPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = page.Close() })

	return &fixture{cfg: cfg, host: host, page: page}
}

func TestPage_LocationRoundTrip(t *testing.T) {
	f := setup(t, "")
	ctx := context.Background()

	fragment, err := f.page.Fragment(ctx)
	require.NoError(t, err)
	assert.Empty(t, fragment)

	require.NoError(t, f.page.Assign(ctx, "#closeFlowUrl"))
	fragment, err = f.page.Fragment(ctx)
	require.NoError(t, err)
	assert.Equal(t, "#closeFlowUrl", fragment)
}

func TestPage_PopupFlowEndToEnd(t *testing.T) {
	f := setup(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ctrl, err := flow.NewController(zaptest.NewLogger(t), f.cfg.Checkout(), f.page)
	require.NoError(t, err)
	defer func() { _ = ctrl.CloseFlow(context.Background(), "") }()

	require.NoError(t, ctrl.InitXO(ctx))
	token := fakehost.GenerateECToken()
	sess, err := ctrl.StartFlow(ctx, token)
	require.NoError(t, err)

	result, err := sess.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, fakehost.ReturnFragment(token, f.cfg.Host().PayerID, ""), result)
}

func TestPage_LegacyUserAgentRedirects(t *testing.T) {
	f := setup(t, "Mozilla/4.0 (compatible; MSIE 8.0; Windows NT 6.0; Trident/4.0)")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ua, err := f.page.UserAgent(ctx)
	require.NoError(t, err)
	assert.Contains(t, ua, "Trident/4.0")

	ctrl, err := flow.NewController(zaptest.NewLogger(t), f.cfg.Checkout(), f.page)
	require.NoError(t, err)
	defer func() { _ = ctrl.CloseFlow(context.Background(), "") }()

	token := fakehost.GenerateECToken()
	sess, err := ctrl.StartFlow(ctx, token)
	require.NoError(t, err)

	result, err := sess.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, fakehost.ReturnFragment(token, f.cfg.Host().PayerID, ""), result)
}
