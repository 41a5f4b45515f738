// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/xoflow/internal/transport"
)

// ErrPopupBlocked is returned when window.open yields no window.
var ErrPopupBlocked = errors.New("browser: window.open returned no window")

const (
	defaultRunTimeout = 30 * time.Second
	// windowRegistry is the hosting page global that keeps opened windows reachable.
	windowRegistry = "__xoflowWindows"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Page is a tab acting as the hosting page. It implements transport.Location,
// transport.Opener and the user-agent source by evaluating script in the tab.
type Page struct {
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	onClose func()

	nextID    atomic.Int64
	closeOnce sync.Once
}

var (
	_ transport.Location = (*Page)(nil)
	_ transport.Opener   = (*Page)(nil)
)

func (p *Page) init(ctx context.Context, userAgent, url string) error {
	var actions []chromedp.Action
	if userAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(userAgent))
	}
	actions = append(actions,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	return p.run(ctx, actions...)
}

// run executes actions in the tab, bounded by both ctx and the page timeout.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	timeout := p.timeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *Page) eval(ctx context.Context, expr string, res interface{}, userGesture bool) error {
	var opts []chromedp.EvaluateOption
	if userGesture {
		opts = append(opts, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
			return ep.WithUserGesture(true)
		})
	}
	return p.run(ctx, chromedp.Evaluate(expr, res, opts...))
}

func (p *Page) Fragment(ctx context.Context) (string, error) {
	var hash string
	if err := p.eval(ctx, `window.location.hash`, &hash, false); err != nil {
		return "", fmt.Errorf("browser: read fragment: %w", err)
	}
	return hash, nil
}

func (p *Page) Assign(ctx context.Context, url string) error {
	expr := fmt.Sprintf(`window.location.assign(%s)`, jsString(url))
	if err := p.eval(ctx, expr, nil, false); err != nil {
		return fmt.Errorf("browser: assign location: %w", err)
	}
	p.logger.Debug("Assigned hosting page location.", zap.String("url", url))
	return nil
}

// UserAgent reports navigator.userAgent as the page sees it.
func (p *Page) UserAgent(ctx context.Context) (string, error) {
	var ua string
	if err := p.eval(ctx, `navigator.userAgent`, &ua, false); err != nil {
		return "", fmt.Errorf("browser: read user agent: %w", err)
	}
	return ua, nil
}

// URL reports the tab's current address.
func (p *Page) URL(ctx context.Context) (string, error) {
	var href string
	if err := p.run(ctx, chromedp.Location(&href)); err != nil {
		return "", fmt.Errorf("browser: read location: %w", err)
	}
	return href, nil
}

// Open calls window.open as if from a user gesture, so the popup blocker
// treats it like a click handler.
func (p *Page) Open(ctx context.Context, url string) (transport.Window, error) {
	id := fmt.Sprintf("w%d", p.nextID.Add(1))
	expr := fmt.Sprintf(`(function (url, id) {
  var w = window.open(url, "_blank");
  if (!w) { return false; }
  (window.%[1]s = window.%[1]s || {})[id] = w;
  return true;
})(%[2]s, %[3]s)`, windowRegistry, jsString(url), jsString(id))

	var opened bool
	if err := p.eval(ctx, expr, &opened, true); err != nil {
		return nil, fmt.Errorf("browser: open window: %w", err)
	}
	if !opened {
		return nil, ErrPopupBlocked
	}
	p.logger.Debug("Opened window.", zap.String("window", id), zap.String("url", url))
	return &Window{page: p, id: id}, nil
}

// Close closes the tab. It is safe to call more than once.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		if p.onClose != nil {
			p.onClose()
		}
	})
	return nil
}

// Window is a popup opened by a Page, addressed through the page's registry.
type Window struct {
	page *Page
	id   string
}

var _ transport.Window = (*Window)(nil)

func (w *Window) ref() string {
	return fmt.Sprintf(`(window.%s || {})[%s]`, windowRegistry, jsString(w.id))
}

func (w *Window) Navigate(ctx context.Context, url string) error {
	expr := fmt.Sprintf(`(function (w, url) {
  if (!w || w.closed) { return false; }
  w.location.href = url;
  return true;
})(%s, %s)`, w.ref(), jsString(url))

	var ok bool
	if err := w.page.eval(ctx, expr, &ok, false); err != nil {
		return fmt.Errorf("browser: navigate window: %w", err)
	}
	if !ok {
		return errors.New("browser: window is closed")
	}
	return nil
}

func (w *Window) Close(ctx context.Context) error {
	expr := fmt.Sprintf(`(function (w) {
  if (w && !w.closed) { w.close(); }
  return true;
})(%s)`, w.ref())
	var ok bool
	if err := w.page.eval(ctx, expr, &ok, false); err != nil {
		return fmt.Errorf("browser: close window: %w", err)
	}
	return nil
}

// Closed also reports true once the registry is gone, e.g. after the hosting
// page navigated away.
func (w *Window) Closed(ctx context.Context) (bool, error) {
	expr := fmt.Sprintf(`(function (w) { return !w || w.closed; })(%s)`, w.ref())
	var closed bool
	if err := w.page.eval(ctx, expr, &closed, false); err != nil {
		return false, fmt.Errorf("browser: read window state: %w", err)
	}
	return closed, nil
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		// Marshalling a string cannot fail.
		panic(err)
	}
	return string(b)
}
