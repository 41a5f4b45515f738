// File: internal/mocks/page.go
package mocks

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/xkilldash9x/xoflow/internal/transport"
)

// ErrPopupBlocked is what FakePage.Open returns while popups are blocked.
var ErrPopupBlocked = errors.New("popup blocked")

// RemoteFunc simulates the remote payment host reacting to a popup load.
// It runs synchronously inside Open/Navigate.
type RemoteFunc func(page *FakePage, win *FakeWindow, url string)

// FakePage is an in-memory hosting page: it is the Location, the Opener and the
// user agent source at once, and records every side effect for assertions.
type FakePage struct {
	mu        sync.Mutex
	href      string
	fragment  string
	userAgent string
	blocked   bool
	remote    RemoteFunc

	opens   []string
	assigns []string
	windows []*FakeWindow
}

var (
	_ transport.Location = (*FakePage)(nil)
	_ transport.Opener   = (*FakePage)(nil)
)

// NewFakePage returns a page at href with the given user agent.
func NewFakePage(href, userAgent string) *FakePage {
	return &FakePage{href: href, userAgent: userAgent}
}

// SetRemote installs the remote-host simulation.
func (p *FakePage) SetRemote(fn RemoteFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = fn
}

// BlockPopups makes subsequent Open calls fail.
func (p *FakePage) BlockPopups(blocked bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocked = blocked
}

// SetUserAgent changes the reported user agent.
func (p *FakePage) SetUserAgent(ua string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userAgent = ua
}

func (p *FakePage) UserAgent(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userAgent, nil
}

// SetFragment changes the fragment the way an outside party would.
func (p *FakePage) SetFragment(fragment string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fragment = normalizeFragment(fragment)
}

func (p *FakePage) Fragment(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fragment, nil
}

// Assign mirrors location.assign: fragment-only URLs touch just the fragment.
func (p *FakePage) Assign(_ context.Context, rawURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assigns = append(p.assigns, rawURL)
	if strings.HasPrefix(rawURL, "#") {
		p.fragment = normalizeFragment(rawURL)
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	p.href = rawURL
	p.fragment = normalizeFragment("#" + u.Fragment)
	return nil
}

func (p *FakePage) Open(_ context.Context, rawURL string) (transport.Window, error) {
	p.mu.Lock()
	p.opens = append(p.opens, rawURL)
	if p.blocked {
		p.mu.Unlock()
		return nil, ErrPopupBlocked
	}
	win := &FakeWindow{page: p, url: rawURL}
	p.windows = append(p.windows, win)
	remote := p.remote
	p.mu.Unlock()

	if remote != nil && rawURL != transport.BlankURL {
		remote(p, win, rawURL)
	}
	return win, nil
}

// Href is the page's current full URL.
func (p *FakePage) Href() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.href
}

// Opens lists every URL passed to Open.
func (p *FakePage) Opens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.opens...)
}

// Assigns lists every URL passed to Assign.
func (p *FakePage) Assigns() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.assigns...)
}

// Windows lists every popup opened so far.
func (p *FakePage) Windows() []*FakeWindow {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeWindow(nil), p.windows...)
}

// OpenWindows counts popups not yet closed.
func (p *FakePage) OpenWindows() int {
	n := 0
	for _, w := range p.Windows() {
		if !w.IsClosed() {
			n++
		}
	}
	return n
}

// FakeWindow is a popup opened by FakePage.
type FakeWindow struct {
	page *FakePage

	mu          sync.Mutex
	url         string
	navigations []string
	closed      bool
	closeCalls  int
}

var _ transport.Window = (*FakeWindow)(nil)

func (w *FakeWindow) Navigate(_ context.Context, rawURL string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("window is closed")
	}
	w.url = rawURL
	w.navigations = append(w.navigations, rawURL)
	w.mu.Unlock()

	w.page.mu.Lock()
	remote := w.page.remote
	w.page.mu.Unlock()
	if remote != nil {
		remote(w.page, w, rawURL)
	}
	return nil
}

func (w *FakeWindow) Close(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeCalls++
	w.closed = true
	return nil
}

func (w *FakeWindow) Closed(context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed, nil
}

// CloseByUser closes the window without going through Close.
func (w *FakeWindow) CloseByUser() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// URL is the window's current location.
func (w *FakeWindow) URL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.url
}

// Navigations lists every URL passed to Navigate.
func (w *FakeWindow) Navigations() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.navigations...)
}

// CloseCalls counts Close invocations.
func (w *FakeWindow) CloseCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeCalls
}

func (w *FakeWindow) IsClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// normalizeFragment follows location.hash: an empty fragment reads as "".
func normalizeFragment(f string) string {
	if f == "" || f == "#" {
		return ""
	}
	if !strings.HasPrefix(f, "#") {
		return "#" + f
	}
	return f
}
