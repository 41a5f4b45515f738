// internal/transport/transport.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/xoflow/internal/navigation"
)

// ErrContextUnavailable reports that a browsing context could not be created or
// driven: the popup was blocked, or the user already closed it.
var ErrContextUnavailable = errors.New("browsing context unavailable")

// BlankURL is loaded into a popup opened ahead of its destination.
const BlankURL = "about:blank"

// Location is the hosting page's own address. Implementations must not assume
// exclusive ownership; anything may change the fragment between calls.
type Location interface {
	// Fragment returns the current fragment including its leading '#', or "".
	Fragment(ctx context.Context) (string, error)
	// Assign navigates the hosting page. Fragment-only URLs only change the fragment.
	Assign(ctx context.Context, url string) error
}

// Window is an opened secondary browsing context.
type Window interface {
	Navigate(ctx context.Context, url string) error
	Close(ctx context.Context) error
	Closed(ctx context.Context) (bool, error)
}

// Opener creates secondary browsing contexts. Open must be called from within
// the user gesture for the popup to survive blocker heuristics.
type Opener interface {
	Open(ctx context.Context, url string) (Window, error)
}

// Handle tracks one opened context. A nil *Handle is a valid "nothing opened" handle.
type Handle struct {
	transport navigation.Transport
	win       Window

	mu       sync.Mutex
	released bool
}

// Transport reports which adapter produced the handle.
func (h *Handle) Transport() navigation.Transport { return h.transport }

// Window returns the underlying context, or nil for redirect handles.
func (h *Handle) Window() Window {
	if h == nil {
		return nil
	}
	return h.win
}

// Released reports whether Close already ran on this handle.
func (h *Handle) Released() bool {
	if h == nil {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// release marks the handle closed and reports whether this call did it.
func (h *Handle) release() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false
	}
	h.released = true
	return true
}

// Adapter drives one transport kind. Popup and Redirect share the same
// capability set; the kind decides what each call does.
type Adapter struct {
	kind     navigation.Transport
	opener   Opener
	location Location
	logger   *zap.Logger
}

// NewPopup returns the popup adapter.
func NewPopup(opener Opener, logger *zap.Logger) *Adapter {
	return &Adapter{kind: navigation.Popup, opener: opener, logger: logger.Named("popup")}
}

// NewRedirect returns the full-page redirect adapter.
func NewRedirect(location Location, logger *zap.Logger) *Adapter {
	return &Adapter{kind: navigation.Redirect, location: location, logger: logger.Named("redirect")}
}

// Kind reports the transport this adapter implements.
func (a *Adapter) Kind() navigation.Transport { return a.kind }

// OpenBlank opens an empty popup. For the redirect transport there is nothing to
// open ahead of time, so it returns a handle standing for the hosting page.
func (a *Adapter) OpenBlank(ctx context.Context) (*Handle, error) {
	if a.kind == navigation.Redirect {
		return &Handle{transport: navigation.Redirect}, nil
	}
	win, err := a.opener.Open(ctx, BlankURL)
	if err != nil {
		return nil, fmt.Errorf("%w: open blank popup: %v", ErrContextUnavailable, err)
	}
	if win == nil {
		return nil, fmt.Errorf("%w: popup was blocked", ErrContextUnavailable)
	}
	a.logger.Debug("Opened blank popup.")
	return &Handle{transport: navigation.Popup, win: win}, nil
}

// Navigate commits plan. A popup handle from OpenBlank is reused; with no handle
// a popup is opened directly at the destination. Redirect replaces the hosting
// page location and returns a handle for it.
func (a *Adapter) Navigate(ctx context.Context, h *Handle, plan navigation.Plan) (*Handle, error) {
	if plan.Transport != a.kind {
		return nil, fmt.Errorf("transport: %s adapter cannot execute a %s plan", a.kind, plan.Transport)
	}

	if a.kind == navigation.Redirect {
		if err := a.location.Assign(ctx, plan.URL); err != nil {
			return nil, fmt.Errorf("%w: redirect to %q: %v", ErrContextUnavailable, plan.URL, err)
		}
		a.logger.Debug("Redirected hosting page.", zap.String("url", plan.URL))
		if h == nil {
			h = &Handle{transport: navigation.Redirect}
		}
		return h, nil
	}

	if h == nil || h.win == nil {
		win, err := a.opener.Open(ctx, plan.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: open popup: %v", ErrContextUnavailable, err)
		}
		if win == nil {
			return nil, fmt.Errorf("%w: popup was blocked", ErrContextUnavailable)
		}
		a.logger.Debug("Opened popup at destination.", zap.String("url", plan.URL))
		return &Handle{transport: navigation.Popup, win: win}, nil
	}

	if h.Released() {
		return nil, fmt.Errorf("%w: popup handle already released", ErrContextUnavailable)
	}
	if closed, err := h.win.Closed(ctx); err == nil && closed {
		h.release()
		return nil, fmt.Errorf("%w: popup closed by user", ErrContextUnavailable)
	}
	if err := h.win.Navigate(ctx, plan.URL); err != nil {
		return nil, fmt.Errorf("%w: navigate popup: %v", ErrContextUnavailable, err)
	}
	a.logger.Debug("Navigated existing popup.", zap.String("url", plan.URL))
	return h, nil
}

// Close releases the handle. It is idempotent and a no-op for redirect handles
// and for nil handles.
func (a *Adapter) Close(ctx context.Context, h *Handle) error {
	if h == nil || !h.release() {
		return nil
	}
	if h.win == nil {
		return nil
	}
	if closed, err := h.win.Closed(ctx); err == nil && closed {
		return nil
	}
	if err := h.win.Close(ctx); err != nil {
		return fmt.Errorf("transport: close popup: %w", err)
	}
	a.logger.Debug("Closed popup.")
	return nil
}
