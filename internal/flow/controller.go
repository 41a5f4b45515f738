// internal/flow/controller.go
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xkilldash9x/xoflow/internal/config"
	"github.com/xkilldash9x/xoflow/internal/eligibility"
	"github.com/xkilldash9x/xoflow/internal/fragment"
	"github.com/xkilldash9x/xoflow/internal/navigation"
	"github.com/xkilldash9x/xoflow/internal/observability"
	"github.com/xkilldash9x/xoflow/internal/transport"
)

const (
	popupOpen   = "open"
	popupClosed = "closed"
)

// UserAgentSource reports the hosting browser's user-agent string.
type UserAgentSource interface {
	UserAgent(ctx context.Context) (string, error)
}

// Environment is everything the hosting page offers the controller.
type Environment interface {
	transport.Location
	transport.Opener
	UserAgentSource
}

// Dependencies wires a Controller explicitly. Every field is required.
type Dependencies struct {
	Location   transport.Location
	Opener     transport.Opener
	UserAgent  UserAgentSource
	Classifier *eligibility.Classifier
	Builder    *navigation.Builder
	Watcher    *fragment.Watcher
}

// Controller owns at most one live Session and serializes InitXO, StartFlow,
// CloseFlow and watcher callbacks.
type Controller struct {
	logger     *zap.Logger
	tracer     trace.Tracer
	location   transport.Location
	userAgent  UserAgentSource
	classifier *eligibility.Classifier
	builder    *navigation.Builder
	watcher    *fragment.Watcher
	popup      *transport.Adapter
	redirect   *transport.Adapter

	mu      sync.Mutex
	current *Session
}

// NewController builds the classifier, builder and watcher from cfg and drives
// them against env.
func NewController(logger *zap.Logger, cfg config.CheckoutConfig, env Environment) (*Controller, error) {
	if env == nil {
		return nil, errors.New("flow: environment is required")
	}
	classifier, err := eligibility.New(cfg.IneligibleUserAgents, eligibility.WithForceIneligible(cfg.ForceIneligible))
	if err != nil {
		return nil, err
	}
	builder, err := navigation.NewBuilder(navigation.Bases{PopupURL: cfg.PopupURL, CheckoutURL: cfg.CheckoutURL})
	if err != nil {
		return nil, err
	}
	return NewControllerWithDeps(logger, Dependencies{
		Location:   env,
		Opener:     env,
		UserAgent:  env,
		Classifier: classifier,
		Builder:    builder,
		Watcher:    fragment.New(cfg.PollInterval, logger),
	})
}

// NewControllerWithDeps wires a controller from prebuilt parts.
func NewControllerWithDeps(logger *zap.Logger, deps Dependencies) (*Controller, error) {
	switch {
	case deps.Location == nil:
		return nil, errors.New("flow: location is required")
	case deps.Opener == nil:
		return nil, errors.New("flow: opener is required")
	case deps.UserAgent == nil:
		return nil, errors.New("flow: user agent source is required")
	case deps.Classifier == nil:
		return nil, errors.New("flow: classifier is required")
	case deps.Builder == nil:
		return nil, errors.New("flow: builder is required")
	case deps.Watcher == nil:
		return nil, errors.New("flow: watcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("flow")
	return &Controller{
		logger:     logger,
		tracer:     observability.Tracer("flow"),
		location:   deps.Location,
		userAgent:  deps.UserAgent,
		classifier: deps.Classifier,
		builder:    deps.Builder,
		watcher:    deps.Watcher,
		popup:      transport.NewPopup(deps.Opener, logger),
		redirect:   transport.NewRedirect(deps.Location, logger),
	}, nil
}

// Session returns the current session, or nil before the first InitXO or StartFlow.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// InitXO opens a blank popup inside the user gesture so a later StartFlow can
// navigate it. For an ineligible browser nothing is opened and the session stays
// Idle. Calling it again while a blank popup is open reuses that popup.
func (c *Controller) InitXO(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "flow.InitXO")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.current; s != nil {
		switch s.phase {
		case Opened, Idle:
			span.SetAttributes(observability.AttrSessionID.String(s.id), observability.AttrPhase.String(s.phase.String()))
			c.sessionLogger(s).Debug("InitXO reusing current session.", zap.Stringer("phase", s.phase))
			return nil
		case Navigated, Completed:
			c.closeLocked(ctx, s, causeSuperseded)
		}
	}

	s := c.newSessionLocked(ctx)
	span.SetAttributes(observability.AttrSessionID.String(s.id), observability.AttrVerdict.String(s.verdict.String()))
	logger := c.sessionLogger(s)

	if s.verdict == eligibility.Ineligible {
		logger.Info("Browser is ineligible for popups; InitXO opens nothing.")
		return nil
	}

	h, err := c.popup.OpenBlank(ctx)
	if err != nil {
		c.failLocked(s, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "popup unavailable")
		logger.Warn("Could not open blank popup.", zap.Error(err))
		return err
	}
	s.setHandle(h)
	s.setPhase(Opened)
	logger.Info("Blank popup opened.")
	return nil
}

// StartFlow commits the navigation for rawTarget and arms completion detection.
// An invalid target fails before any state changes. On success the returned
// Session is Navigated; its outcome arrives through Wait.
func (c *Controller) StartFlow(ctx context.Context, rawTarget string) (*Session, error) {
	ctx, span := c.tracer.Start(ctx, "flow.StartFlow")
	defer span.End()

	target, err := navigation.ParseTarget(rawTarget)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid target")
		return nil, err
	}
	span.SetAttributes(observability.AttrTarget.String(target.Kind().String()))

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current
	switch {
	case s == nil:
		s = c.newSessionLocked(ctx)
	case s.phase == Closed:
		// A popup refused during InitXO is reported to this StartFlow once, not retried.
		if err := s.failure(); errors.Is(err, transport.ErrContextUnavailable) && !s.reported && s.plan == nil {
			s.reported = true
			span.RecordError(err)
			span.SetStatus(codes.Error, "popup unavailable")
			return s, err
		}
		s = c.newSessionLocked(ctx)
	case s.phase == Navigated || s.phase == Completed:
		c.closeLocked(ctx, s, causeSuperseded)
		s = c.newSessionLocked(ctx)
	}

	logger := c.sessionLogger(s)
	plan := c.builder.Build(target, s.verdict)
	adapter := c.adapterFor(plan.Transport)
	span.SetAttributes(
		observability.AttrSessionID.String(s.id),
		observability.AttrVerdict.String(s.verdict.String()),
		observability.AttrTransport.String(plan.Transport.String()),
	)

	// Armed before navigating: a fragment-only redirect changes the fragment
	// synchronously and must not become the baseline.
	fw, err := c.watcher.Watch(ctx, fragment.FragmentProbe(c.location), c.onFragment(s))
	if err != nil {
		err = fmt.Errorf("%w: %v", transport.ErrContextUnavailable, err)
		c.abortLocked(ctx, s, err)
		s.reported = true
		span.RecordError(err)
		span.SetStatus(codes.Error, "fragment unreadable")
		return s, err
	}

	h, err := adapter.Navigate(ctx, s.handle, plan)
	if err != nil {
		c.watcher.Unwatch(fw)
		c.abortLocked(ctx, s, err)
		s.reported = true
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
		logger.Warn("Navigation failed.", zap.Stringer("transport", plan.Transport), zap.Error(err))
		return s, err
	}

	s.commit(plan, h, fw)
	recordStarted(plan.Transport.String())
	logger.Info("Flow navigated.", zap.Stringer("transport", plan.Transport), zap.String("url", plan.URL))

	if plan.Transport == navigation.Popup {
		c.monitorPopupLocked(ctx, s, h)
	}
	return s, nil
}

// CloseFlow tears the current session down. When a popup had been opened and
// url is non-empty, the hosting page is then navigated to url. Closing with no
// session, or a second time, does nothing.
func (c *Controller) CloseFlow(ctx context.Context, url string) error {
	ctx, span := c.tracer.Start(ctx, "flow.CloseFlow")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current
	if s == nil || s.phase == Closed {
		return nil
	}
	span.SetAttributes(observability.AttrSessionID.String(s.id), observability.AttrPhase.String(s.phase.String()))

	hadPopup := s.handle != nil && s.handle.Window() != nil
	c.closeLocked(ctx, s, causeCloseFlow)

	if url == "" || !hadPopup {
		return nil
	}
	if err := c.location.Assign(ctx, url); err != nil {
		err = fmt.Errorf("flow: navigate hosting page after close: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "assign failed")
		return err
	}
	c.sessionLogger(s).Info("Hosting page navigated after close.", zap.String("url", url))
	return nil
}

func (c *Controller) newSessionLocked(ctx context.Context) *Session {
	ua, err := c.userAgent.UserAgent(ctx)
	if err != nil {
		c.logger.Warn("Could not read user agent; classifying as unknown.", zap.Error(err))
		ua = ""
	}
	s := newSession(uuid.NewString(), c.classifier.Classify(ua))
	c.current = s
	c.sessionLogger(s).Debug("Session created.", zap.String("user_agent", ua))
	return s
}

func (c *Controller) sessionLogger(s *Session) *zap.Logger {
	return c.logger.With(zap.String("session_id", s.id), zap.Stringer("verdict", s.verdict))
}

func (c *Controller) adapterFor(t navigation.Transport) *transport.Adapter {
	if t == navigation.Redirect {
		return c.redirect
	}
	return c.popup
}

// monitorPopupLocked watches for the user closing the popup.
func (c *Controller) monitorPopupLocked(ctx context.Context, s *Session, h *transport.Handle) {
	win := h.Window()
	probe := func(ctx context.Context) (string, error) {
		closed, err := win.Closed(ctx)
		if err != nil {
			return "", err
		}
		if closed {
			return popupClosed, nil
		}
		return popupOpen, nil
	}
	onClosed := c.onPopupClosed(s)

	cw, err := c.watcher.Watch(ctx, probe, func(string) { onClosed() })
	if err != nil {
		c.sessionLogger(s).Debug("Popup close monitor unavailable.", zap.Error(err))
		return
	}
	s.setCloseWatch(cw)
	if cw.Baseline() == popupClosed {
		// Already gone by the time the monitor armed; the poll loop would never fire.
		c.watcher.Unwatch(cw)
		go onClosed()
	}
}

// onFragment completes s with the first changed fragment, unless the session was
// superseded or closed while the signal was in flight.
func (c *Controller) onFragment(s *Session) func(string) {
	return func(value string) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.current != s || s.phase != Navigated {
			recordSuppressed()
			return
		}
		c.completeLocked(s, value)
	}
}

func (c *Controller) onPopupClosed(s *Session) func() {
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.current != s || s.phase != Navigated {
			recordSuppressed()
			return
		}
		// The remote may write the fragment and close in the same instant.
		if current, err := c.location.Fragment(context.Background()); err == nil && s.fragWatch != nil && current != s.fragWatch.Baseline() {
			c.completeLocked(s, current)
			return
		}

		c.watcher.Unwatch(s.fragWatch)
		_ = c.popup.Close(context.Background(), s.handle)
		recordClosed(s.phase, causeUserClosed)
		s.setPhase(Closed)
		s.finish("", ErrContextClosed)
		c.sessionLogger(s).Info("Popup closed without a result.")
	}
}

// completeLocked records the result. A popup that closed itself is released; one
// still open is left to the remote or to CloseFlow.
func (c *Controller) completeLocked(s *Session, value string) {
	c.watcher.Unwatch(s.fragWatch)
	c.watcher.Unwatch(s.closeWatch)
	if win := s.handle.Window(); win != nil {
		if closed, err := win.Closed(context.Background()); err == nil && closed {
			_ = c.popup.Close(context.Background(), s.handle)
		}
	}
	s.setPhase(Completed)
	s.finish(value, nil)
	if plan, ok := s.Plan(); ok {
		recordCompleted(plan.Transport.String())
	}
	c.sessionLogger(s).Info("Flow completed.", zap.String("fragment", value))
}

// closeLocked releases everything s holds and marks it Closed.
func (c *Controller) closeLocked(ctx context.Context, s *Session, cause string) {
	c.watcher.Unwatch(s.fragWatch)
	c.watcher.Unwatch(s.closeWatch)
	if err := c.popup.Close(ctx, s.handle); err != nil {
		c.sessionLogger(s).Warn("Failed to close popup.", zap.Error(err))
	}
	recordClosed(s.phase, cause)
	prev := s.phase
	s.setPhase(Closed)
	s.finish("", ErrFlowClosed)
	c.sessionLogger(s).Info("Session closed.", zap.Stringer("from", prev), zap.String("cause", cause))
}

// abortLocked ends s after its context could not be created or driven.
func (c *Controller) abortLocked(ctx context.Context, s *Session, err error) {
	_ = c.popup.Close(ctx, s.handle)
	c.failLocked(s, err)
}

func (c *Controller) failLocked(s *Session, err error) {
	if errors.Is(err, transport.ErrContextUnavailable) {
		recordUnavailable()
	}
	recordClosed(s.phase, causeUnavailable)
	s.setPhase(Closed)
	s.finish("", err)
}
