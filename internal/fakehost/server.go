package fakehost

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/xoflow/internal/config"
)

// Route paths served by the host. PopupPath and FullPagePath match the default
// checkout.popup_url and checkout.checkout_url.
const (
	HostingPath       = "/"
	PopupPath         = "/checkoutnow"
	FullPagePath      = "/checkout/fullpage"
	ChildPath         = "/child.htm"
	ChildRedirectPath = "/childRedirect.htm"
	MetricsPath       = "/metrics"
)

const shutdownGracePeriod = 5 * time.Second

var requestsServed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "xoflow",
	Subsystem: "fakehost",
	Name:      "requests_total",
	Help:      "Requests served by the fake checkout host, by route.",
}, []string{"route"})

// Server stands in for both the merchant's hosting page and the remote checkout
// host, so a real browser can run a flow end to end on one origin.
type Server struct {
	cfg     config.HostConfig
	logger  *zap.Logger
	limiter *rate.Limiter
	router  chi.Router
}

// New builds the router. It does not listen until Serve.
func New(cfg config.HostConfig, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger.Named("fakehost"),
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.rateLimit)
	r.Use(s.logRequests)

	r.Get(HostingPath, s.handleHosting)
	r.Get(PopupPath, s.handlePopup)
	r.Get(FullPagePath, s.handleFullPage)
	r.Get(ChildPath, s.handleChild)
	r.Get(ChildRedirectPath, s.handleChildRedirect)
	r.Handle(MetricsPath, promhttp.Handler())

	s.router = r
	return s
}

// Handler serves HTTP/1.1 and cleartext HTTP/2.
func (s *Server) Handler() http.Handler {
	return h2c.NewHandler(s.router, &http2.Server{})
}

// Serve runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("Fake checkout host listening.", zap.String("address", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		s.logger.Info("Shutting down fake checkout host.")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("fakehost: shutdown: %w", err)
		}
		return nil
	case err, ok := <-serverErr:
		if !ok {
			return nil
		}
		return fmt.Errorf("fakehost: serve: %w", err)
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		requestsServed.WithLabelValues(route).Inc()
		s.logger.Debug("Request served.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHosting(w http.ResponseWriter, r *http.Request) {
	s.render(w, hostingPage, nil)
}

// handlePopup is the popup base. Without a token it is the page a blank popup
// would show while waiting; with one it hands over to the child page.
func (s *Server) handlePopup(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		s.render(w, waitingPage, nil)
		return
	}
	http.Redirect(w, r, ChildPath+"?token="+url.QueryEscape(token), http.StatusFound)
}

// handleFullPage ends a full-page redirect flow by sending the hosting page back
// to itself with the return fragment.
func (s *Server) handleFullPage(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Redirect(w, r, HostingPath+"#cancel", http.StatusFound)
		return
	}
	http.Redirect(w, r, HostingPath+ReturnFragment(token, s.cfg.PayerID, ""), http.StatusFound)
}

func (s *Server) handleChild(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}
	s.render(w, childPage, childData{Token: token, PayerID: s.cfg.PayerID})
}

func (s *Server) handleChildRedirect(w http.ResponseWriter, r *http.Request) {
	target := ChildPath + "?token=" + url.QueryEscape(s.cfg.RedirectToken) + "#" + s.cfg.RedirectHash
	http.Redirect(w, r, target, http.StatusFound)
}

// ReturnFragment is the fragment the child page writes onto its opener.
func ReturnFragment(token, payerID, hash string) string {
	f := "#return?token=" + token + "&PayerID=" + payerID
	if hash != "" {
		f += "&hash=" + hash
	}
	return f
}
