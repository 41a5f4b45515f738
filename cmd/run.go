package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/xoflow/internal/browser"
	"github.com/xkilldash9x/xoflow/internal/config"
	"github.com/xkilldash9x/xoflow/internal/fakehost"
	"github.com/xkilldash9x/xoflow/internal/flow"
	"github.com/xkilldash9x/xoflow/internal/observability"
)

// runOptions are the flags of `xoflow run` that don't map onto config keys.
type runOptions struct {
	target   string
	initXO   bool
	jsonOut  bool
	trace    bool
	closeURL string
}

// runResult is the `run --json` output.
type runResult struct {
	SessionID string `json:"session_id"`
	Target    string `json:"target"`
	Verdict   string `json:"verdict"`
	Transport string `json:"transport,omitempty"`
	URL       string `json:"url,omitempty"`
	Phase     string `json:"phase"`
	Fragment  string `json:"fragment,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive one checkout flow in a headless browser against the local host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if opts.target == "" {
				opts.target = fakehost.GenerateECToken()
			}

			if opts.trace {
				tp, err := observability.NewTracerProvider("xoflow", cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer func() { _ = tp.Shutdown(context.Background()) }()
			}

			result, flowErr := runFlow(cmd.Context(), cfg, opts, observability.GetLogger())
			if err := printResult(cmd.OutOrStdout(), result, opts.jsonOut); err != nil {
				return err
			}
			return flowErr
		},
	}
	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "checkout token or URL (default: a generated EC token)")
	cmd.Flags().BoolVar(&opts.initXO, "init-xo", false, "open a blank popup before starting the flow")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "export spans to stderr")
	cmd.Flags().StringVar(&opts.closeURL, "close-url", "", "URL for the hosting page after the flow closes")
	cmd.Flags().String("user-agent", "", "emulate this user agent")
	cmd.Flags().Bool("headless", true, "run the browser headless")
	cmd.Flags().Bool("force-ineligible", false, "treat the browser as ineligible for popups")
	cmd.Flags().Duration("timeout", 0, "how long to wait for the flow to complete")
	return cmd
}

// runFlow serves the fake host and drives the browser in one errgroup; the
// host stops as soon as the flow is over.
func runFlow(ctx context.Context, cfg *config.Config, opts *runOptions, logger *zap.Logger) (runResult, error) {
	result := runResult{Target: opts.target}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return result, fmt.Errorf("listen for checkout host: %w", err)
	}
	hostURL := "http://" + ln.Addr().String()

	hostCtx, stopHost := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(hostCtx)
	g.Go(func() error {
		return fakehost.New(cfg.Host(), logger).Serve(gctx, ln)
	})
	g.Go(func() error {
		defer stopHost()
		return driveBrowser(gctx, cfg, opts, hostURL, logger, &result)
	})

	err = g.Wait()
	if err != nil && result.Error == "" {
		result.Error = err.Error()
	}
	return result, err
}

func driveBrowser(ctx context.Context, cfg *config.Config, opts *runOptions, hostURL string, logger *zap.Logger, result *runResult) error {
	mgr, err := browser.NewManager(ctx, logger, cfg.Browser())
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Browser().NavigationTimeout)
		defer cancel()
		_ = mgr.Shutdown(shutdownCtx)
	}()

	page, err := mgr.NewPage(ctx, hostURL+fakehost.HostingPath)
	if err != nil {
		return err
	}
	defer func() { _ = page.Close() }()

	ctrl, err := flow.NewController(logger, cfg.Checkout(), page)
	if err != nil {
		return err
	}
	defer func() {
		if err := ctrl.CloseFlow(context.Background(), opts.closeURL); err != nil {
			logger.Warn("CloseFlow failed.", zap.Error(err))
		}
	}()

	if opts.initXO {
		if err := ctrl.InitXO(ctx); err != nil {
			recordSession(result, ctrl.Session(), err)
			return err
		}
	}

	sess, err := ctrl.StartFlow(ctx, opts.target)
	if err != nil {
		recordSession(result, sess, err)
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Browser().FlowTimeout)
	defer cancel()
	fragment, err := sess.Wait(waitCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("flow did not complete within %s: %w", cfg.Browser().FlowTimeout, err)
	}
	result.Fragment = fragment
	recordSession(result, sess, err)
	return err
}

func recordSession(result *runResult, sess *flow.Session, err error) {
	if err != nil {
		result.Error = err.Error()
	}
	if sess == nil {
		return
	}
	result.SessionID = sess.ID()
	result.Verdict = sess.Verdict().String()
	result.Phase = sess.Phase().String()
	if plan, ok := sess.Plan(); ok {
		result.Transport = plan.Transport.String()
		result.URL = plan.URL
	}
}

func printResult(w io.Writer, r runResult, asJSON bool) error {
	if asJSON {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	if r.Error != "" {
		_, err := fmt.Fprintf(w, "flow %s failed: %s\n", r.SessionID, r.Error)
		return err
	}
	_, err := fmt.Fprintf(w, "%s\n", r.Fragment)
	return err
}
