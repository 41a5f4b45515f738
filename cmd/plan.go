package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/xoflow/internal/eligibility"
	"github.com/xkilldash9x/xoflow/internal/navigation"
)

// planReport is what `xoflow plan` prints.
type planReport struct {
	Target    string          `yaml:"target"`
	Kind      string          `yaml:"kind"`
	UserAgent string          `yaml:"user_agent"`
	Verdict   string          `yaml:"verdict"`
	Plan      navigation.Plan `yaml:"plan"`
}

func newPlanCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the transport and URL a flow would use, without opening anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			checkout := cfg.Checkout()

			t, err := navigation.ParseTarget(target)
			if err != nil {
				return err
			}
			classifier, err := eligibility.New(checkout.IneligibleUserAgents, eligibility.WithForceIneligible(checkout.ForceIneligible))
			if err != nil {
				return err
			}
			builder, err := navigation.NewBuilder(navigation.Bases{PopupURL: checkout.PopupURL, CheckoutURL: checkout.CheckoutURL})
			if err != nil {
				return err
			}

			ua := cfg.Browser().UserAgent
			verdict := classifier.Classify(ua)
			report := planReport{
				Target:    target,
				Kind:      t.Kind().String(),
				UserAgent: ua,
				Verdict:   verdict.String(),
				Plan:      builder.Build(t, verdict),
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("encode plan: %w", err)
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "", "checkout token or URL (empty uses the popup base)")
	cmd.Flags().String("user-agent", "", "user agent to classify")
	cmd.Flags().Bool("force-ineligible", false, "treat the client as ineligible for popups")
	return cmd
}
