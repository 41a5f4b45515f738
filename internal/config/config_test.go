// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/xoflow/internal/eligibility"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "xoflow", cfg.Logger().ServiceName)
	assert.Equal(t, "/checkoutnow", cfg.Checkout().PopupURL)
	assert.Equal(t, "/checkout/fullpage", cfg.Checkout().CheckoutURL)
	assert.Equal(t, 10*time.Millisecond, cfg.Checkout().PollInterval)
	assert.Equal(t, eligibility.DefaultDenylist, cfg.Checkout().IneligibleUserAgents)
	assert.False(t, cfg.Checkout().ForceIneligible)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 30*time.Second, cfg.Browser().NavigationTimeout)
	assert.Equal(t, "YYYYYYYYYYYYY", cfg.Host().PayerID)
	assert.Equal(t, "EC-XXXXXXXXXXXXXXXXX", cfg.Host().RedirectToken)
	assert.Equal(t, "redirectHash", cfg.Host().RedirectHash)

	require.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Checkout Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()

		missingPopup := *cfg
		missingPopup.CheckoutCfg.PopupURL = ""
		assert.ErrorContains(t, missingPopup.Validate(), "popup_url is required")

		missingCheckout := *cfg
		missingCheckout.CheckoutCfg.CheckoutURL = ""
		assert.ErrorContains(t, missingCheckout.Validate(), "checkout_url is required")

		badInterval := *cfg
		badInterval.CheckoutCfg.PollInterval = 0
		assert.ErrorContains(t, badInterval.Validate(), "poll_interval must be a positive duration")

		badPattern := *cfg
		badPattern.CheckoutCfg.IneligibleUserAgents = []string{"MSIE ("}
		assert.ErrorContains(t, badPattern.Validate(), "invalid denylist pattern")
	})

	t.Run("Browser Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()

		badNav := *cfg
		badNav.BrowserCfg.NavigationTimeout = -1
		assert.ErrorContains(t, badNav.Validate(), "browser.navigation_timeout must be a positive duration")

		badFlow := *cfg
		badFlow.BrowserCfg.FlowTimeout = 0
		assert.ErrorContains(t, badFlow.Validate(), "browser.flow_timeout must be a positive duration")
	})

	t.Run("Host Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()

		badBurst := *cfg
		badBurst.HostCfg.RateBurst = 0
		assert.ErrorContains(t, badBurst.Validate(), "host.rate_limit")

		unlimited := *cfg
		unlimited.HostCfg.RateLimit = 0
		unlimited.HostCfg.RateBurst = 0
		assert.NoError(t, unlimited.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
checkout:
  popup_url: "https://pay.example.com/checkoutnow"
  checkout_url: "#testCheckoutUrl"
  poll_interval: 25ms
  ineligible_user_agents:
    - "MSIE [5-9]\\."
    - "HeadlessChrome/"
browser:
  user_agent: "Mozilla/4.0 (compatible; MSIE 8.0; Windows NT 6.0; Trident/4.0)"
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "https://pay.example.com/checkoutnow", cfg.Checkout().PopupURL)
		assert.Equal(t, "#testCheckoutUrl", cfg.Checkout().CheckoutURL)
		assert.Equal(t, 25*time.Millisecond, cfg.Checkout().PollInterval)
		assert.Equal(t, []string{`MSIE [5-9]\.`, "HeadlessChrome/"}, cfg.Checkout().IneligibleUserAgents)
		assert.Contains(t, cfg.Browser().UserAgent, "Trident/4.0")
		// Untouched sections keep their defaults.
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("checkout.poll_interval", "0s")

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		t.Setenv("XOFLOW_CHECKOUT_FORCE_INELIGIBLE", "true")

		v := viper.New()
		SetDefaults(v)
		BindEnv(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.True(t, cfg.Checkout().ForceIneligible)
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SetCheckoutForceIneligible(true)
	cfg.SetCheckoutPollInterval(time.Second)
	cfg.SetBrowserHeadless(false)
	cfg.SetBrowserUserAgent("UA")

	assert.True(t, cfg.Checkout().ForceIneligible)
	assert.Equal(t, time.Second, cfg.Checkout().PollInterval)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, "UA", cfg.Browser().UserAgent)
}
