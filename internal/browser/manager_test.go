// internal/browser/manager_test.go
package browser

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/xoflow/internal/config"
)

func TestAllocatorFlags(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: true})

		assert.Equal(t, true, flags["headless"])
		assert.Equal(t, true, flags["disable-gpu"])
		assert.Equal(t, false, flags["disable-popup-blocking"], "the popup blocker stays enabled")
		assert.Equal(t, "AutomationControlled", flags["disable-blink-features"])
		if runtime.GOOS == "linux" {
			assert.Equal(t, true, flags["no-sandbox"])
		}
	})

	t.Run("HeadlessDisabled", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: false})
		assert.Equal(t, false, flags["headless"])
		assert.Equal(t, false, flags["disable-gpu"])
	})

	t.Run("IgnoreTLSErrors", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{IgnoreTLSErrors: true})
		assert.Equal(t, true, flags["ignore-certificate-errors"])
	})

	t.Run("WithCustomArgs", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{
			Args: []string{"--custom-arg1", "--window-size=800,600", "--disable-popup-blocking"},
		})
		assert.Equal(t, true, flags["custom-arg1"])
		assert.Equal(t, "800,600", flags["window-size"])
		assert.Equal(t, true, flags["disable-popup-blocking"], "custom args override defaults")
	})
}

func TestAllocatorOptions_AddsUserAgent(t *testing.T) {
	base := AllocatorOptions(config.BrowserConfig{})
	withUA := AllocatorOptions(config.BrowserConfig{UserAgent: "Mozilla/4.0 (compatible; MSIE 8.0)"})
	assert.Len(t, withUA, len(base)+1)
}

func TestJSString(t *testing.T) {
	assert.Equal(t, `"#return?token=EC-1"`, jsString("#return?token=EC-1"))
	assert.Equal(t, `"a\"b"`, jsString(`a"b`))
	assert.Equal(t, `"\u003c/script\u003e"`, jsString("</script>"))
}
