package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/trackrelay/internal/config"
)

const sampleYAML = `
version: v1
engine:
  workers: 4
tracking:
  consent_default: false
  debug: true
backends:
  coingecko:
    endpoint: http://rates.local/api/v3
    timeout_ms: 500
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracking.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 1000, cfg.Engine.QueueDepth)
	assert.Equal(t, 5000, cfg.Engine.EventTimeoutMs)
	assert.Equal(t, "0.1.0", cfg.Tracking.AppVersion)
	assert.False(t, cfg.Tracking.ConsentAccepted())
	assert.True(t, cfg.Tracking.Debug)
	assert.Equal(t, "http://rates.local/api/v3", cfg.Backends.Coingecko.Endpoint)
	assert.Equal(t, 500, cfg.Backends.Coingecko.TimeoutMs)
	assert.Equal(t, "https://api.mixpanel.com", cfg.Backends.Mixpanel.Endpoint)
	assert.Equal(t, 3000, cfg.Backends.Mixpanel.TimeoutMs)
	require.NoError(t, config.Validate(cfg))
}

func TestConsentDefaultsToAccepted(t *testing.T) {
	cfg, err := config.Parse([]byte("version: v1\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Tracking.ConsentAccepted())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"missing version", func(c *config.Config) { c.Version = "" }, "version is required"},
		{"relative endpoint", func(c *config.Config) { c.Backends.GA4.Endpoint = "/collect" }, "backends.ga4.endpoint"},
		{"bad scheme", func(c *config.Config) { c.Backends.Pixel.Endpoint = "ftp://graph.local" }, "backends.pixel.endpoint"},
		{"negative workers", func(c *config.Config) { c.Engine.Workers = -1 }, "engine.workers"},
		{"negative timeout", func(c *config.Config) { c.Backends.Bugsnag.TimeoutMs = -5 }, "backends.bugsnag.timeout_ms"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte("version: v1\n"))
			require.NoError(t, err)
			tc.mutate(cfg)
			err = config.Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoader_Reload(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	l, err := config.NewLoader(path)
	require.NoError(t, err)
	assert.Equal(t, 4, l.Config().Engine.Workers)

	var seen *config.Config
	l.OnChange(func(c *config.Config) { seen = c })

	require.NoError(t, os.WriteFile(path, []byte("version: v2\nengine:\n  workers: 2\n"), 0o644))
	cfg, err := l.Reload()
	require.NoError(t, err)
	assert.Equal(t, "v2", cfg.Version)
	assert.Same(t, cfg, seen)
	assert.Equal(t, 2, l.Config().Engine.Workers)
}

func TestLoader_ReloadKeepsPreviousOnError(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	l, err := config.NewLoader(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("version: [unterminated"), 0o644))
	_, err = l.Reload()
	require.Error(t, err)
	assert.Equal(t, "v1", l.Config().Version)
}

func TestLoader_Watch(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	l, err := config.NewLoader(path)
	require.NoError(t, err)

	changed := make(chan *config.Config, 4)
	l.OnChange(func(c *config.Config) { changed <- c })

	stop, err := l.Watch()
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("version: v3\n"), 0o644))

	// the truncating write may be observed half-done first
	timeout := time.After(3 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.Version == "v3" {
				assert.Equal(t, "v3", l.Config().Version)
				return
			}
		case <-timeout:
			t.Fatal("watcher did not report the change")
		}
	}
}

func TestLoadTokens(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "tracking.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"TRACKING_MIXPANEL_TOKEN=from-file\nTRACKING_META_ID=pixel-1\n"), 0o644))

	t.Setenv("TRACKING_MIXPANEL_TOKEN", "from-env")
	t.Cleanup(func() { os.Unsetenv("TRACKING_META_ID") })

	tokens, err := config.LoadTokens(envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-env", tokens.MixpanelToken)
	assert.Equal(t, "pixel-1", tokens.MetaID)
	assert.Empty(t, tokens.GA4ID)
}

func TestLoadTokens_MissingFile(t *testing.T) {
	_, err := config.LoadTokens(filepath.Join(t.TempDir(), "nope.env"))
	require.Error(t, err)
}
