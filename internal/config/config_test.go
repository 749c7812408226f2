// File: internal/config/config_test.go
package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	// Neutralize the legacy aliases; an empty value counts as unset.
	t.Setenv("APP_URL", "")
	t.Setenv("IDXWAKE_AUTH_APP_URL", "")

	cfg, err := NewDefaultConfig()
	require.NoError(t, err)

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "idxwake", cfg.Logger.ServiceName)
	assert.Equal(t, "firefox", cfg.Browser.Engine)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 30*time.Second, cfg.Network.NavigationTimeout)
	assert.Equal(t, "https://idx.google.com/app-43646734", cfg.Auth.AppURL)
	assert.Equal(t, "idx.google.com", cfg.Auth.HostMarker)
	assert.Equal(t, "signin", cfg.Auth.SigninMarker)
	assert.Equal(t, "google_cookies.json", cfg.Auth.CookieFile)
	assert.Equal(t, 5, cfg.Readiness.MaxReloadAttempts)
	assert.Equal(t, 120*time.Second, cfg.Readiness.TotalBudget)
	assert.Equal(t, 5*time.Second, cfg.Readiness.PollInterval)
	assert.Equal(t, "Web", cfg.Readiness.WebButtonText)
	assert.Equal(t, "Starting server", cfg.Readiness.ServerHeading)
	assert.Equal(t, "#iframe-container", cfg.Readiness.FrameContainer)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Helper()
		cfg, err := NewDefaultConfig()
		require.NoError(t, err)
		return cfg
	}

	t.Run("should accept the defaults", func(t *testing.T) {
		assert.NoError(t, valid(t).Validate())
	})

	t.Run("should reject an unknown logger format", func(t *testing.T) {
		cfg := valid(t)
		cfg.Logger.Format = "xml"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger.format")
	})

	t.Run("should reject an unknown engine", func(t *testing.T) {
		cfg := valid(t)
		cfg.Browser.Engine = "netscape"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.engine")
	})

	t.Run("should reject a degenerate viewport", func(t *testing.T) {
		cfg := valid(t)
		cfg.Browser.Viewport.Width = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "viewport")
	})

	t.Run("should reject an empty host marker", func(t *testing.T) {
		cfg := valid(t)
		cfg.Auth.HostMarker = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth.host_marker")
	})

	t.Run("should reject zero reload attempts", func(t *testing.T) {
		cfg := valid(t)
		cfg.Readiness.MaxReloadAttempts = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_reload_attempts")
	})

	t.Run("should not require a credential", func(t *testing.T) {
		// The command handles the missing credential with guidance text;
		// validation must not turn it into a config error.
		cfg := valid(t)
		cfg.Auth.Credentials = ""
		assert.NoError(t, cfg.Validate())
	})
}

// -- Credential Parsing Tests --

func TestParseCredential(t *testing.T) {
	testCases := []struct {
		name           string
		raw            string
		wantIdentifier string
		wantSecret     string
		wantErr        bool
	}{
		{name: "plain pair", raw: "user@example.com secret123", wantIdentifier: "user@example.com", wantSecret: "secret123"},
		{name: "secret keeps spaces", raw: "user@example.com my secret phrase", wantIdentifier: "user@example.com", wantSecret: "my secret phrase"},
		{name: "surrounding whitespace trimmed", raw: "  user@example.com secret123\n", wantIdentifier: "user@example.com", wantSecret: "secret123"},
		{name: "empty input", raw: "", wantErr: true},
		{name: "whitespace only", raw: "   ", wantErr: true},
		{name: "single token", raw: "user@example.com", wantErr: true},
		{name: "blank secret", raw: "user@example.com   ", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cred, err := ParseCredential(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				assert.Zero(t, cred)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantIdentifier, cred.Identifier)
			assert.Equal(t, tc.wantSecret, cred.Secret)
		})
	}
}

func TestAuthConfigCredential(t *testing.T) {
	a := AuthConfig{Credentials: "user@example.com secret123"}
	cred, err := a.Credential()
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", cred.Identifier)
	assert.Equal(t, "secret123", cred.Secret)
}

// -- Environment and File Loading Tests --

// newEnvAwareViper mirrors the wiring the root command performs.
func newEnvAwareViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("IDXWAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func TestEnvOverrides(t *testing.T) {
	t.Run("should apply prefixed environment overrides", func(t *testing.T) {
		t.Setenv("IDXWAKE_AUTH_HOST_MARKER", "workstation.example.dev")
		t.Setenv("IDXWAKE_READINESS_MAX_RELOAD_ATTEMPTS", "9")

		cfg, err := NewConfigFromViper(newEnvAwareViper())
		require.NoError(t, err)
		assert.Equal(t, "workstation.example.dev", cfg.Auth.HostMarker)
		assert.Equal(t, 9, cfg.Readiness.MaxReloadAttempts)
	})

	t.Run("should read the credential from the legacy variable", func(t *testing.T) {
		t.Setenv("GOOGLE_PW", "user@example.com secret123")

		cfg, err := NewConfigFromViper(newEnvAwareViper())
		require.NoError(t, err)
		cred, err := cfg.Auth.Credential()
		require.NoError(t, err)
		assert.Equal(t, "user@example.com", cred.Identifier)
	})

	t.Run("should prefer the prefixed credential over the legacy one", func(t *testing.T) {
		t.Setenv("IDXWAKE_AUTH_CREDENTIALS", "new@example.com newsecret")
		t.Setenv("GOOGLE_PW", "old@example.com oldsecret")

		cfg, err := NewConfigFromViper(newEnvAwareViper())
		require.NoError(t, err)
		cred, err := cfg.Auth.Credential()
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", cred.Identifier)
	})

	t.Run("should read the target URL from the legacy variable", func(t *testing.T) {
		t.Setenv("APP_URL", "https://idx.google.com/app-99999999")

		cfg, err := NewConfigFromViper(newEnvAwareViper())
		require.NoError(t, err)
		assert.Equal(t, "https://idx.google.com/app-99999999", cfg.Auth.AppURL)
	})
}

func TestYAMLDurations(t *testing.T) {
	yml := `
network:
  navigation_timeout: 45s
readiness:
  total_budget: 4m
  poll_interval: 250ms
`
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yml)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Network.NavigationTimeout)
	assert.Equal(t, 4*time.Minute, cfg.Readiness.TotalBudget)
	assert.Equal(t, 250*time.Millisecond, cfg.Readiness.PollInterval)
}

func TestNormalizeExpandsHome(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("auth.cookie_file", "~/jars/google_cookies.json")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(cfg.Auth.CookieFile, "~"), "the home shorthand should be expanded")
	assert.True(t, strings.HasSuffix(cfg.Auth.CookieFile, "jars/google_cookies.json"))
}

// -- Fuzzing --

// FuzzParseCredential checks the parser invariants hold for arbitrary input:
// accepted credentials always carry a space-free identifier and a non-blank
// secret.
func FuzzParseCredential(f *testing.F) {
	f.Add([]byte("user@example.com secret123"))
	f.Add([]byte("user@example.com my secret phrase"))
	f.Add([]byte("loneword"))
	f.Add([]byte("   "))

	f.Fuzz(func(t *testing.T, data []byte) {
		fc := fuzz.NewConsumer(data)
		raw, err := fc.GetString()
		if err != nil {
			return
		}

		cred, err := ParseCredential(raw)
		if err != nil {
			return
		}
		if cred.Identifier == "" {
			t.Fatalf("accepted credential with empty identifier from %q", raw)
		}
		if strings.ContainsRune(cred.Identifier, ' ') {
			t.Fatalf("identifier %q contains a space", cred.Identifier)
		}
		if strings.TrimSpace(cred.Secret) == "" {
			t.Fatalf("accepted credential with blank secret from %q", raw)
		}
	})
}
