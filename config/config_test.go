package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SERVER_TYPE", "")
	t.Setenv("STORE_BACKEND", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "twilio", cfg.ServerType)
	assert.Equal(t, 2*time.Second, cfg.ClassifierTimeout)
	assert.Equal(t, "+91", cfg.CountryCode)
	assert.Equal(t, 3, cfg.MaxPhoneAttempts)
	assert.Equal(t, 50000.0, cfg.DefaultBaseAmount)
	assert.Empty(t, cfg.GeminiAPIKey)
	assert.False(t, cfg.RephraseUnclear)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SERVER_TYPE", "both")
	t.Setenv("SESSION_TIMEOUT", "5")
	t.Setenv("CLASSIFIER_TIMEOUT", "1500")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("DEFAULT_BASE_AMOUNT", "72000.5")
	t.Setenv("REPHRASE_UNCLEAR", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "both", cfg.ServerType)
	assert.Equal(t, 5*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.ClassifierTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 72000.5, cfg.DefaultBaseAmount)
	assert.True(t, cfg.RephraseUnclear)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"port":        {"PORT", "eighty"},
		"server type": {"SERVER_TYPE", "sip"},
		"backend":     {"STORE_BACKEND", "mongo"},
		"attempts":    {"MAX_PHONE_ATTEMPTS", "0"},
		"rephrase":    {"REPHRASE_UNCLEAR", "sometimes"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestSupabaseRequiresCredentials(t *testing.T) {
	t.Setenv("STORE_BACKEND", "supabase")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_KEY", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_URL")
}
