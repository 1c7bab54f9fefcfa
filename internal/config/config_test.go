package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "https://api.calemly.com", cfg.APIBaseURL)
	assert.Equal(t, DisplayInline, cfg.DisplayMode)
	assert.Equal(t, 45*time.Second, cfg.SlotCacheTTL)
	assert.Equal(t, 7, cfg.SlotWindowDays)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.False(t, cfg.AutoWidgetToken)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CALEMLY_EMBED_KEY", "emb_live_1")
	t.Setenv("CALEMLY_SLOT_CACHE_TTL", "90s")
	t.Setenv("CALEMLY_SLOT_WINDOW_DAYS", "14")
	t.Setenv("CALEMLY_AUTO_WIDGET_TOKEN", "true")
	t.Setenv("CALEMLY_DISPLAY_MODE", "modal")

	cfg := Load()
	assert.Equal(t, "emb_live_1", cfg.EmbedKey)
	assert.Equal(t, 90*time.Second, cfg.SlotCacheTTL)
	assert.Equal(t, 14, cfg.SlotWindowDays)
	assert.True(t, cfg.AutoWidgetToken)
	assert.Equal(t, DisplayModal, cfg.DisplayMode)
}

func TestValidate(t *testing.T) {
	valid := &Config{
		APIBaseURL:     "https://api.calemly.com",
		EmbedKey:       "emb_1",
		DisplayMode:    DisplayInline,
		SlotWindowDays: 7,
	}
	require.NoError(t, valid.Validate())

	noContext := *valid
	noContext.EmbedKey = ""
	assert.Error(t, noContext.Validate())

	slugOnly := noContext
	slugOnly.EventSlug = "intro-call"
	assert.NoError(t, slugOnly.Validate())
	assert.True(t, slugOnly.SingleEvent())

	badMode := *valid
	badMode.DisplayMode = "popup"
	assert.Error(t, badMode.Validate())

	badWindow := *valid
	badWindow.SlotWindowDays = 0
	assert.Error(t, badWindow.Validate())
}
