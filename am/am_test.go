package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/attackls/errors"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "short", cfg.Attack.Description)
	assert.Equal(t, "id-name", cfg.Attack.CompletionFormat)
	assert.Equal(t, 5, cfg.Attack.MinTermLength)
	assert.Equal(t, 3, cfg.Attack.MaxDescriptionMatches)
	assert.False(t, cfg.Attack.Debug)
	assert.Equal(t, DefaultDatasetPath, cfg.Dataset.Path)
	assert.Equal(t, TransportStdio, cfg.Server.Transport)
	assert.Contains(t, cfg.Server.AllowedOrigins, "http://localhost")
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[attack]
description = "long"
completion_format = "id-fullname"

[server]
transport = "websocket"
address = "127.0.0.1:9000"
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "long", cfg.Attack.Description)
	assert.Equal(t, "id-fullname", cfg.Attack.CompletionFormat)
	assert.Equal(t, 5, cfg.Attack.MinTermLength, "unset keys keep defaults")
	assert.Equal(t, TransportWebSocket, cfg.Server.Transport)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
}

func TestLoad_Cascade(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	explicit := filepath.Join(dir, "explicit.toml")
	require.NoError(t, os.WriteFile(explicit, []byte(`
[attack]
description = "link"
min_term_length = 4
`), 0644))

	t.Setenv("ATTACKLS_ATTACK_MIN_TERM_LENGTH", "7")
	t.Setenv("ATTACKLS_DATASET", "/data/enterprise-attack.json")

	SetConfigFile(explicit)
	defer func() {
		SetConfigFile("")
		Reset()
	}()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "link", cfg.Attack.Description, "file overrides defaults")
	assert.Equal(t, 7, cfg.Attack.MinTermLength, "env overrides files")
	assert.Equal(t, "/data/enterprise-attack.json", cfg.Dataset.Path)
	assert.Contains(t, ConfigFiles(), explicit)

	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, cfg, again, "Load caches until Reset")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "bad description mode", mutate: func(c *Config) { c.Attack.Description = "full" }, wantErr: true},
		{name: "bad completion format", mutate: func(c *Config) { c.Attack.CompletionFormat = "name-id" }, wantErr: true},
		{name: "zero min term length", mutate: func(c *Config) { c.Attack.MinTermLength = 0 }, wantErr: true},
		{name: "zero description matches", mutate: func(c *Config) { c.Attack.MaxDescriptionMatches = 0 }, wantErr: true},
		{name: "empty dataset", mutate: func(c *Config) { c.Dataset.Path = "" }, wantErr: true},
		{name: "unknown transport", mutate: func(c *Config) { c.Server.Transport = "pipe" }, wantErr: true},
		{name: "tcp without address", mutate: func(c *Config) {
			c.Server.Transport = TransportTCP
			c.Server.Address = ""
		}, wantErr: true},
		{name: "stdio ignores address", mutate: func(c *Config) { c.Server.Address = "" }},
		{name: "negative rate limit", mutate: func(c *Config) { c.Server.RateLimit = -1 }, wantErr: true},
		{name: "rate limit without burst", mutate: func(c *Config) {
			c.Server.RateLimit = 5
			c.Server.RateBurst = 0
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
				assert.NotEmpty(t, errors.GetAllHints(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecodeSettings(t *testing.T) {
	base := defaultConfig(t).Attack

	got, err := DecodeSettings(map[string]any{
		"attack": map[string]any{
			"description":      "long",
			"completionFormat": "id",
			"debug":            true,
			"minTermLength":    "3",
		},
	}, base)
	require.NoError(t, err)
	assert.Equal(t, "long", got.Description)
	assert.Equal(t, "id", got.CompletionFormat)
	assert.True(t, got.Debug)
	assert.Equal(t, 3, got.MinTermLength)
	assert.Equal(t, base.MaxDescriptionMatches, got.MaxDescriptionMatches)

	// bare section
	got, err = DecodeSettings(map[string]any{"description": "link"}, base)
	require.NoError(t, err)
	assert.Equal(t, "link", got.Description)
	assert.Equal(t, base.CompletionFormat, got.CompletionFormat)

	got, err = DecodeSettings(nil, base)
	require.NoError(t, err)
	assert.Equal(t, base, got)
}

func TestDecodeSettings_Invalid(t *testing.T) {
	base := defaultConfig(t).Attack

	got, err := DecodeSettings(map[string]any{"attack": map[string]any{"description": "verbose"}}, base)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
	assert.Equal(t, base, got, "invalid settings leave the base untouched")

	_, err = DecodeSettings("long", base)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = DecodeSettings(map[string]any{"debug": "maybe"}, base)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestSetValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".attackls", "am.toml")

	require.NoError(t, SetValue(path, "attack.min_term_length", "4"))
	require.NoError(t, SetValue(path, "attack.completion_format", "id-fullname"))
	require.NoError(t, SetValue(path, "server.allowed_origins", `["http://localhost"]`))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Attack.MinTermLength)
	assert.Equal(t, "id-fullname", cfg.Attack.CompletionFormat)
	assert.Equal(t, []string{"http://localhost"}, cfg.Server.AllowedOrigins)

	assert.FileExists(t, path+".back1")
	assert.FileExists(t, path+".back2")
}

func TestSetValue_Rejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")

	err := SetValue(path, "attack.colour", "red")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))

	err = SetValue(path, "attack", "long")
	require.Error(t, err, "sections are not values")

	err = SetValue(path, "attack.description", "verbose")
	require.Error(t, err)
	assert.NoFileExists(t, path, "invalid values are never written")
}

func TestIsBackupFile(t *testing.T) {
	assert.True(t, isBackupFile("/home/u/.attackls/am.toml.back1"))
	assert.False(t, isBackupFile("/home/u/.attackls/am.toml"))
}

func TestConfigWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[attack]\ndescription = \"short\"\n"), 0644))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer cw.Stop()

	cw.debouncePeriod = 10 * time.Millisecond
	cw.loader = func() (*Config, error) { return LoadFromFile(path) }

	reloaded := make(chan *Config, 4)
	cw.OnReload(func(cfg *Config) error {
		reloaded <- cfg
		return nil
	})
	cw.Start()

	require.NoError(t, os.WriteFile(path, []byte("[attack]\ndescription = \"long\"\n"), 0644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			// a reload may observe the truncated file first
			if cfg.Attack.Description == "long" {
				return
			}
		case <-deadline:
			t.Fatal("config reload was not observed")
		}
	}
}

func TestConfigWatcher_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[attack]\ndescription = \"verbose\"\n"), 0644))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer cw.Stop()
	cw.loader = func() (*Config, error) { return LoadFromFile(path) }

	called := false
	cw.OnReload(func(*Config) error {
		called = true
		return nil
	})

	require.Error(t, cw.reload())
	assert.False(t, called)
}

func TestNewConfigWatcher_Errors(t *testing.T) {
	_, err := NewConfigWatcher()
	require.Error(t, err)

	_, err = NewConfigWatcher(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
