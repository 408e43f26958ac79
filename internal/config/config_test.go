package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigFromPath(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantErr     bool
		errContains string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid config with all fields",
			content: `{
				"identifier": "nl.dobs.wallet",
				"productName": "Wallet",
				"version": "1.2.3",
				"platform": "mobile",
				"dataDir": "/var/lib/wallet",
				"ipc": {"address": "localhost:9000", "allowedOrigins": ["http://localhost:4200"]},
				"plugins": {
					"store": {"path": "/tmp/kv.db", "defaultStore": "prefs.json"},
					"deep-link": {"desktop": {"schemes": ["wallet", "did"]}, "inbox": "links"}
				},
				"permissions": ["store:default"]
			}`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "nl.dobs.wallet", cfg.Identifier)
				assert.Equal(t, "mobile", cfg.Platform)
				assert.Equal(t, "localhost:9000", cfg.IPC.Address)
				assert.Equal(t, "/tmp/kv.db", cfg.StorePath())
				assert.Equal(t, filepath.Join("/var/lib/wallet", "links"), cfg.InboxDir())
				assert.Equal(t, []string{"wallet", "did"}, cfg.Plugins.DeepLink.Desktop.Schemes)
				assert.Equal(t, []string{"store:default"}, cfg.Permissions)
			},
		},
		{
			name:    "empty object gets defaults",
			content: `{"dataDir": "/data"}`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "nl.dobs.eidwallet", cfg.Identifier)
				assert.Equal(t, "0.1.0", cfg.Version)
				assert.Equal(t, "auto", cfg.Platform)
				assert.Equal(t, "127.0.0.1:1420", cfg.IPC.Address)
				assert.Equal(t, filepath.Join("/data", "store.db"), cfg.StorePath())
				assert.Equal(t, "settings.json", cfg.Plugins.Store.DefaultStore)
				assert.Equal(t, []string{"eidwallet"}, cfg.Plugins.DeepLink.Desktop.Schemes)
				assert.Contains(t, cfg.Permissions, "deep-link:default")
			},
		},
		{
			name:        "invalid json",
			content:     `{"identifier": `,
			wantErr:     true,
			errContains: "failed to parse config file",
		},
		{
			name:        "invalid platform",
			content:     `{"platform": "watch"}`,
			wantErr:     true,
			errContains: "Platform",
		},
		{
			name:        "invalid version",
			content:     `{"version": "latest"}`,
			wantErr:     true,
			errContains: "semver",
		},
		{
			name:        "invalid address",
			content:     `{"ipc": {"address": "no-port"}}`,
			wantErr:     true,
			errContains: "hostname_port",
		},
		{
			name:        "invalid scheme",
			content:     `{"plugins": {"deep-link": {"desktop": {"schemes": ["bad scheme"]}}}}`,
			wantErr:     true,
			errContains: "alphanum",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)

			got, err := LoadConfigFromPath(path)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			tt.check(t, got)
		})
	}
}

func TestLoadConfigFromPath_Missing(t *testing.T) {
	_, err := LoadConfigFromPath(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfigFromDir(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"productName": "Parent"}`)

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	cfg, dir, err := loadConfigFromDir(nested)
	require.NoError(t, err)
	assert.Equal(t, root, dir)
	assert.Equal(t, "Parent", cfg.ProductName)
}

func TestLoadConfigFromDir_NotFound(t *testing.T) {
	_, _, err := loadConfigFromDir(t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadConfig_EnvPath(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"productName": "FromEnv"}`)
	t.Setenv(EnvConfigPath, path)

	cfg, root, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "FromEnv", cfg.ProductName)
	assert.Equal(t, dir, root)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "deep-link-inbox"), cfg.InboxDir())
}

func TestPluginSettings(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/eidwallet"
	cfg.Plugins.Opener.AllowedSchemes = []string{"openid4vp"}

	settings, err := cfg.PluginSettings()
	require.NoError(t, err)
	require.Len(t, settings, 3)

	var deepLink DeepLinkConfig
	require.NoError(t, json.Unmarshal(settings["deep-link"], &deepLink))
	assert.Equal(t, filepath.Join("/var/lib/eidwallet", "deep-link-inbox"), deepLink.Inbox)
	assert.Equal(t, []string{"eidwallet"}, deepLink.Desktop.Schemes)

	var opener OpenerConfig
	require.NoError(t, json.Unmarshal(settings["opener"], &opener))
	assert.Equal(t, []string{"openid4vp", "eidwallet"}, opener.AllowedSchemes)

	var store StoreConfig
	require.NoError(t, json.Unmarshal(settings["store"], &store))
	assert.Equal(t, "store.db", store.Path)
	assert.Equal(t, "settings.json", store.DefaultStore)

	// the config itself is untouched
	assert.Equal(t, "deep-link-inbox", cfg.Plugins.DeepLink.Inbox)
	assert.Equal(t, []string{"openid4vp"}, cfg.Plugins.Opener.AllowedSchemes)
}
