package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// FileName is the name of the runtime context file searched for on startup
const FileName = "eidwallet.json"

// EnvConfigPath points at an explicit configuration file
const EnvConfigPath = "EIDWALLET_CONFIG"

// ErrNotFound is returned when no configuration file exists in the search path
var ErrNotFound = errors.New("no " + FileName + " found")

// Config represents the eidwallet.json runtime context
type Config struct {
	Identifier  string        `json:"identifier" validate:"required,fqdn"`
	ProductName string        `json:"productName" validate:"required"`
	Version     string        `json:"version" validate:"required,semver"`
	Platform    string        `json:"platform" validate:"omitempty,oneof=auto desktop mobile"`
	DataDir     string        `json:"dataDir"`
	IPC         IPCConfig     `json:"ipc"`
	Plugins     PluginsConfig `json:"plugins"`
	Permissions []string      `json:"permissions"`
	// Simulate backs the mobile-only plugins with in-process simulators
	Simulate bool `json:"simulate"`
}

// IPCConfig configures the bridge the web UI connects to
type IPCConfig struct {
	Address        string   `json:"address" validate:"required,hostname_port"`
	AllowedOrigins []string `json:"allowedOrigins"`
	// Workers is the number of bridge actors serving invoke requests
	Workers  int  `json:"workers" validate:"min=1,max=64"`
	Disabled bool `json:"disabled"`
}

// PluginsConfig holds plugin-specific settings
type PluginsConfig struct {
	Store    StoreConfig    `json:"store"`
	DeepLink DeepLinkConfig `json:"deep-link"`
	Opener   OpenerConfig   `json:"opener"`
}

// StoreConfig configures the key-value store plugin
type StoreConfig struct {
	// Path of the database file, relative to DataDir unless absolute
	Path string `json:"path"`
	// DefaultStore is used when a call names no store
	DefaultStore string `json:"defaultStore"`
}

// DeepLinkConfig configures the deep-link plugin
type DeepLinkConfig struct {
	Desktop DeepLinkSchemes `json:"desktop"`
	Mobile  []MobileDomain  `json:"mobile"`
	// Inbox is the directory running instances watch for handed-off URLs.
	// Empty after defaults disables the watcher.
	Inbox string `json:"inbox"`
}

// DeepLinkSchemes lists the custom URL schemes handled on desktop
type DeepLinkSchemes struct {
	Schemes []string `json:"schemes" validate:"dive,required,alphanum"`
}

// MobileDomain is an app-link/universal-link domain handled on mobile
type MobileDomain struct {
	Host       string   `json:"host" validate:"required,hostname"`
	PathPrefix []string `json:"pathPrefix"`
}

// OpenerConfig configures the opener plugin
type OpenerConfig struct {
	// AllowedSchemes extends the schemes open_url accepts
	AllowedSchemes []string `json:"allowedSchemes"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads the configuration from EIDWALLET_CONFIG, or from
// eidwallet.json in the current directory or a parent directory. When no
// file exists the defaults are returned together with an empty directory.
func LoadConfig() (*Config, string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		cfg, err := LoadConfigFromPath(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, filepath.Dir(path), nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	cfg, root, err := loadConfigFromDir(dir)
	if errors.Is(err, ErrNotFound) {
		return Default(), "", nil
	}
	return cfg, root, err
}

// LoadConfigFromPath loads the configuration from a specific path
func LoadConfigFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the configuration after defaults are applied
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid config: field %s failed %q validation", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// StorePath returns the absolute path of the store database
func (c *Config) StorePath() string {
	if filepath.IsAbs(c.Plugins.Store.Path) {
		return c.Plugins.Store.Path
	}
	return filepath.Join(c.DataDir, c.Plugins.Store.Path)
}

// InboxDir returns the absolute path of the deep-link inbox directory
func (c *Config) InboxDir() string {
	if filepath.IsAbs(c.Plugins.DeepLink.Inbox) {
		return c.Plugins.DeepLink.Inbox
	}
	return filepath.Join(c.DataDir, c.Plugins.DeepLink.Inbox)
}

// PluginSettings renders the per-plugin settings handed to plugin factories
func (c *Config) PluginSettings() (map[string]json.RawMessage, error) {
	deepLink := c.Plugins.DeepLink
	if deepLink.Inbox != "" {
		deepLink.Inbox = c.InboxDir()
	}

	opener := c.Plugins.Opener
	opener.AllowedSchemes = append(append([]string{}, opener.AllowedSchemes...), deepLink.Desktop.Schemes...)

	settings := make(map[string]json.RawMessage, 3)
	for name, v := range map[string]any{
		"store":     c.Plugins.Store,
		"deep-link": deepLink,
		"opener":    opener,
	} {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s settings: %w", name, err)
		}
		settings[name] = data
	}
	return settings, nil
}

func (c *Config) applyDefaults() {
	if c.Identifier == "" {
		c.Identifier = "nl.dobs.eidwallet"
	}
	if c.ProductName == "" {
		c.ProductName = "eid-wallet"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
	if c.Platform == "" {
		c.Platform = "auto"
	}
	if c.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = os.TempDir()
		}
		c.DataDir = filepath.Join(base, c.Identifier)
	}
	if c.IPC.Address == "" {
		c.IPC.Address = "127.0.0.1:1420"
	}
	if c.IPC.Workers == 0 {
		c.IPC.Workers = 4
	}
	if c.Plugins.Store.Path == "" {
		c.Plugins.Store.Path = "store.db"
	}
	if c.Plugins.Store.DefaultStore == "" {
		c.Plugins.Store.DefaultStore = "settings.json"
	}
	if len(c.Plugins.DeepLink.Desktop.Schemes) == 0 {
		c.Plugins.DeepLink.Desktop.Schemes = []string{"eidwallet"}
	}
	if c.Plugins.DeepLink.Inbox == "" {
		c.Plugins.DeepLink.Inbox = "deep-link-inbox"
	}
	if len(c.Permissions) == 0 {
		c.Permissions = []string{
			"opener:default",
			"store:default",
			"deep-link:default",
			"biometric:default",
			"barcode-scanner:default",
			"crypto-hw:default",
		}
	}
}

// loadConfigFromDir searches for eidwallet.json in the given directory and its parents
func loadConfigFromDir(startDir string) (*Config, string, error) {
	dir := startDir
	for {
		configPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(configPath); err == nil {
			config, err := LoadConfigFromPath(configPath)
			if err != nil {
				return nil, "", err
			}
			return config, dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory
			break
		}
		dir = parent
	}

	return nil, "", fmt.Errorf("%w in %s or any parent directory", ErrNotFound, startDir)
}
