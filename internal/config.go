package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	cron "github.com/robfig/cron"

	"github.com/starford/tether/internal/companion"
	"github.com/starford/tether/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`

	Companion  CompanionConfig  `yaml:"companion"`
	Visibility VisibilityConfig `yaml:"visibility"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Companion.Validate(); err != nil {
		return err
	}
	return c.Visibility.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// CompanionConfig holds the companion note settings.
//
// NotesFolder selects the placement: empty keeps notes next to their
// source, "./name" uses a sub-folder of the source's folder, anything
// else is one central folder.
type CompanionConfig struct {
	Extensions      string   `yaml:"extensions"`
	NotesFolder     string   `yaml:"notes_folder"`
	DeclareBinding  bool     `yaml:"declare_binding"`
	HideSources     bool     `yaml:"hide_sources"`
	Template        string   `yaml:"template"`
	AutoCreate      bool     `yaml:"auto_create"`
	ExcludedPaths   []string `yaml:"excluded_paths"`
	ExcludedFolders []string `yaml:"excluded_folders"`
	TrashFolder     string   `yaml:"trash_folder"`
}

// Validate validates the companion configuration.
func (c *CompanionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Template, validation.Required),
		validation.Field(&c.NotesFolder, validation.By(vaultRelative)),
		validation.Field(&c.TrashFolder, validation.Required, validation.By(vaultRelative)),
	)
}

// Settings converts the configuration into a companion settings snapshot.
func (c *CompanionConfig) Settings() companion.Settings {
	return companion.NewSettings(companion.SettingsInput{
		Extensions:      c.Extensions,
		NotesFolder:     c.NotesFolder,
		DeclareBinding:  c.DeclareBinding,
		HideSources:     c.HideSources,
		AutoCreate:      c.AutoCreate,
		Template:        c.Template,
		ExcludedPaths:   c.ExcludedPaths,
		ExcludedFolders: c.ExcludedFolders,
	})
}

// vaultRelative rejects folders that would leave the vault.
func vaultRelative(value interface{}) error {
	s, _ := value.(string)
	s = strings.TrimPrefix(s, "./")
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(path.Clean(s), "..") {
		return errors.New("must be a folder inside the vault")
	}
	return nil
}

// VisibilityConfig holds source hiding and resync settings.
type VisibilityConfig struct {
	// Debounce is the quiet window collapsing bursts of vault events.
	Debounce time.Duration `yaml:"debounce"`
	// TreeThrottle bounds how often tree.updated is broadcast.
	TreeThrottle time.Duration `yaml:"tree_throttle"`
	// ResyncSchedule is a cron spec for the periodic resync; empty disables it.
	ResyncSchedule string `yaml:"resync_schedule"`
}

// Validate validates the visibility configuration.
func (c *VisibilityConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.TreeThrottle, validation.Min(time.Duration(0))),
		validation.Field(&c.ResyncSchedule, validation.By(func(value interface{}) error {
			spec, _ := value.(string)
			if spec == "" {
				return nil
			}
			_, err := cron.Parse(spec)
			return err
		})),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./tether.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Companion: CompanionConfig{
			Extensions:  "pdf,png,jpg,jpeg,gif,webp,svg,mp3,mp4,webm,wav",
			Template:    companion.DefaultTemplate,
			TrashFolder: storage.DefaultTrashDir,
		},
		Visibility: VisibilityConfig{
			Debounce:       500 * time.Millisecond,
			TreeThrottle:   2 * time.Second,
			ResyncSchedule: "@every 5m",
		},
	}
}
