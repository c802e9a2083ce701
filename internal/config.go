package internal

import (
	"errors"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mystindex/internal/index"
	"github.com/starford/mystindex/internal/parser"
	"github.com/starford/mystindex/internal/workspace"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Project ProjectConfig     `yaml:"project"`
	Parsing ParsingConfig     `yaml:"parsing"`
	Index   IndexConfig       `yaml:"index"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Project.Validate(); err != nil {
		return err
	}
	if err := c.Parsing.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// ProjectConfig points at the directory of Markdown files to index.
type ProjectConfig struct {
	Root string `yaml:"root"`
	// Watch keeps the target index in step with file changes on disk.
	Watch bool `yaml:"watch"`
}

// Validate validates the project configuration.
func (c *ProjectConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// ParsingConfig selects the grammar extensions and the token kinds offered
// as folding ranges.
type ParsingConfig struct {
	Extensions        []string `yaml:"extensions"`
	FoldingTokenKinds []string `yaml:"folding_token_kinds"`
}

// Validate validates the parsing configuration.
func (c *ParsingConfig) Validate() error {
	known := make([]any, len(parser.KnownExtensions))
	for i, e := range parser.KnownExtensions {
		known[i] = e
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Extensions, validation.Each(validation.In(known...).Error("unknown extension"))),
		validation.Field(&c.FoldingTokenKinds, validation.Each(validation.By(isKindName))),
	)
}

func isKindName(v any) error {
	name, _ := v.(string)
	if _, ok := parser.ParseKind(name); !ok {
		return errors.New("unknown token kind")
	}
	return nil
}

// Workspace converts the parsing configuration for the workspace. Kind names
// must have been validated.
func (c *ParsingConfig) Workspace() workspace.Config {
	kinds := make([]parser.Kind, 0, len(c.FoldingTokenKinds))
	for _, name := range c.FoldingTokenKinds {
		if k, ok := parser.ParseKind(name); ok {
			kinds = append(kinds, k)
		}
	}
	return workspace.Config{
		Parsing:      parser.Options{Extensions: c.Extensions},
		FoldingKinds: kinds,
	}
}

// IndexConfig holds the target index database configuration.
type IndexConfig struct {
	// DSN is a go-sqlite3 data source name. The default ":memory:" keeps the
	// index for the lifetime of the process only.
	DSN string `yaml:"dsn"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DSN, validation.Required),
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Project: ProjectConfig{
			Root:  ".",
			Watch: true,
		},
		Parsing: ParsingConfig{
			Extensions: []string{parser.ExtColonFence},
			FoldingTokenKinds: []string{
				parser.KindDivOpen.String(),
				parser.KindFence.String(),
				parser.KindBlockquoteOpen.String(),
				parser.KindBulletListOpen.String(),
				parser.KindOrderedListOpen.String(),
				parser.KindFrontMatter.String(),
			},
		},
		Index: IndexConfig{
			DSN: index.MemoryDSN,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
