// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// RegistryArtifactory is a JFrog Artifactory generic repository.
	RegistryArtifactory RegistryKind = "artifactory"
	// RegistryS3 is an S3-compatible bucket.
	RegistryS3 RegistryKind = "s3"

	// ChecksumLenient warns about checksum mismatches and keeps the artifact.
	ChecksumLenient = "lenient"
	// ChecksumStrict rejects artifacts whose checksum does not match.
	ChecksumStrict = "strict"
)

// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
var ErrInvalidConfig = errors.New("invalid config")

// validate checks the struct tags below plus the registry rules in validateRegistry.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		return name
	})
	validate.RegisterStructValidation(validateRegistry, RegistryConfig{})
	validate.RegisterStructValidation(validateRegistries, Config{})
}

type (
	// RegistryKind selects the remote implementation.
	RegistryKind string

	// AuthConfig holds registry credentials. For S3 they are the access and secret keys.
	AuthConfig struct {
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	}

	// RegistryConfig describes one remote.
	RegistryConfig struct {
		// Name is the Artifactory repository key, or a label for S3 remotes.
		Name     string       `mapstructure:"name" validate:"required"`
		Kind     RegistryKind `mapstructure:"kind" validate:"omitempty,oneof=artifactory s3"`
		BaseURL  string       `mapstructure:"base_url" validate:"omitempty,url"`
		Pattern  string       `mapstructure:"pattern"`
		Bucket   string       `mapstructure:"bucket"`
		Region   string       `mapstructure:"region"`
		Endpoint string       `mapstructure:"endpoint" validate:"omitempty,url"`
		Auth     AuthConfig   `mapstructure:"auth"`
	}

	// CMakeConfig holds settings passed to every CMake build.
	CMakeConfig struct {
		ConfigureCommand string            `mapstructure:"configure_command"`
		Definitions      map[string]string `mapstructure:"definitions"`
	}

	// ToolchainConfig groups the toolchain settings.
	ToolchainConfig struct {
		CMake CMakeConfig `mapstructure:"cmake"`
	}

	// UIConfig controls terminal output.
	UIConfig struct {
		Verbose bool `mapstructure:"verbose"`
	}

	// Config is the application configuration.
	Config struct {
		// Registries are queried in order; the first one that has a package wins.
		Registries []RegistryConfig `mapstructure:"registries" validate:"dive"`
		Toolchain  ToolchainConfig  `mapstructure:"toolchain"`
		// CacheDir defaults to ~/.parcel/cache.
		CacheDir string `mapstructure:"cache_dir"`
		// IndexDir holds the persisted registry listings; defaults to ~/.parcel/index.
		IndexDir       string   `mapstructure:"index_dir"`
		ChecksumPolicy string   `mapstructure:"checksum_policy" validate:"oneof=lenient strict"`
		MetricsFile    string   `mapstructure:"metrics_file"`
		UI             UIConfig `mapstructure:"ui"`
	}

	// InvalidConfigError is returned when a decoded configuration breaks a rule.
	InvalidConfigError struct {
		Problems []string
	}
)

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid config: " + e.Problems[0]
	}
	return "invalid config:\n  " + strings.Join(e.Problems, "\n  ")
}

// Unwrap returns ErrInvalidConfig so callers can use errors.Is for programmatic detection.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// EffectiveKind returns the registry kind, defaulting to Artifactory.
func (r RegistryConfig) EffectiveKind() RegistryKind {
	if r.Kind == "" {
		return RegistryArtifactory
	}
	return r.Kind
}

// Registry returns the registry named name.
func (c *Config) Registry(name string) (RegistryConfig, bool) {
	for _, r := range c.Registries {
		if r.Name == name {
			return r, true
		}
	}
	return RegistryConfig{}, false
}

// Validate checks the configuration against its validator rules.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describe(fe))
	}
	return &InvalidConfigError{Problems: problems}
}

func describe(fe validator.FieldError) string {
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", field, fe.Value())
	case "required_for_kind":
		return fmt.Sprintf("%s is required for %s registries", field, fe.Param())
	case "unique_name":
		return fmt.Sprintf("%s %q is used by more than one registry", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}

func validateRegistry(sl validator.StructLevel) {
	r, ok := sl.Current().Interface().(RegistryConfig)
	if !ok {
		return
	}
	switch r.EffectiveKind() {
	case RegistryArtifactory:
		if r.BaseURL == "" {
			sl.ReportError(r.BaseURL, "base_url", "BaseURL", "required_for_kind", string(RegistryArtifactory))
		}
	case RegistryS3:
		if r.Bucket == "" {
			sl.ReportError(r.Bucket, "bucket", "Bucket", "required_for_kind", string(RegistryS3))
		}
	}
}

func validateRegistries(sl validator.StructLevel) {
	c, ok := sl.Current().Interface().(Config)
	if !ok {
		return
	}
	seen := make(map[string]bool, len(c.Registries))
	for i, r := range c.Registries {
		if seen[r.Name] {
			sl.ReportError(r.Name, fmt.Sprintf("registries[%d].name", i), "Name", "unique_name", "")
		}
		seen[r.Name] = true
	}
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Toolchain: ToolchainConfig{
			CMake: CMakeConfig{ConfigureCommand: "cmake", Definitions: map[string]string{}},
		},
		ChecksumPolicy: ChecksumLenient,
	}
}
