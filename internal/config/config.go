// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/invowk/parcel/internal/cueutil"
	"github.com/invowk/parcel/internal/issue"

	"github.com/spf13/viper"
	"golang.org/x/exp/maps"
)

const (
	// AppName is the application name.
	AppName = "parcel"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides, e.g. PARCEL_CACHE_DIR.
	EnvPrefix = "PARCEL"
)

//go:embed config_schema.cue
var configSchema []byte

// ConfigDir returns the parcel configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string
	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(configDir, AppName), nil
}

// DataDir returns ~/.parcel, the parent of the default cache and index directories.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, "."+AppName), nil
}

// ConfigFilePath returns the path of config.cue inside ConfigDir.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// loadWithOptions performs option-driven config loading and returns the file
// actually used, or "" when only defaults and the environment apply.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""
	switch {
	case opts.ConfigFilePath != "":
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'parcel config show' to see the default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	default:
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}
		if p := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt); fileExists(p) {
			resolvedPath = p
		} else if local := ConfigFileName + "." + ConfigFileExt; fileExists(local) {
			resolvedPath = local
		}
	}

	var definitions map[string]string
	if resolvedPath != "" {
		var err error
		if definitions, err = loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if definitions != nil {
		cfg.Toolchain.CMake.Definitions = definitions
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithIssue(issue.ConfigLoadFailedId).
			WithSuggestion("Artifactory registries need a base_url, S3 registries need a bucket").
			WithSuggestion("Registry names must be unique").
			Wrap(err).
			BuildError()
	}
	return &cfg, resolvedPath, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, defaults *Config) {
	v.SetDefault("registries", defaults.Registries)
	v.SetDefault("toolchain.cmake.configure_command", defaults.Toolchain.CMake.ConfigureCommand)
	v.SetDefault("toolchain.cmake.definitions", defaults.Toolchain.CMake.Definitions)
	v.SetDefault("cache_dir", defaults.CacheDir)
	v.SetDefault("index_dir", defaults.IndexDir)
	v.SetDefault("checksum_policy", defaults.ChecksumPolicy)
	v.SetDefault("metrics_file", defaults.MetricsFile)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
}

func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

// loadCUEIntoViper validates a CUE file against #Config and merges it into v.
// Fields are optional, so the document is decoded without requiring
// concreteness. The CMake definitions are returned separately with their
// original case: MergeConfigMap lower-cases every key of the map it is given,
// and CMake variables are case sensitive.
func loadCUEIntoViper(v *viper.Viper, path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	decoded, err := cueutil.ParseAndDecode[map[string]any](configSchema, data, "#Config",
		cueutil.WithFilename(path),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return nil, err
	}
	definitions := cmakeDefinitions(*decoded)
	if err := v.MergeConfigMap(*decoded); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}
	return definitions, nil
}

// cmakeDefinitions copies toolchain.cmake.definitions out of the decoded file.
// It returns nil when the file does not set them.
func cmakeDefinitions(raw map[string]any) map[string]string {
	tc, _ := raw["toolchain"].(map[string]any)
	cm, _ := tc["cmake"].(map[string]any)
	defs, ok := cm["definitions"].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(defs))
	for k, v := range defs {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(cfgDir, 0o755)
}

// CreateDefaultConfig writes a default config file unless one exists, and
// returns its path.
func CreateDefaultConfig() (string, error) {
	cfgPath, err := ConfigFilePath()
	if err != nil {
		return "", err
	}
	if fileExists(cfgPath) {
		return cfgPath, nil
	}
	return cfgPath, Save(DefaultConfig())
}

// Save writes cfg to the config file, replacing it.
func Save(cfg *Config) error {
	cfgPath, err := ConfigFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(cfg)), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateCUE renders cfg as a config.cue document.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// Parcel Configuration File\n")
	sb.WriteString("// Registries are queried in order; the first one providing a package wins.\n\n")

	if len(cfg.Registries) == 0 {
		sb.WriteString("registries: []\n")
	} else {
		sb.WriteString("registries: [\n")
		for _, r := range cfg.Registries {
			sb.WriteString("\t{\n")
			fmt.Fprintf(&sb, "\t\tname: %q\n", r.Name)
			fmt.Fprintf(&sb, "\t\tkind: %q\n", r.EffectiveKind())
			writeOptional(&sb, "\t\t", "base_url", r.BaseURL)
			writeOptional(&sb, "\t\t", "pattern", r.Pattern)
			writeOptional(&sb, "\t\t", "bucket", r.Bucket)
			writeOptional(&sb, "\t\t", "region", r.Region)
			writeOptional(&sb, "\t\t", "endpoint", r.Endpoint)
			if r.Auth != (AuthConfig{}) {
				sb.WriteString("\t\tauth: {\n")
				writeOptional(&sb, "\t\t\t", "username", r.Auth.Username)
				writeOptional(&sb, "\t\t\t", "password", r.Auth.Password)
				sb.WriteString("\t\t}\n")
			}
			sb.WriteString("\t},\n")
		}
		sb.WriteString("]\n")
	}

	sb.WriteString("\ntoolchain: cmake: {\n")
	fmt.Fprintf(&sb, "\tconfigure_command: %q\n", cfg.Toolchain.CMake.ConfigureCommand)
	if defs := cfg.Toolchain.CMake.Definitions; len(defs) > 0 {
		sb.WriteString("\tdefinitions: {\n")
		keys := maps.Keys(defs)
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "\t\t%q: %q\n", k, defs[k])
		}
		sb.WriteString("\t}\n")
	}
	sb.WriteString("}\n\n")

	writeOptional(&sb, "", "cache_dir", cfg.CacheDir)
	writeOptional(&sb, "", "index_dir", cfg.IndexDir)
	fmt.Fprintf(&sb, "checksum_policy: %q\n", cfg.ChecksumPolicy)
	writeOptional(&sb, "", "metrics_file", cfg.MetricsFile)

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}

func writeOptional(sb *strings.Builder, indent, key, value string) {
	if value != "" {
		fmt.Fprintf(sb, "%s%s: %q\n", indent, key, value)
	}
}
