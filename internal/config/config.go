// Package config loads hilfmir settings from defaults, an optional
// hilfmir.yaml, HILFMIR_* environment variables and command line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pabra/hilfmir/internal/errors"
	"github.com/pabra/hilfmir/pkg/authkeys"
)

// Deployment selects how the registry is used.
type Deployment string

const (
	// DeploymentManage keeps a local registry and prints setup instructions.
	DeploymentManage Deployment = "manage"
	// DeploymentProxy runs on the proxy host and maintains authorized_keys.
	DeploymentProxy Deployment = "proxy"
)

// Settings is the resolved configuration.
type Settings struct {
	Deployment     Deployment `mapstructure:"deployment"`
	Registry       string     `mapstructure:"registry"`
	AuthorizedKeys string     `mapstructure:"authorized_keys"`
	ForcedCommand  string     `mapstructure:"forced_command"`
	Debug          bool       `mapstructure:"debug"`
}

// Strict reports whether a missing registry is an error.
func (s Settings) Strict() bool {
	return s.Deployment == DeploymentProxy
}

// flagKeys maps setting keys to the flag names that override them.
var flagKeys = map[string]string{
	"deployment":      "deployment",
	"registry":        "registry",
	"authorized_keys": "authorized-keys",
	"debug":           "debug",
}

func defaults() map[string]any {
	return map[string]any{
		"deployment":      string(DeploymentManage),
		"registry":        "",
		"authorized_keys": "",
		"forced_command":  authkeys.DefaultForcedCommand,
		"debug":           false,
	}
}

// Load resolves the settings. configFile, when not empty, replaces the
// search for hilfmir.yaml. flags may be nil.
func Load(flags *pflag.FlagSet, configFile string) (Settings, error) {
	var s Settings
	v := viper.New()

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigName("hilfmir")
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "hilfmir"))
		}
		v.AddConfigPath("/etc/hilfmir")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return s, errors.WrapWithKind(err, errors.KindConfigInvalid,
				"Could not read settings file", "Check hilfmir.yaml or the file passed with --config")
		}
	}

	v.SetEnvPrefix("hilfmir")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return s, err
			}
		}
	}

	if err := v.Unmarshal(&s); err != nil {
		return s, errors.WrapWithKind(err, errors.KindConfigInvalid, "Could not parse settings", "")
	}

	s.Deployment = Deployment(strings.ToLower(string(s.Deployment)))
	switch s.Deployment {
	case DeploymentManage, DeploymentProxy:
	default:
		return s, errors.New(errors.KindConfigInvalid,
			fmt.Sprintf("Unknown deployment %q.", s.Deployment),
			"Use 'manage' or 'proxy'")
	}

	if err := checkForcedCommand(s.ForcedCommand); err != nil {
		return s, err
	}

	if s.Registry == "" {
		s.Registry = DefaultRegistryPath(s.Deployment)
	}
	if s.AuthorizedKeys == "" {
		if home, err := os.UserHomeDir(); err == nil {
			s.AuthorizedKeys = filepath.Join(home, ".ssh", "authorized_keys")
		}
	}
	return s, nil
}

// checkForcedCommand rejects commands that cannot be written verbatim into
// an authorized_keys command="..." option.
func checkForcedCommand(command string) error {
	for _, r := range command {
		if r == '\\' || unicode.IsControl(r) {
			return errors.New(errors.KindConfigInvalid,
				fmt.Sprintf("The forced command %q contains %q.", command, r),
				"Backslashes and control characters are not allowed in forced_command")
		}
	}
	return nil
}

// DefaultRegistryPath returns the registry file next to the executable.
func DefaultRegistryPath(d Deployment) string {
	name := "manage.json"
	if d == DeploymentProxy {
		name = "proxy_conf.json"
	}
	exe, err := os.Executable()
	if err != nil {
		return name
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), name)
}
