// Package directordconfig loads the flat YAML configuration spec.md §6
// describes, with every key also settable as a same-named command-line
// flag and an environment variable.
//
// Grounded on Quatton-qwex's pkg/qsdk/config.go (LoadConfig: an
// instance-specific viper.Viper, no global state, env prefix + automatic
// env, mapstructure-tagged fields, cobra PersistentPreRunE binding pflag
// values on top) adapted from qwexctl's single baseUrl/apiVersion surface
// to Directord's full key set.
package directordconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment-variable override, e.g.
// DIRECTORD_BIND_ADDRESS.
const EnvPrefix = "DIRECTORD"

// Config is every key spec.md §6 names.
type Config struct {
	Driver          string `mapstructure:"driver"`
	ServerAddress   string `mapstructure:"server_address"`
	BindAddress     string `mapstructure:"bind_address"`
	HeartbeatInterval int  `mapstructure:"heartbeat_interval"`
	Debug           bool   `mapstructure:"debug"`
	SocketPath      string `mapstructure:"socket_path"`
	SharedKey       string `mapstructure:"shared_key"`
	CurveEncryption bool   `mapstructure:"curve_encryption"`
	Datastore       string `mapstructure:"datastore"`
	CacheTTL        int    `mapstructure:"cache_ttl"`
	ComponentPath   string `mapstructure:"component_path"`

	v *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("driver", "grpc")
	v.SetDefault("server_address", "127.0.0.1:11001")
	v.SetDefault("bind_address", "0.0.0.0:11001")
	v.SetDefault("heartbeat_interval", 60)
	v.SetDefault("debug", false)
	v.SetDefault("socket_path", "/var/run/directord.sock")
	v.SetDefault("datastore", "memory")
	v.SetDefault("cache_ttl", 43200)
}

// Load reads cfgFile (or the conventional search path when empty), applies
// defaults, then layers environment variables and flags on top.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("directordconfig: reading %s: %w", cfgFile, err)
		}
	} else {
		for _, candidate := range searchPath() {
			if _, err := os.Stat(candidate); err == nil {
				v.SetConfigFile(candidate)
				if err := v.ReadInConfig(); err == nil {
					break
				}
			}
		}
	}

	setDefaults(v)

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("directordconfig: binding flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("directordconfig: unmarshal: %w", err)
	}
	cfg.v = v
	return &cfg, nil
}

// searchPath is the conventional lookup order: current directory, then
// ~/.config/directord/config.yaml, then /etc/directord/config.yaml.
func searchPath() []string {
	paths := []string{"directord.yaml", "directord.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home+"/.config/directord/config.yaml")
	}
	paths = append(paths, "/etc/directord/config.yaml")
	return paths
}

// Viper exposes the underlying instance for advanced lookups.
func (c *Config) Viper() *viper.Viper { return c.v }
