package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brunoscheufler/notekeeper/constants"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from defaults, an
// optional notekeeper.yaml, NOTEKEEPER_* environment variables and flags.
type Config struct {
	Server struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"server"`
	HTTP struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"http"`
	Storage struct {
		// Path of the SQLite file; empty keeps state in memory only
		Path string `mapstructure:"path"`
	} `mapstructure:"storage"`
	UI struct {
		Theme string `mapstructure:"theme"`
	} `mapstructure:"ui"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Status struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"status"`
	Serve struct {
		Addr     string        `mapstructure:"addr"`
		Secret   string        `mapstructure:"secret"`
		TokenTTL time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"serve"`

	// ConfigFile is the file that was read, if any
	ConfigFile string `mapstructure:"-"`
}

// flagKeys maps global flag names to configuration keys
var flagKeys = map[string]string{
	"server":    "server.url",
	"timeout":   "http.timeout",
	"db":        "storage.path",
	"theme":     "ui.theme",
	"log-level": "log.level",
}

// Load builds the configuration from args, which holds the global flags
// followed by the command. It returns the arguments left after the global
// flags.
func Load(args []string) (Config, []string, error) {
	fs := flag.NewFlagSet(constants.AppName, flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to a configuration file")
	fs.String("server", constants.DefaultServerURL, "Base URL of the notes backend")
	fs.Duration("timeout", constants.DefaultHTTPTimeout, "Timeout for backend requests (0 disables it)")
	fs.String("db", defaultStoragePath(), "Path of the local database (empty for in-memory)")
	fs.String("theme", "dark", "Theme for the interactive UI (dark or light)")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(strings.ToUpper(constants.AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
	} else {
		v.SetConfigName(constants.AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, constants.AppName))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if *configFile != "" || !errors.As(err, &notFound) {
			return Config{}, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Only flags given on the command line override lower layers
	fs.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			v.Set(key, f.Value.String())
		}
	})

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}

	return cfg, fs.Args(), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.url", constants.DefaultServerURL)
	v.SetDefault("http.timeout", constants.DefaultHTTPTimeout)
	v.SetDefault("storage.path", defaultStoragePath())
	v.SetDefault("ui.theme", "dark")
	v.SetDefault("log.level", "info")
	v.SetDefault("status.ttl", constants.DefaultStatusTTL)
	v.SetDefault("serve.addr", constants.DefaultServeAddr)
	v.SetDefault("serve.secret", "")
	v.SetDefault("serve.token_ttl", constants.DefaultTokenTTL)
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return constants.DatabaseFileName
	}
	return filepath.Join(dir, constants.AppName, constants.DatabaseFileName)
}

func (c Config) Validate() error {
	if c.Server.URL == "" {
		return errors.New("server.url must not be empty")
	}
	if !strings.HasPrefix(c.Server.URL, "http://") && !strings.HasPrefix(c.Server.URL, "https://") {
		return fmt.Errorf("server.url must be an http(s) URL, got %q", c.Server.URL)
	}
	if c.HTTP.Timeout < 0 {
		return errors.New("http.timeout must not be negative")
	}
	if c.Status.TTL < 0 {
		return errors.New("status.ttl must not be negative")
	}
	switch c.UI.Theme {
	case "dark", "light":
	default:
		return fmt.Errorf("ui.theme must be dark or light, got %q", c.UI.Theme)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	if c.Serve.TokenTTL <= 0 {
		return errors.New("serve.token_ttl must be positive")
	}
	return nil
}
