package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/satishbabariya/batis-go/mapping"
)

var AppFs = afero.NewOsFs()

// FileName is the config file name without extension.
const FileName = ".batis"

// Config holds the CLI configuration
type Config struct {
	Provider    string            `mapstructure:"provider"`
	DatabaseURL string            `mapstructure:"database_url"`
	Mappers     string            `mapstructure:"mappers"`
	Settings    map[string]string `mapstructure:"settings"`
	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// Load reads the configuration. An explicit path must exist; otherwise
// .batis.yaml is looked up in the working directory, $HOME and
// $HOME/.config/batis. Environment variables prefixed with BATIS_ and the
// .env files of the working directory override file values.
func Load(path string) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetFs(AppFs)
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "batis"))
	}

	v.SetEnvPrefix("BATIS")
	v.AutomaticEnv()
	v.SetDefault("provider", "")
	v.SetDefault("database_url", "")
	v.SetDefault("mappers", "mappers")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if _, err := cfg.MappingSettings(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv() {
	// Missing or unreadable .env files are not an error.
	if _, err := AppFs.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	if _, err := AppFs.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}
}

// MappingSettings validates the settings section.
func (c *Config) MappingSettings() (mapping.Settings, error) {
	return mapping.ApplySettings(c.Settings)
}

// Save writes cfg as YAML to path. The database url is left out; it
// belongs in .env.
func Save(cfg *Config, path string) error {
	v := viper.New()
	v.SetFs(AppFs)
	v.Set("provider", cfg.Provider)
	v.Set("mappers", cfg.Mappers)
	if len(cfg.Settings) > 0 {
		v.Set("settings", cfg.Settings)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := AppFs.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return v.WriteConfigAs(path)
}
