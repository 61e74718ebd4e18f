package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/soundscribe/ml-backend/internal/templates"
	"github.com/soundscribe/ml-backend/internal/utils/pathutil"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SOUNDSCRIBE"

type Config struct {
	Environment string               `mapstructure:"environment"`
	HomeDir     string               `mapstructure:"home_dir"`
	ModelsDir   string               `mapstructure:"models_dir"`
	Workers     int                  `mapstructure:"workers"`
	Runtime     *RuntimeConfig       `mapstructure:"runtime"`
	Models      map[string]ModelSpec `mapstructure:"models"`
}

// RuntimeConfig describes how to reach (and optionally spawn) the CLAP
// inference runtime.
type RuntimeConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Timeout int    `mapstructure:"timeout"`
	Command string `mapstructure:"command"`
}

// ModelSpec maps a model identifier to its weight source and integrity data.
type ModelSpec struct {
	Source   string `mapstructure:"source"`
	Weights  string `mapstructure:"weights"`
	Checksum string `mapstructure:"checksum"`
}

var config *Config

func InitConfig() error {
	homeDir, err := getHomeDir()
	if err != nil {
		return err
	}

	modelsDir, err := getModelsDir(homeDir)
	if err != nil {
		return err
	}

	if err := createHomeDirs(homeDir); err != nil {
		return err
	}

	viper.Set("home_dir", homeDir)
	viper.Set("models_dir", modelsDir)

	envFile := filepath.Join(homeDir, ".env")
	configFile := filepath.Join(homeDir, "config.yaml")

	if _, err := os.Stat(configFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config.yaml file: %w", err)
		}

		if err := templates.WriteConfig(configFile); err != nil {
			return fmt.Errorf("failed to create config.yaml file: %w", err)
		}
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))
	viper.SetConfigFile(configFile)

	if err := LoadConfig(false); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			fmt.Fprintln(os.Stderr, "No config file found. Using default config.")
		} else {
			return err
		}
	}

	return nil
}

func LoadConfig(reload bool) error {
	if config != nil && !reload {
		return fmt.Errorf("config already loaded")
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}

	config = &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	return nil
}

func GetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

func MustGetConfig() *Config {
	return GetConfig()
}

// Returns the soundscribe home directory path.
// It attempts to retrieve it from the following sources in order:
// 1. The `home_dir` flag from viper.
// 2. The `SOUNDSCRIBE_HOME` environment variable.
// 3. The default home directory.
func getHomeDir() (string, error) {
	homeDir := viper.GetString("home_dir")
	if homeDir == "" {
		homeDir = os.Getenv("SOUNDSCRIBE_HOME")
		if homeDir == "" {
			homeDir = DefaultHomeDir
		}
	}

	homeDir, err := pathutil.ExpandPath(homeDir)
	if err != nil {
		return "", fmt.Errorf("failed to expand home path: %w", err)
	}

	return homeDir, nil
}

func getModelsDir(homeDir string) (string, error) {
	if homeDir == "" {
		return "", ErrHomeNotSet
	}

	modelsDir := viper.GetString("models_dir")
	if modelsDir == "" {
		modelsDir = filepath.Join(homeDir, "models")
	}

	modelsDir, err := pathutil.ExpandPath(modelsDir)
	if err != nil {
		return "", ErrHomeExpandFailed
	}

	return modelsDir, nil
}

func createHomeDirs(homeDir string) error {
	subdirs := []string{"models"}
	if err := os.MkdirAll(homeDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}

	for _, subdir := range subdirs {
		dir := filepath.Join(homeDir, subdir)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", subdir, err)
		}
	}

	return nil
}
