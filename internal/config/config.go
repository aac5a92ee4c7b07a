// Package config loads configs/config.yml, an optional .env file and
// KILN_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "KILN"

// Load parses args (without the program name) and returns the merged
// configuration. A missing config file is not an error; defaults and the
// environment still apply.
func Load(name string, args []string) (*viper.Viper, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a config file (default configs/config.yml)")
	envFile := fs.String("env-file", ".env", "optional dotenv file")
	fs.String("port", "", "HTTP port")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", *envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	if *configFile != "" {
		v.SetConfigFile(*configFile)
	} else {
		v.AddConfigPath("configs") // configs/config.yml
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if *configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlag("port", fs.Lookup("port")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("log.level", fs.Lookup("log-level")); err != nil {
		return nil, err
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("controlunit.url", "http://localhost:8081/engine/running")
	v.SetDefault("telemetry.reconnect_delay", 5*time.Second)
	v.SetDefault("telemetry.snapshot_timeout", 10*time.Second)
	v.SetDefault("db.path", "app.db")
	v.SetDefault("simulator.tick", time.Second)
	v.SetDefault("simulator.log_resolution", time.Minute)
}
