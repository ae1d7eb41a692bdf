package config

import (
	"context"
	"os"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// yamlConfig is the on-disk shape: only the Defaults knobs are
// YAML-configurable, everything secret-shaped comes from the environment.
type yamlConfig struct {
	Defaults         Defaults `yaml:"defaults"`
	JWTSecretEnv     string   `yaml:"jwt_secret_env"`
	AdminUsernameEnv string   `yaml:"admin_username_env"`
	AdminPasswordEnv string   `yaml:"admin_password_env"`
	DatabaseURLEnv   string   `yaml:"database_url_env"`
}

// Load reads configPath (a YAML file), merges it over DefaultDefaults(),
// loads a sibling .env file if present, resolves env-sourced secrets, and
// validates the result. Mirrors cmd/tarsy/main.go's godotenv.Load +
// config.Initialize sequence.
func Load(_ context.Context, configPath, envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, NewLoadError(envPath, err)
		}
	}

	parsed := yamlConfig{Defaults: DefaultDefaults()}

	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, NewLoadError(configPath, err)
			}
		} else {
			var fromFile yamlConfig
			if err := yaml.Unmarshal(raw, &fromFile); err != nil {
				return nil, NewLoadError(configPath, err)
			}
			if err := mergo.Merge(&parsed, fromFile, mergo.WithOverride); err != nil {
				return nil, NewLoadError(configPath, err)
			}
		}
	}

	cfg := &Config{
		Defaults:         parsed.Defaults,
		JWTSecretEnv:     parsed.JWTSecretEnv,
		AdminUsernameEnv: parsed.AdminUsernameEnv,
		AdminPasswordEnv: parsed.AdminPasswordEnv,
		DatabaseURLEnv:   parsed.DatabaseURLEnv,
	}

	if err := cfg.validateStruct(); err != nil {
		return nil, err
	}
	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	return cfg, nil
}
