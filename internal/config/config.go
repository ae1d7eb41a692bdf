// Package config loads broker configuration from a YAML file merged with
// documented defaults and environment-sourced secrets, mirroring the
// teacher's pkg/config package (dario.cat/mergo + gopkg.in/yaml.v3 +
// go-playground/validator, godotenv for the .env file).
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// Config is the fully resolved, validated broker configuration.
type Config struct {
	Defaults Defaults `yaml:"defaults"`

	DatabaseURL string `yaml:"-"`

	JWTSecret string `yaml:"-"`

	AdminUsername string `yaml:"-"`
	AdminPassword string `yaml:"-"`

	// Env var names used to resolve the secrets above and DatabaseURL. Recognized keys
	// per SPEC_FULL.md §6.
	JWTSecretEnv     string `yaml:"jwt_secret_env"`
	AdminUsernameEnv string `yaml:"admin_username_env"`
	AdminPasswordEnv string `yaml:"admin_password_env"`
	DatabaseURLEnv   string `yaml:"database_url_env"`
}

var validate = validator.New()

// Stats returns a small summary useful for startup logging, mirroring the
// teacher's Config.Stats() convenience method.
func (c *Config) Stats() map[string]any {
	return map[string]any{
		"queue_capacity":       c.Defaults.QueueCapacity,
		"consensus_threshold":  c.Defaults.ConsensusThreshold,
		"max_discussion_rounds": c.Defaults.MaxDiscussionRounds,
	}
}

// resolveSecrets fills in the four env-sourced fields (JWT secret, admin
// username and password, database URL), requires the JWT secret and the
// database URL to be non-empty, and length-checks the admin password only
// when one is set.
func (c *Config) resolveSecrets() error {
	if c.JWTSecretEnv == "" {
		c.JWTSecretEnv = "BROKER_JWT_SECRET"
	}
	if c.AdminUsernameEnv == "" {
		c.AdminUsernameEnv = "BROKER_ADMIN_USERNAME"
	}
	if c.AdminPasswordEnv == "" {
		c.AdminPasswordEnv = "BROKER_ADMIN_PASSWORD"
	}
	if c.DatabaseURLEnv == "" {
		c.DatabaseURLEnv = "DATABASE_URL"
	}

	c.JWTSecret = os.Getenv(c.JWTSecretEnv)
	c.AdminUsername = os.Getenv(c.AdminUsernameEnv)
	c.AdminPassword = os.Getenv(c.AdminPasswordEnv)
	c.DatabaseURL = os.Getenv(c.DatabaseURLEnv)

	if c.JWTSecret == "" {
		return NewValidationError("auth", "jwt_secret", fmt.Errorf("env var %s is unset", c.JWTSecretEnv))
	}
	if c.DatabaseURL == "" {
		return NewValidationError("database", "database_url", fmt.Errorf("env var %s is unset", c.DatabaseURLEnv))
	}
	if c.AdminPassword != "" && len(c.AdminPassword) < c.Defaults.MinPasswordLength {
		return NewValidationError("auth", "admin_password", fmt.Errorf("must be at least %d characters", c.Defaults.MinPasswordLength))
	}
	return nil
}

func (c *Config) validateStruct() error {
	if err := validate.Struct(c.Defaults); err != nil {
		return NewValidationError("defaults", "*", err)
	}
	return nil
}
