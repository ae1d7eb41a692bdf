package config

import "time"

// Defaults holds the broker-wide knobs enumerated in spec.md §6. Every field
// has a sane production default; a YAML file or env var may override it.
type Defaults struct {
	QueueCapacity         int           `yaml:"queue_capacity" validate:"min=1"`
	StaleThreshold        time.Duration `yaml:"stale_threshold" validate:"min=0"`
	DisconnectThreshold   time.Duration `yaml:"disconnect_threshold" validate:"min=0"`
	ConsensusThreshold    float64       `yaml:"consensus_threshold" validate:"gt=0,lte=1"`
	MaxDiscussionRounds   int           `yaml:"max_discussion_rounds" validate:"min=1"`
	ReplyTimeout          time.Duration `yaml:"reply_timeout" validate:"min=0"`
	PermissionCacheTTL    time.Duration `yaml:"permission_cache_ttl" validate:"min=0"`
	AccessTokenTTL        time.Duration `yaml:"access_token_ttl" validate:"min=0"`
	RefreshTokenTTL       time.Duration `yaml:"refresh_token_ttl" validate:"min=0"`
	MinPasswordLength     int           `yaml:"min_password_length" validate:"min=8"`
	CrossProjectRateLimit int           `yaml:"cross_project_rate_limit_per_minute" validate:"min=0"`
}

// DefaultDefaults mirrors the teacher's DefaultQueueConfig() style: a single
// function returning the documented production defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		QueueCapacity:         100,
		StaleThreshold:        30 * time.Second,
		DisconnectThreshold:   60 * time.Second,
		ConsensusThreshold:    0.75,
		MaxDiscussionRounds:   3,
		ReplyTimeout:          300 * time.Second,
		PermissionCacheTTL:    300 * time.Second,
		AccessTokenTTL:        30 * time.Minute,
		RefreshTokenTTL:       7 * 24 * time.Hour,
		MinPasswordLength:     12,
		CrossProjectRateLimit: 0,
	}
}
