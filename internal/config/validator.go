package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError is one configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the outcome of Validate.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks the configuration for problems the bot cannot run with,
// plus a few smells worth warning about.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	if strings.TrimSpace(cfg.Address) == "" {
		result.AddError("address", "RCON address is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		result.AddError("port", fmt.Sprintf("invalid RCON port %d", cfg.Port))
	}
	if cfg.Password == "" {
		result.AddError("password", "RCON password is required")
	}

	if cfg.VotingDuration <= 0 {
		result.AddError("voting_duration", "voting duration must be positive")
	}
	if cfg.VotingCooldown < 0 {
		result.AddError("voting_cooldown", "voting cooldown cannot be negative")
	}
	if cfg.VotingCooldown > 0 && cfg.VotingCooldown < cfg.VotingDuration {
		result.AddWarning("voting_cooldown", "cooldown shorter than voting duration, votes can run back to back")
	}

	if cfg.QuorumThreshold < 1 {
		result.AddError("quorum_threshold", "quorum threshold must be at least 1")
	}
	if cfg.CandidateCount < 2 {
		result.AddError("candidate_count", "need at least 2 candidates for a vote")
	}

	if cfg.MapRotationFile != "" {
		if _, err := os.Stat(cfg.MapRotationFile); os.IsNotExist(err) {
			result.AddError("map_rotation_filepath", fmt.Sprintf("rotation file does not exist: %s", cfg.MapRotationFile))
		}
	} else if cfg.MapLayersFile == "" {
		result.AddError("map_layers_filepath", "either a rotation file or a layers file is required")
	}

	if cfg.API.Enabled && (cfg.API.Port < 1 || cfg.API.Port > 65535) {
		result.AddError("api.port", fmt.Sprintf("invalid API port %d", cfg.API.Port))
	}
	if cfg.Telemetry.Enabled && strings.TrimSpace(cfg.Telemetry.BrokerURL) == "" {
		result.AddError("telemetry.broker_url", "MQTT broker URL is required when telemetry is enabled")
	}

	return result
}
