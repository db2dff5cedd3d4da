// Package config defines the validated runtime configuration for the map
// vote bot. The core packages consume this struct as-is; raw flag parsing
// lives in cmd/rconbot.
package config

import "time"

const (
	DefaultRCONPort        = 21114
	DefaultVotingCooldown  = 30 * time.Minute
	DefaultVotingDuration  = 30 * time.Second
	DefaultQuorumThreshold = 5
	DefaultClanTag         = "[FP]"
	DefaultCandidateCount  = 4
	DefaultMapCheckPeriod  = 10 * time.Second
)

// Config is the root configuration consumed by the bot core.
type Config struct {
	// RCON endpoint
	Address  string
	Port     int
	Password string

	// Voting rules
	VotingCooldown  time.Duration
	VotingDuration  time.Duration
	QuorumThreshold int
	ClanTag         string
	VoteCommands    []string
	CandidateCount  int

	// Include a trailing "none of the above" option; winning it reruns the
	// vote with random candidates instead of changing the map.
	IncludeRedoOption bool

	// A privileged request while a vote is already active restarts the vote
	// when true; ignored when false.
	RestartOnPrivileged bool

	// Map sources
	MapRotationFile string
	MapLayersFile   string

	// How often the current map is polled to advance the rotation cursor.
	MapCheckPeriod time.Duration

	Verbose bool

	Logging   LoggingConfig
	API       APIConfig
	Telemetry TelemetryConfig
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string
	Directory  string
	MaxSizeMB  int
	MaxBackups int
	Console    bool
}

// APIConfig holds the optional read-only status API settings.
type APIConfig struct {
	Enabled bool
	Port    int
}

// TelemetryConfig holds the optional MQTT vote telemetry settings.
type TelemetryConfig struct {
	Enabled   bool
	BrokerURL string
	Port      int
	UseTLS    bool
	ClientID  string
	Topic     string
}

// Default returns a configuration with every tunable at its default. The
// address and password have no defaults and must be supplied.
func Default() *Config {
	return &Config{
		Port:            DefaultRCONPort,
		VotingCooldown:  DefaultVotingCooldown,
		VotingDuration:  DefaultVotingDuration,
		QuorumThreshold: DefaultQuorumThreshold,
		ClanTag:         DefaultClanTag,
		CandidateCount:  DefaultCandidateCount,
		MapCheckPeriod:  DefaultMapCheckPeriod,
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
			Console:    true,
		},
		API: APIConfig{
			Port: 8808,
		},
		Telemetry: TelemetryConfig{
			Port:  8883,
			Topic: "rconbot/votes",
		},
	}
}
