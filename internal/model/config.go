package model

// ConfigTier identifies one of the four cascading override tiers.
type ConfigTier string

const (
	ConfigTierAdmin       ConfigTier = "admin"
	ConfigTierUser        ConfigTier = "user"
	ConfigTierChannel     ConfigTier = "channel"
	ConfigTierPersonality ConfigTier = "personality"
)

// ConfigOverrides is a partial bag of LLM params attached at one of the
// four tiers. Resolution order is personality -> channel -> user -> admin
// -> hard-coded defaults; first non-null value per field wins.
type ConfigOverrides struct {
	Tier   ConfigTier
	Key    string // e.g. userId, channelId, personalityId, or "" for admin
	Params LLMParams
}

// ConfigSource names which tier a resolved value ultimately came from.
type ConfigSource string

const (
	ConfigSourceContextOverride ConfigSource = "context-override"
	ConfigSourceUserDefault     ConfigSource = "user-default"
	ConfigSourceSystemDefault   ConfigSource = "system-default"
)

// ResolvedConfig is the result of a cascading config resolution.
type ResolvedConfig struct {
	Config     LLMParams
	Source     ConfigSource
	SourceName string
}

// DeduplicationEntry maps a request fingerprint to the job it already
// produced. Entries expire 5 seconds after insertion.
type DeduplicationEntry struct {
	ExpiresAt int64 // unix nanos
	RequestID string
	JobID     string
}
