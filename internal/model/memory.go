package model

import "time"

// CanonScope is the visibility class of a memory row.
type CanonScope string

const (
	CanonScopeGlobal   CanonScope = "global"
	CanonScopePersonal CanonScope = "personal"
	CanonScopeSession  CanonScope = "session"
)

// EmbeddingDims is the fixed dimensionality of every stored/queried vector
// (BGE-small-en-v1.5, L2-normalized).
const EmbeddingDims = 384

// Memory is a single long-term memory row.
//
// Invariants: Embedding is 384-dim and L2-normalized; CanonScopePersonal
// implies the owning user is recoverable via PersonaID; CanonScopeSession
// implies SessionID is set; the four chunk fields are all set or all nil.
type Memory struct {
	CreatedAt     time.Time
	ChunkGroupID  *string
	ChunkIndex    *int
	TotalChunks   *int
	ChannelID     *string
	GuildID       *string
	SessionID     *string
	ID            string
	PersonaID     string
	PersonalityID string
	Content       string
	SummaryType   string
	CanonScope    CanonScope
	Senders       []string
	MessageIDs    []string
	Embedding     []float32
	DeletedAt     *time.Time
}

// PendingMemory mirrors a Memory row before its embedding has been
// durably written. It is the outbox row: created before the embedding
// call, deleted on success, updated with attempts/lastError on failure.
type PendingMemory struct {
	LastAttemptAt *time.Time
	Memory        Memory
	LastError     string
	Attempts      int
}

// MemoryQueryOptions parametrizes a Vector Memory Store query.
type MemoryQueryOptions struct {
	ExcludeNewerThan *time.Time
	PersonaID        string
	PersonalityID    string
	ExcludeIDs       []string
	ChannelIDs       []string
	AllowedScopes    []CanonScope
	Limit            int
	ScoreThreshold   float32
}

// DefaultMemoryQueryOptions returns the documented defaults: limit 10,
// score threshold 0.85 (i.e. cosine distance < 0.15).
func DefaultMemoryQueryOptions() MemoryQueryOptions {
	return MemoryQueryOptions{
		Limit:          10,
		ScoreThreshold: 0.85,
	}
}

// ScoredMemory is a memory returned from a similarity query, along with
// its cosine similarity score.
type ScoredMemory struct {
	Memory Memory
	Score  float32
}
