// Package promptctx assembles the ordered message list submitted to the
// model: the U-shaped layout of spec.md §4.7 (persona, cross-channel
// history, memories, conversation history, referenced messages, current
// message, protocol), built under a token budget.
//
// Grounded on the teacher's ai/context package: budget.go's
// BudgetAllocator/TokenBudget ratio-split algorithm is generalized here
// from the teacher's fixed system-prompt/short-term/long-term/retrieval
// split into the persona/protocol/history/memory/safety-margin split this
// spec requires (see budget.go); builder.go's ContextBuilder/
// ContextRequest/ContextResult shape and its provider-adapter pattern
// (metadata.go, episodic_provider.go, vector_search_adapter.go,
// store_adapter.go) is generalized into the MemoryProvider/
// HistoryProvider/CrossChannelProvider interfaces below, so Assembler
// never imports internal/memorystore or a history store directly.
package promptctx

import (
	"time"

	"github.com/hrygo/divinesense/internal/model"
)

// Message is one turn in the assembled prompt.
type Message struct {
	Role    string
	Content string
}

// HistoryMessage is one turn of prior conversation in the active channel.
type HistoryMessage struct {
	Timestamp time.Time
	PersonaID string
	Author    string
	Content   string
	FromSelf  bool // true when Content was produced by the active personality
}

// ChannelHistoryGroup is one other channel's worth of prior conversation,
// per spec.md §4.7's cross-channel history input shape.
type ChannelHistoryGroup struct {
	ChannelEnvironment string
	Messages           []HistoryMessage
}

// MemoryProvider supplies the ranked, already-cosine-sorted memories for
// a request. Implementations wrap internal/memorystore.
type MemoryProvider interface {
	QueryMemories(personaID, personalityID string) ([]model.ScoredMemory, error)
}

// HistoryProvider supplies the active channel's conversation history,
// newest-last (chronological).
type HistoryProvider interface {
	RecentHistory(channelID string) ([]HistoryMessage, error)
}

// CrossChannelProvider supplies other channels' history, most-recent-
// channel first, per spec.md §4.7.
type CrossChannelProvider interface {
	CrossChannelHistory(userID string) ([]ChannelHistoryGroup, error)
}

// UserDirectory resolves the three user-reference patterns spec.md §4.7
// describes to persona display info.
type UserDirectory interface {
	// ResolveByUUID looks up a persona by the legacy markdown mention's
	// uuid.
	ResolveByUUID(uuid string) (ResolvedUser, bool)
	// ResolveBySnowflake looks up a persona by a 17-20 digit platform id.
	ResolveBySnowflake(snowflake string) (ResolvedUser, bool)
	// ResolveByUsername looks up a persona by case-insensitive username.
	ResolveByUsername(username string) (ResolvedUser, bool)
}

// ResolvedUser is what a mention resolves to.
type ResolvedUser struct {
	PersonaID          string
	DisplayName        string
	DiscordUsername    string
	DefaultPersonaName string
}

// AssembleRequest bundles everything Assemble needs to build one prompt.
type AssembleRequest struct {
	Personality            *model.Personality
	UserMessage             string
	AttachmentDescriptions  string
	UserID                  string
	PersonaID               string
	PersonaDisplayName      string
	ChannelID               string
	SessionID               string
	ReferencedMessages      []model.ReferencedMessage
	Memories                []model.ScoredMemory
	History                 []HistoryMessage
	CrossChannel            []ChannelHistoryGroup
}

// AssembleResult is the assembled prompt plus the accounting spec.md §8
// requires be recorded.
type AssembleResult struct {
	Messages         []Message
	Budget           TokenBudget
	MessagesIncluded int
	MessagesDropped  int
}
