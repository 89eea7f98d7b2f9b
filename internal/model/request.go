// Package model holds the core data types shared across the orchestration
// core. It has no dependency on any other internal package so that it can
// sit leaf-ward of every component that consumes it (see DESIGN.md, the
// cyclic-reference redesign note).
package model

import "time"

// Request is a single submission identified by a generated RequestID.
// It is immutable after enqueue; its lifecycle ends when the generation
// job reaches a terminal state.
type Request struct {
	CreatedAt           time.Time
	RequestID           string
	UserID              string
	ChannelID           string
	ServerID            string
	Personality         *Personality
	Message             Message
	Attachments         []Attachment
	ReferencedMessages  []ReferencedMessage
	ConversationHistory []ConversationHistoryMessage
	CrossChannelHistory []ChannelHistoryGroup
	UserAPIKey          string
	ResponseDestination string
	SessionID           string
}

// ConversationHistoryMessage is one turn of prior conversation in the
// active channel, supplied on the wire per spec.md §6's
// context.conversationHistory.
type ConversationHistoryMessage struct {
	Timestamp time.Time
	PersonaID string
	Author    string
	Content   string
	FromSelf  bool
}

// ChannelHistoryGroup is one other channel's worth of prior conversation,
// per spec.md §4.7's cross-channel history input shape.
type ChannelHistoryGroup struct {
	ChannelEnvironment string
	Messages           []ConversationHistoryMessage
}

// Message is the user-submitted text; attachments travel separately on
// Request.Attachments.
type Message struct {
	Text string
}

// ReferencedMessage is a message the user explicitly referenced (quoted/replied to).
type ReferencedMessage struct {
	ID      string
	Author  string
	Content string
}

// Attachment is a file attached to a request.
// {url, name, contentType, size, isVoiceMessage?}
type Attachment struct {
	URL            string
	Name           string
	ContentType    string
	Size           int64
	IsVoiceMessage bool
}

// AttachmentCategory classifies an attachment by its contentType prefix.
type AttachmentCategory int

const (
	AttachmentUnknown AttachmentCategory = iota
	AttachmentImage
	AttachmentAudio
)

// Classify returns the attachment's category based on its contentType prefix.
func (a Attachment) Classify() AttachmentCategory {
	switch {
	case hasPrefix(a.ContentType, "image/"):
		return AttachmentImage
	case hasPrefix(a.ContentType, "audio/"):
		return AttachmentAudio
	default:
		return AttachmentUnknown
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
