package promptctx

import (
	"fmt"
	"strings"
)

// voiceOnlyLiteral is the special text body spec.md §4.7 calls out: when
// the message text is exactly this and attachments are non-empty, the
// message was voice-only and its transcription/description stands in
// for the missing text.
const voiceOnlyLiteral = "Hello"

// FormatMessageBody combines a message's raw text with any preprocessed
// attachment descriptions, per spec.md §4.7's message formatter rule.
func FormatMessageBody(text, attachmentDescriptions string) string {
	switch {
	case text == voiceOnlyLiteral && attachmentDescriptions != "":
		return attachmentDescriptions
	case text != "" && attachmentDescriptions != "":
		return text + "\n\n" + attachmentDescriptions
	case attachmentDescriptions != "":
		return attachmentDescriptions
	default:
		return text
	}
}

// IdentifySpeaker wraps the current user message with the <from> tag
// spec.md §4.7 specifies, disambiguating with the discord-style username
// when the persona's display name collides case-insensitively with the
// active personality's name.
func IdentifySpeaker(personaID, displayName, discordUsername, personalityName, content string) string {
	name := displayName
	if discordUsername != "" && strings.EqualFold(displayName, personalityName) {
		name = fmt.Sprintf("%s (@%s)", displayName, discordUsername)
	}
	return fmt.Sprintf("<from id=%q>%s</from>\n\n%s", personaID, name, content)
}
